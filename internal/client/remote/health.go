package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/vaultexport/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const probeTimeout = 3 * time.Second

// HealthProbe checks the backend through the standard gRPC health service.
type HealthProbe struct {
	conn   *grpc.ClientConn
	client grpc_health_v1.HealthClient
	tokens *TokenSource
}

// NewHealthProbe connects lazily to addr. tokens may be nil.
func NewHealthProbe(addr string, tokens *TokenSource, opts ...grpc.DialOption) (*HealthProbe, error) {
	p := &HealthProbe{tokens: tokens}

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(p.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	p.conn = conn
	p.client = grpc_health_v1.NewHealthClient(conn)
	return p, nil
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)
	return metadata.NewOutgoingContext(ctx, md)
}

func (p *HealthProbe) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if p.tokens == nil {
		return invoker(ctx, method, req, reply, cc, opts...)
	}

	token, err := p.tokens.Token(ctx)
	if err != nil {
		return err
	}
	err = invoker(withAccessToken(ctx, token), method, req, reply, cc, opts...)
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Unauthenticated || st.Message() != common.ErrTokenExpired.Error() {
		return err
	}

	// the backend says the token expired before we thought it would
	p.tokens.Invalidate()
	token, rerr := p.tokens.Token(ctx)
	if rerr != nil {
		return rerr
	}
	return invoker(withAccessToken(ctx, token), method, req, reply, cc, opts...)
}

// Check returns nil when the backend reports SERVING for the server as a
// whole.
func (p *HealthProbe) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	resp, err := p.client.Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		return mapError(err)
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		return fmt.Errorf("backend status %s: %w", resp.GetStatus(), common.ErrUnavailable)
	}
	return nil
}

// Online reports whether Check succeeds.
func (p *HealthProbe) Online(ctx context.Context) bool {
	return p.Check(ctx) == nil
}

func (p *HealthProbe) Close() error {
	return p.conn.Close()
}

func mapError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unauthenticated:
		return fmt.Errorf("%s: %w", st.Message(), common.ErrUnauthorized)
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%s: %w", st.Message(), common.ErrUnavailable)
	}
	return err
}
