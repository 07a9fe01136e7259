package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmitrijs2005/vaultexport/internal/common"
	"github.com/dmitrijs2005/vaultexport/internal/netx"
)

// ChunkFetcher reads length bytes at offset of the remote ciphertext of
// contentHash. token may be empty.
type ChunkFetcher interface {
	FetchChunk(ctx context.Context, contentHash string, offset, length int64, token string) ([]byte, error)
}

// HTTPFetcher reads ciphertext from BaseURL/<contentHash> with ranged GETs.
type HTTPFetcher struct {
	BaseURL string
	Client  *http.Client
	// Header is sent with every request, in addition to the bearer token.
	Header http.Header
}

func (f *HTTPFetcher) FetchChunk(ctx context.Context, contentHash string, offset, length int64, token string) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	u := strings.TrimRight(f.BaseURL, "/") + "/" + url.PathEscape(contentHash)

	header := f.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	return netx.FetchRange(ctx, client, u, offset, length, header)
}

// GetObjectAPI is the part of *s3.Client used by S3Fetcher.
type GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Fetcher reads ciphertext from Bucket/Prefix<contentHash> with ranged
// GetObject calls. The bearer token is not used; S3 requests are signed
// with the client's credentials.
type S3Fetcher struct {
	API    GetObjectAPI
	Bucket string
	Prefix string
}

func (f *S3Fetcher) FetchChunk(ctx context.Context, contentHash string, offset, length int64, _ string) ([]byte, error) {
	out, err := f.API.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.Bucket),
		Key:    aws.String(f.Prefix + contentHash),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("object %s: %w", contentHash, common.ErrorNotFound)
		}
		return nil, fmt.Errorf("%w: %w", common.ErrUnavailable, err)
	}
	defer out.Body.Close()

	buf := make([]byte, length)
	if _, err := io.ReadFull(out.Body, buf); err != nil {
		return nil, fmt.Errorf("reading object %s: %w", contentHash, err)
	}
	return buf, nil
}

// S3Config selects the object store holding remote ciphertext.
type S3Config struct {
	Region       string
	BaseEndpoint string
	User         string
	Password     string
}

// test seams
var (
	loadDefaultAWSConfig  = awsconfig.LoadDefaultConfig
	newS3ClientFromConfig = s3.NewFromConfig
)

// NewS3Client builds a path-style S3 client with static credentials, as
// used with MinIO.
func NewS3Client(ctx context.Context, c S3Config) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(c.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.User, c.Password, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if c.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(c.BaseEndpoint)
		}
		o.UsePathStyle = true
	}), nil
}
