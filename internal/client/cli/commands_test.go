package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCommander struct {
	calls []string
	args  [][]string
}

func (s *stubCommander) record(name string, args []string) error {
	s.calls = append(s.calls, name)
	s.args = append(s.args, args)
	return nil
}

func (s *stubCommander) Init(context.Context) error { return s.record("init", nil) }
func (s *stubCommander) Import(_ context.Context, args []string) error {
	return s.record("import", args)
}
func (s *stubCommander) List(context.Context) error { return s.record("list", nil) }
func (s *stubCommander) Export(_ context.Context, args []string) error {
	return s.record("export", args)
}
func (s *stubCommander) MarkUploaded(_ context.Context, args []string) error {
	return s.record("mark-uploaded", args)
}

func TestRun_Dispatch(t *testing.T) {
	tests := []struct {
		args     []string
		wantCall string
		wantArgs []string
	}{
		{args: []string{"init"}, wantCall: "init"},
		{args: []string{"import", "a.pdf", "application/pdf"}, wantCall: "import", wantArgs: []string{"a.pdf", "application/pdf"}},
		{args: []string{"ls"}, wantCall: "list"},
		{args: []string{"list"}, wantCall: "list"},
		{args: []string{"export", "-o", "x.zip", "id"}, wantCall: "export", wantArgs: []string{"-o", "x.zip", "id"}},
		{args: []string{"mark-uploaded", "id"}, wantCall: "mark-uploaded", wantArgs: []string{"id"}},
	}

	for _, tt := range tests {
		t.Run(tt.args[0], func(t *testing.T) {
			var stub stubCommander
			var out bytes.Buffer

			require.NoError(t, Run(context.Background(), &stub, tt.args, &out))
			assert.Equal(t, []string{tt.wantCall}, stub.calls)
			if tt.wantArgs != nil {
				assert.Equal(t, tt.wantArgs, stub.args[0])
			}
			assert.Empty(t, out.String())
		})
	}
}

func TestRun_Help(t *testing.T) {
	var stub stubCommander
	var out bytes.Buffer

	require.NoError(t, Run(context.Background(), &stub, []string{"help"}, &out))
	assert.Contains(t, out.String(), "Usage: vaultexport")
	assert.Empty(t, stub.calls)
}

func TestRun_UsageErrors(t *testing.T) {
	var stub stubCommander

	var out bytes.Buffer
	assert.ErrorIs(t, Run(context.Background(), &stub, nil, &out), ErrUsage)
	assert.Contains(t, out.String(), "Commands:")

	out.Reset()
	assert.ErrorIs(t, Run(context.Background(), &stub, []string{"frobnicate"}, &out), ErrUsage)
	assert.Empty(t, stub.calls)
}
