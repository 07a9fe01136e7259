package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
)

var ErrUsage = errors.New("usage error")

const usage = `Usage: vaultexport [global flags] <command> [command flags] [args]

Commands:
  init                         create the vault key material
  import <file> [mime]         encrypt a file into the vault
  list                         list attachments
  export -o <zip> [-f] [-offline] [ids...]
                               write a zip of the decrypted attachments
  mark-uploaded <id>           allow exports to drop the local ciphertext
  help                         show this message`

// commander is the command surface Run dispatches to. App implements it;
// tests provide a stub.
type commander interface {
	Init(ctx context.Context) error
	Import(ctx context.Context, args []string) error
	List(ctx context.Context) error
	Export(ctx context.Context, args []string) error
	MarkUploaded(ctx context.Context, args []string) error
}

// Run executes the command named by args[0]. args must already be stripped
// of global configuration flags.
func Run(ctx context.Context, a commander, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprintln(out, usage)
		return ErrUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "help", "-h", "--help":
		fmt.Fprintln(out, usage)
		return nil
	case "init":
		return a.Init(ctx)
	case "import":
		return a.Import(ctx, rest)
	case "list", "ls":
		return a.List(ctx)
	case "export":
		return a.Export(ctx, rest)
	case "mark-uploaded":
		return a.MarkUploaded(ctx, rest)
	default:
		fmt.Fprintln(out, usage)
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
}
