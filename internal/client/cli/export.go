package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/vaultexport/internal/client/models"
	"github.com/dmitrijs2005/vaultexport/internal/client/services"
	"github.com/dmitrijs2005/vaultexport/internal/filex"
	"github.com/dustin/go-humanize"
)

type exportSummary struct {
	exported int
	skipped  int
	bytes    int64
}

// progressPrinter returns a callback printing one line per attachment.
func (a *App) progressPrinter(sum *exportSummary) models.ProgressFunc {
	return func(p models.Progress) {
		switch p.Status {
		case models.ProgressExported:
			sum.exported++
			sum.bytes += p.Bytes
			fmt.Fprintf(a.out, "[%d/%d] %s -> %s (%s)\n", p.Index+1, p.Total, p.AttachmentID, p.Path, humanize.Bytes(uint64(p.Bytes)))
		case models.ProgressSkipped:
			sum.skipped++
			fmt.Fprintf(a.out, "[%d/%d] %s skipped: %v\n", p.Index+1, p.Total, p.AttachmentID, p.Err)
		}
	}
}

// Export writes a zip of the attachments in args (all when empty) to the
// file given with -o. The file is created before any attachment is touched
// and removed if the export fails.
func (a *App) Export(ctx context.Context, args []string) (err error) {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(a.out)
	out := fs.String("o", "", "output zip file")
	force := fs.Bool("f", false, "overwrite an existing output file")
	offline := fs.Bool("offline", false, "do not download missing attachments")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	if *out == "" {
		return fmt.Errorf("%w: export needs -o <zip>", ErrUsage)
	}

	naming, err := services.ParseNamingMode(a.cfg.NamingMode)
	if err != nil {
		return err
	}

	f, err := filex.CreateExclusive(*out, *force)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("writing %s: %w", *out, cerr)
		}
		if err != nil {
			_ = os.Remove(*out)
		}
	}()

	master, err := a.unlock(ctx)
	if err != nil {
		return err
	}
	defer master.Wipe()

	var sum exportSummary
	opts := []services.ExportOption{
		services.WithNaming(naming),
		services.WithProgress(a.progressPrinter(&sum)),
		services.WithExportLogger(a.log),
	}

	var probe services.OnlineChecker
	if !*offline {
		deps, err := a.connect(ctx)
		if err != nil {
			return fmt.Errorf("connecting to remote: %w", err)
		}
		if deps != nil {
			defer deps.Close()
			opts = append(opts, services.WithDownloader(deps.downloader, deps.tokens))
			probe = deps.probe
		}
	}

	exporter := services.NewExporter(a.crypto, a.repos.Blobs, a.keyring, master, opts...)
	svc := services.NewExportService(a.repos.Attachments, exporter, probe, a.cfg.CompressionLevel, a.log)

	rc, err := svc.ExportAttachments(ctx, fs.Args())
	if err != nil {
		return err
	}
	defer rc.Close()

	n, err := io.Copy(f, rc)
	if err != nil {
		return fmt.Errorf("writing %s: %w", *out, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("writing %s: %w", *out, err)
	}

	fmt.Fprintf(a.out, "wrote %d attachments (%s) to %s, %s on disk", sum.exported,
		humanize.Bytes(uint64(sum.bytes)), *out, humanize.Bytes(uint64(n)))
	if sum.skipped > 0 {
		fmt.Fprintf(a.out, ", %d skipped", sum.skipped)
	}
	fmt.Fprintln(a.out)
	return nil
}
