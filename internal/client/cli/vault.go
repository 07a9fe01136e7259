package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/dmitrijs2005/vaultexport/internal/common"
	"github.com/dmitrijs2005/vaultexport/internal/cryptox"
	"github.com/dustin/go-humanize"
)

// Init asks for a new vault password twice and creates the key material.
func (a *App) Init(ctx context.Context) error {
	pw, err := GetPassword(a.out, "New vault password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	confirm, err := GetPassword(a.out, "Repeat password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(confirm)

	if len(pw) == 0 {
		return fmt.Errorf("%w: empty password", ErrUsage)
	}
	if !bytes.Equal(pw, confirm) {
		return errors.New("passwords do not match")
	}

	master, err := a.keyring.Init(ctx, pw)
	if err != nil {
		return err
	}
	master.Wipe()

	fmt.Fprintln(a.out, "Vault initialized")
	return nil
}

func (a *App) unlock(ctx context.Context) (*cryptox.Key, error) {
	pw, err := GetPassword(a.out, "Vault password")
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(pw)

	master, err := a.keyring.Unlock(ctx, pw)
	switch {
	case errors.Is(err, common.ErrUnauthorized):
		return nil, errors.New("wrong password")
	case errors.Is(err, common.ErrLocalDataNotAvailable):
		return nil, errors.New("vault is not initialized, run init first")
	}
	return master, err
}

// Import encrypts the file args[0] into the vault. The MIME type is args[1]
// or guessed from the file extension.
func (a *App) Import(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("%w: import <file> [mime]", ErrUsage)
	}
	path := args[0]

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if len(args) == 2 {
		mimeType = args[1]
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	master, err := a.unlock(ctx)
	if err != nil {
		return err
	}
	defer master.Wipe()

	rec, err := a.imports.Import(ctx, master, f, filepath.Base(path), mimeType)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "imported %s %s (%s)\n", rec.ID, rec.DisplayFilename, humanize.Bytes(uint64(rec.DeclaredSize)))
	return nil
}

// List prints the attachment catalog.
func (a *App) List(ctx context.Context) error {
	records, err := a.imports.List(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(a.out, "No attachments")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSIZE\tADDED\tUPLOADED")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", r.ID, r.DisplayFilename,
			humanize.Bytes(uint64(r.DeclaredSize)), humanize.Time(r.CreatedAt), r.Uploaded)
	}
	return tw.Flush()
}

// MarkUploaded flags args[0] as stored remotely.
func (a *App) MarkUploaded(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: mark-uploaded <id>", ErrUsage)
	}
	if err := a.imports.MarkUploaded(ctx, args[0]); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return fmt.Errorf("no attachment %s", args[0])
		}
		return err
	}
	fmt.Fprintf(a.out, "%s marked uploaded\n", args[0])
	return nil
}
