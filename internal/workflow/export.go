package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"tank-location-sync/internal/errs"
)

// Export downloads the configured spreadsheet in the configured format and
// mails it to the export recipient. It returns the exported title.
func (o *Orchestrator) Export(ctx context.Context) (string, error) {
	o.setState(StateExport)

	files, err := o.store.ListFiles(ctx)
	if err != nil {
		return "", err
	}

	var link string
	found := false
	for _, f := range files {
		if f.Title != o.export.Title {
			continue
		}
		found = true
		link = f.ExportLinks[o.export.MimeType]
		break
	}
	if !found {
		return "", errs.NotFound(fmt.Sprintf("file %q not found", o.export.Title))
	}
	if link == "" {
		return "", errs.NotFound(fmt.Sprintf("file %q has no %s export", o.export.Title, o.export.MimeType))
	}

	dir, err := os.MkdirTemp("", "locationsync-")
	if err != nil {
		return "", fmt.Errorf("creating temp dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			o.log.Warnf("Error removing %s: %v", dir, err)
		}
	}()

	path := filepath.Join(dir, safeFileName(o.export.Title)+o.export.Extension)
	if err := o.download(ctx, link, path); err != nil {
		return "", err
	}
	o.log.Infof("Exported %q to %s", o.export.Title, path)

	if err := o.mail.SendWithAttachment(ctx, path, o.export.Recipient, o.export.Subject, o.export.Body); err != nil {
		return "", err
	}
	return o.export.Title, nil
}

func (o *Orchestrator) download(ctx context.Context, link, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	if err := o.store.Download(ctx, link, f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing export file: %w", err)
	}
	return nil
}

func safeFileName(title string) string {
	name := filepath.Base(filepath.Clean("/" + title))
	if name == "/" || name == "." {
		return "export"
	}
	return name
}
