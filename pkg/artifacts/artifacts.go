// Package artifacts copies run outputs (graph files, query results,
// reports) to a bucket under a per-run prefix.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Store writes one named object.
type Store interface {
	Put(ctx context.Context, name, contentType string, r io.Reader) error
}

// ContentType guesses from the file extension.
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".ttl":
		return "text/turtle"
	case ".nt":
		return "application/n-triples"
	case ".csv":
		return "text/csv"
	case ".txt":
		return "text/plain; charset=utf-8"
	case ".pdf":
		return "application/pdf"
	case ".json":
		return "application/json"
	}
	return "application/octet-stream"
}

// Publisher uploads local files beneath Prefix/runID/.
type Publisher struct {
	Store  Store
	Prefix string
	Log    *slog.Logger
}

// Publish uploads every file, keyed by its path relative to root. It keeps
// going after a failed upload and returns the object names written plus
// the joined errors.
func (p *Publisher) Publish(ctx context.Context, runID, root string, files []string) ([]string, error) {
	log := p.Log
	if log == nil {
		log = slog.Default()
	}
	var (
		names []string
		errs  []error
	)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return names, errors.Join(append(errs, err)...)
		}
		rel, err := filepath.Rel(root, f)
		if err != nil || strings.HasPrefix(rel, "..") {
			rel = filepath.Base(f)
		}
		name := path.Join(p.Prefix, runID, filepath.ToSlash(rel))
		if err := p.put(ctx, name, f); err != nil {
			log.Warn("artifacts: upload failed", "object", name, "err", err)
			errs = append(errs, err)
			continue
		}
		names = append(names, name)
	}
	log.Info("artifacts: published", "run_id", runID, "objects", len(names), "failed", len(errs))
	return names, errors.Join(errs...)
}

func (p *Publisher) put(ctx context.Context, name, file string) error {
	fh, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("artifacts: %w", err)
	}
	defer fh.Close()
	if err := p.Store.Put(ctx, name, ContentType(file), fh); err != nil {
		return fmt.Errorf("artifacts: put %s: %w", name, err)
	}
	return nil
}

// Dir is a Store on the local filesystem, used when no bucket is
// configured.
type Dir string

func (d Dir) Put(_ context.Context, name, _ string, r io.Reader) error {
	dst := filepath.Join(string(d), filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
