package bionic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/sync/errgroup"
)

// Transformer runs the whole pipeline: inspect, copy, unpack, rewrite,
// pack, clean up. Stages run strictly in that order and a fatal error in
// one stage stops the run before the next begins.
type Transformer struct {
	cfg     Config
	log     *slog.Logger
	rewrite func(path string, opts RewriteOptions) error
}

// NewTransformer validates cfg and returns a Transformer. A nil logger
// means slog.Default().
func NewTransformer(cfg Config, logger *slog.Logger) (*Transformer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transformer{cfg: cfg, log: logger, rewrite: RewriteFile}, nil
}

// Config returns the configuration the transformer runs with.
func (t *Transformer) Config() Config { return t.cfg }

// Result summarises a completed run.
type Result struct {
	// Output is the path of the written container.
	Output string

	// Book is the pre-unpack inspection of the input.
	Book *BookInfo

	// Documents is the number of markup files found after unpacking.
	Documents int

	// Rewritten is the number of documents rewritten successfully.
	Rewritten int

	// Skipped lists documents that failed under ContinueOnError.
	Skipped []string

	// Warnings collects recoverable problems reported by packing.
	Warnings []string
}

// Run transforms the container at input and writes the result next to it
// (or into Config.OutputDir).
func (t *Transformer) Run(ctx context.Context, input string) (*Result, error) {
	if strings.TrimSpace(input) == "" {
		return nil, goerrors.Wrap(ErrNoInput, goerrors.CategoryBadInput, "no input provided").
			WithTextCode(CodeNoInput)
	}

	book, err := Inspect(input)
	if err != nil {
		code := CodeInvalidEPub
		if errors.Is(err, ErrDRMProtected) {
			code = CodeDRMProtected
		}
		return nil, wrapStage(err, code, "cannot transform "+input)
	}
	t.logBook(ctx, input, book)

	res := &Result{Book: book, Output: t.outputPath(input)}

	workspace, err := os.MkdirTemp("", "bionic-epub-*")
	if err != nil {
		return nil, wrapStage(err, codeWorkspaceFailed, "failed to create working directory")
	}
	cleaned := false
	defer func() {
		if !cleaned {
			t.removeAll(ctx, workspace, "working directory")
		}
	}()

	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	archive := filepath.Join(workspace, stem+".zip")
	if err := copyFile(input, archive); err != nil {
		return nil, wrapStage(err, CodeCopyFailed, "failed to copy ePub file")
	}
	t.log.InfoContext(ctx, "ePub file copied to ZIP file", "path", archive)

	bookDir := filepath.Join(workspace, stem)
	dirs, err := unpackWithLimit(archive, bookDir, t.cfg.MaxEntrySize)
	if err != nil {
		return nil, wrapStage(err, CodeExtractFailed, "failed to extract ZIP file")
	}
	t.log.InfoContext(ctx, "ZIP file extracted", "dir", bookDir)

	if err := os.Remove(archive); err != nil {
		t.cleanupFailed(ctx, "failed to delete ZIP file", err)
	} else {
		t.log.InfoContext(ctx, "ZIP file deleted", "path", archive)
	}

	if err := t.rewriteTree(ctx, bookDir, res); err != nil {
		return nil, err
	}

	warnings, err := Pack(bookDir, res.Output, dirs)
	res.Warnings = warnings
	for _, w := range warnings {
		t.log.WarnContext(ctx, "archive warning", "detail", w)
	}
	if err != nil {
		return nil, wrapStage(err, CodePackFailed, "failed to create ePub file")
	}
	t.log.InfoContext(ctx, "ePub file created", "path", res.Output)

	cleaned = true
	if t.removeAll(ctx, workspace, "decompressed folder") {
		t.log.InfoContext(ctx, "decompressed folder deleted", "dir", bookDir)
	}
	return res, nil
}

// rewriteTree rewrites every markup document under dir. Files are handed
// to a bounded worker pool; each file gets its own palette. The first
// failure cancels the remaining work unless ContinueOnError is set.
func (t *Transformer) rewriteTree(ctx context.Context, dir string, res *Result) error {
	files, err := FindDocuments(dir, t.cfg.Extensions)
	if err != nil {
		return wrapStage(err, CodeExtractFailed, "failed to scan extracted files")
	}
	res.Documents = len(files)
	t.log.InfoContext(ctx, "applying bionic reading style", "documents", len(files), "mode", t.cfg.Mode.String(), "workers", t.cfg.workers())

	opts := RewriteOptions{
		Renderer: t.cfg.renderer(),
		Palette:  t.cfg.Palette,
		Elements: t.cfg.Elements,
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.workers())
	for _, f := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rel, _ := filepath.Rel(dir, f)
			if err := t.rewrite(f, opts); err != nil {
				if !t.cfg.ContinueOnError {
					return wrapStage(err, CodeRewriteFailed, "failed to rewrite "+filepath.ToSlash(rel))
				}
				t.log.ErrorContext(ctx, "skipping document", "path", filepath.ToSlash(rel), "error", err)
				mu.Lock()
				res.Skipped = append(res.Skipped, filepath.ToSlash(rel))
				mu.Unlock()
				return nil
			}
			t.log.DebugContext(ctx, "document rewritten", "path", filepath.ToSlash(rel))
			mu.Lock()
			res.Rewritten++
			mu.Unlock()
			return nil
		})
	}

	err = g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return goerrors.Wrap(err, goerrors.CategoryOperation, "run cancelled").WithTextCode(CodeRunCancelled)
		}
		return err
	}
	return nil
}

func (t *Transformer) outputPath(input string) string {
	dir := t.cfg.OutputDir
	if dir == "" {
		dir = filepath.Dir(input)
	}
	return filepath.Join(dir, OutputName(input, t.cfg.Mode))
}

func (t *Transformer) logBook(ctx context.Context, input string, b *BookInfo) {
	t.log.InfoContext(ctx, "inspected ePub",
		"path", input,
		"title", b.Title,
		"authors", strings.Join(b.Authors, ", "),
		"version", b.Version,
		"entries", b.Entries,
		"manifest_documents", b.ManifestDocuments,
	)
	for _, w := range b.Warnings {
		t.log.WarnContext(ctx, "ePub warning", "detail", w)
	}
}

// removeAll deletes dir, logging instead of failing. It reports success.
func (t *Transformer) removeAll(ctx context.Context, dir, what string) bool {
	if err := os.RemoveAll(dir); err != nil {
		t.cleanupFailed(ctx, "failed to delete "+what, err)
		return false
	}
	return true
}

func (t *Transformer) cleanupFailed(ctx context.Context, msg string, err error) {
	werr := goerrors.Wrap(err, goerrors.CategoryOperation, msg).WithTextCode(CodeCleanupFailed)
	attrs := append(goerrors.ToSlogAttributes(werr), slog.String("error", err.Error()))
	t.log.LogAttrs(ctx, slog.LevelWarn, msg, attrs...)
}

// copyFile copies src to dst, creating or truncating dst.
func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("bionic: open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("bionic: create %s: %w", dst, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("bionic: close %s: %w", dst, cerr)
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("bionic: copy %s: %w", src, err)
	}
	return nil
}
