// Package pdf rasterizes single PDF pages with poppler.
package pdf

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	// ErrPageOutOfRange is returned for a page index outside 1..PageCount.
	ErrPageOutOfRange = errors.New("pdf: page out of range")
	// ErrRender is returned when the document cannot be read or rasterized.
	ErrRender = errors.New("pdf: render failed")
)

// pdfHeader is the magic every PDF starts with.
var pdfHeader = []byte("%PDF-")

// baseDPI is the PDF user-space resolution; Scale multiplies it.
const baseDPI = 72.0

type Config struct {
	Pdftoppm  string  // binary name or absolute path; if empty -> "pdftoppm"
	Pdfinfo   string  // binary name or absolute path; if empty -> "pdfinfo"
	Scale     float64 // magnification over 72 DPI, default 2.5
	MaxPixels int     // longest side cap after rendering; 0 = no cap
}

type Renderer struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewRenderer(cfg Config, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return NewRendererWithRunner(cfg, execRunner{logger: logger}, logger)
}

// NewRendererWithRunner is NewRenderer with an injected command runner.
func NewRendererWithRunner(cfg Config, runner Runner, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Pdfinfo == "" {
		cfg.Pdfinfo = "pdfinfo"
	}
	if cfg.Scale <= 0 {
		cfg.Scale = 2.5
	}
	return &Renderer{cfg: cfg, runner: runner, logger: logger}
}

// DPI is the rasterization resolution implied by Scale.
func (r *Renderer) DPI() int {
	return int(math.Round(baseDPI * r.cfg.Scale))
}

// PageCount returns the number of pages in the document.
func (r *Renderer) PageCount(ctx context.Context, data []byte) (int, error) {
	doc, err := r.open(data)
	if err != nil {
		return 0, err
	}
	defer doc.close(r.logger)
	return r.pageCount(ctx, doc.path)
}

// RenderPage rasterizes the 1-based page to PNG at the configured scale.
func (r *Renderer) RenderPage(ctx context.Context, data []byte, page int) ([]byte, error) {
	if page < 1 {
		return nil, fmt.Errorf("%w: page %d", ErrPageOutOfRange, page)
	}
	doc, err := r.open(data)
	if err != nil {
		return nil, err
	}
	defer doc.close(r.logger)

	n, err := r.pageCount(ctx, doc.path)
	if err != nil {
		return nil, err
	}
	if page > n {
		return nil, fmt.Errorf("%w: page %d of %d", ErrPageOutOfRange, page, n)
	}

	prefix := filepath.Join(doc.dir, "page")
	p := strconv.Itoa(page)
	// pdftoppm -f N -l N -r DPI -png -singlefile <in.pdf> <tmp/page>  -> tmp/page.png
	if _, err := r.runner.Run(ctx, r.cfg.Pdftoppm,
		"-f", p, "-l", p, "-r", strconv.Itoa(r.DPI()), "-png", "-singlefile", doc.path, prefix); err != nil {
		return nil, toolError(ctx, err)
	}

	img, err := os.ReadFile(prefix + ".png")
	if err != nil || len(img) == 0 {
		return nil, fmt.Errorf("%w: pdftoppm produced no image for page %d", ErrRender, page)
	}

	out, err := fitImage(img, r.cfg.MaxPixels)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}
	r.logger.Debug("pdf page rendered", "page", page, "pages", n, "dpi", r.DPI(), "bytes", len(out))
	return out, nil
}

func (r *Renderer) pageCount(ctx context.Context, path string) (int, error) {
	out, err := r.runner.Run(ctx, r.cfg.Pdfinfo, path)
	if err != nil {
		return 0, toolError(ctx, err)
	}
	n, ok := parsePages(out)
	if !ok || n < 1 {
		return 0, fmt.Errorf("%w: could not determine page count", ErrRender)
	}
	return n, nil
}

// toolError prefers the context error, since a killed tool only reports
// "signal: killed".
func toolError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %w", ErrRender, err)
}

// parsePages reads the "Pages:" line of pdfinfo output.
func parsePages(out []byte) (int, bool) {
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if rest, ok := strings.CutPrefix(line, "Pages:"); ok {
			n, err := strconv.Atoi(strings.TrimSpace(rest))
			return n, err == nil
		}
	}
	return 0, false
}

type tempDoc struct {
	dir  string
	path string
}

func (r *Renderer) open(data []byte) (*tempDoc, error) {
	if !bytes.HasPrefix(data, pdfHeader) {
		return nil, fmt.Errorf("%w: missing %%PDF- header", ErrRender)
	}
	dir, err := os.MkdirTemp("", "inbox-pdf-*")
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "in.pdf")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	return &tempDoc{dir: dir, path: path}, nil
}

func (d *tempDoc) close(logger *slog.Logger) {
	if err := os.RemoveAll(d.dir); err != nil {
		logger.Warn("failed to remove temp dir", "dir", d.dir, "error", err)
	}
}
