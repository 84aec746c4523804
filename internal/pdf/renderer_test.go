package pdf

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeRunner answers pdfinfo with a fixed page count and makes pdftoppm write
// a solid PNG of the given size to <prefix>.png.
type fakeRunner struct {
	pages   int
	w, h    int
	failPPM bool

	mu    sync.Mutex
	calls [][]string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()

	switch name {
	case "pdfinfo":
		return []byte("Producer: test\nPages:          " + strconv.Itoa(f.pages) + "\nEncrypted: no\n"), nil
	case "pdftoppm":
		if f.failPPM {
			return nil, newExecError(name, errors.New("exit status 1"), []byte("Syntax Error: broken xref\n"))
		}
		prefix := args[len(args)-1]
		img := imaging.New(f.w, f.h, color.White)
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return nil, err
		}
		return nil, os.WriteFile(prefix+".png", buf.Bytes(), 0o600)
	}
	return nil, errors.New("unexpected command " + name)
}

var fakePDF = []byte("%PDF-1.4\n%fake\n")

func TestRenderPageUsesScaleDPI(t *testing.T) {
	run := &fakeRunner{pages: 2, w: 100, h: 140}
	r := NewRendererWithRunner(Config{Scale: 2.5}, run, quiet)
	require.Equal(t, 180, r.DPI())

	out, err := r.RenderPage(context.Background(), fakePDF, 2)
	require.NoError(t, err)
	require.NotEmpty(t, out)

	ppm := run.calls[len(run.calls)-1]
	require.Equal(t, "pdftoppm", ppm[0])
	require.Equal(t, []string{"-f", "2", "-l", "2", "-r", "180", "-png", "-singlefile"}, ppm[1:9])
}

func TestRenderPageOutOfRange(t *testing.T) {
	r := NewRendererWithRunner(Config{}, &fakeRunner{pages: 2, w: 10, h: 10}, quiet)

	_, err := r.RenderPage(context.Background(), fakePDF, 3)
	require.ErrorIs(t, err, ErrPageOutOfRange)

	_, err = r.RenderPage(context.Background(), fakePDF, 0)
	require.ErrorIs(t, err, ErrPageOutOfRange)
}

func TestMalformedInputIsRenderError(t *testing.T) {
	run := &fakeRunner{pages: 1, w: 10, h: 10}
	r := NewRendererWithRunner(Config{}, run, quiet)

	_, err := r.PageCount(context.Background(), []byte("<html>not a pdf</html>"))
	require.ErrorIs(t, err, ErrRender)
	_, err = r.RenderPage(context.Background(), nil, 1)
	require.ErrorIs(t, err, ErrRender)
	require.Empty(t, run.calls)
}

func TestPdftoppmFailureIsRenderError(t *testing.T) {
	r := NewRendererWithRunner(Config{}, &fakeRunner{pages: 1, failPPM: true}, quiet)
	_, err := r.RenderPage(context.Background(), fakePDF, 1)
	require.ErrorIs(t, err, ErrRender)
	var xerr *ExecError
	require.ErrorAs(t, err, &xerr)
	require.Equal(t, "pdftoppm", xerr.Tool)
	require.Equal(t, "Syntax Error: broken xref", xerr.Stderr)
	require.Contains(t, err.Error(), "broken xref")
}

func TestExecErrorKeepsStderrTail(t *testing.T) {
	long := strings.Repeat("x", 300) + "final line"
	xerr := newExecError("pdfinfo", errors.New("exit status 1"), []byte(long))
	require.Len(t, xerr.Stderr, maxStderr)
	require.True(t, strings.HasSuffix(xerr.Stderr, "final line"))
	require.Equal(t, "pdfinfo: exit status 1", newExecError("pdfinfo", errors.New("exit status 1"), nil).Error())
}

func TestExecRunnerReportsMissingTool(t *testing.T) {
	r := execRunner{logger: quiet}
	_, err := r.Run(context.Background(), "inbox-ledger-no-such-tool")
	var xerr *ExecError
	require.ErrorAs(t, err, &xerr)
	require.Equal(t, "inbox-ledger-no-such-tool", xerr.Tool)
}

func TestRenderPageCapsLongestSide(t *testing.T) {
	r := NewRendererWithRunner(Config{MaxPixels: 50}, &fakeRunner{pages: 1, w: 100, h: 200}, quiet)
	out, err := r.RenderPage(context.Background(), fakePDF, 1)
	require.NoError(t, err)

	img, err := imaging.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 25, 50), img.Bounds())
}

func TestRenderPageCleansUpTempFiles(t *testing.T) {
	run := &fakeRunner{pages: 1, w: 10, h: 10}
	r := NewRendererWithRunner(Config{}, run, quiet)
	_, err := r.RenderPage(context.Background(), fakePDF, 1)
	require.NoError(t, err)

	in := run.calls[0][1]
	_, statErr := os.Stat(filepath.Dir(in))
	require.True(t, os.IsNotExist(statErr))
}

func TestParsePages(t *testing.T) {
	n, ok := parsePages([]byte("Title: x\nPages:   12\n"))
	require.True(t, ok)
	require.Equal(t, 12, n)

	_, ok = parsePages([]byte("Title: x\n"))
	require.False(t, ok)
}

// minimalPDF is a one-page document poppler can open (it rebuilds the xref).
const minimalPDF = `%PDF-1.4
1 0 obj << /Type /Catalog /Pages 2 0 R >> endobj
2 0 obj << /Type /Pages /Kids [3 0 R] /Count 1 >> endobj
3 0 obj << /Type /Page /Parent 2 0 R /MediaBox [0 0 200 100] >> endobj
trailer << /Root 1 0 R >>
%%EOF
`

func TestRenderWithPoppler(t *testing.T) {
	for _, bin := range []string{"pdftoppm", "pdfinfo"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not installed", bin)
		}
	}
	r := NewRenderer(Config{Scale: 2.5}, quiet)

	n, err := r.PageCount(context.Background(), []byte(minimalPDF))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	out, err := r.RenderPage(context.Background(), []byte(minimalPDF), 1)
	require.NoError(t, err)
	img, err := imaging.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	require.Equal(t, 500, img.Bounds().Dx())

	_, err = r.RenderPage(context.Background(), []byte(minimalPDF), 2)
	require.ErrorIs(t, err, ErrPageOutOfRange)
}
