package preprocess

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ErrNoTextTool means the pdftotext binary is not installed. Processing
// continues with the text found in the PDF content streams.
var ErrNoTextTool = eris.New("pdftotext not installed")

// DefaultTextTimeout bounds one pdftotext run.
const DefaultTextTimeout = 30 * time.Second

// Poppler reads the text layer of an order PDF with poppler's pdftotext.
// Layout mode keeps the columns of pickup/delivery tables on one line, and
// UTF-8 output preserves diacritics in addresses and company names.
type Poppler struct {
	bin     string
	timeout time.Duration
}

// NewPoppler creates a Poppler. An empty bin means "pdftotext" on PATH and
// a non-positive timeout means DefaultTextTimeout.
func NewPoppler(bin string, timeout time.Duration) *Poppler {
	if bin == "" {
		bin = "pdftotext"
	}
	if timeout <= 0 {
		timeout = DefaultTextTimeout
	}
	return &Poppler{bin: bin, timeout: timeout}
}

// ExtractText returns the text of every page, without page breaks.
func (p *Poppler) ExtractText(ctx context.Context, pdfPath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.bin, "-layout", "-enc", "UTF-8", "-nopgbrk", pdfPath, "-")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	switch {
	case err == nil:
		return stdout.String(), nil
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return "", eris.Wrapf(ErrNoTextTool, "preprocess: %s", p.bin)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "", eris.Wrapf(ctx.Err(), "preprocess: pdftotext timed out after %s on %s", p.timeout, filepath.Base(pdfPath))
	default:
		return "", eris.Wrapf(err, "preprocess: pdftotext failed on %s: %s", filepath.Base(pdfPath), strings.TrimSpace(stderr.String()))
	}
}
