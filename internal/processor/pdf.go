// pdf.go - PDF page rasterization (pdfcpu validation + poppler pdftoppm)

package processor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"

	apperrors "github.com/bosocmputer/invoice_scanner/internal/errors"
)

// Rasterizer renders every page of a PDF to a JPEG file and returns the
// file paths in page order.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdfPath string, dpi int) ([]string, error)
}

// PDFToppm rasterizes with poppler's pdftoppm after checking the document
// with pdfcpu.
type PDFToppm struct {
	Binary string
	logger *zap.Logger
}

func NewPDFToppm(logger *zap.Logger) *PDFToppm {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PDFToppm{Binary: "pdftoppm", logger: logger}
}

// PageCount validates the PDF and returns its number of pages.
func PageCount(pdfPath string) (int, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		return 0, fmt.Errorf("pdfcpu read: %w", err)
	}
	return ctx.PageCount, nil
}

// Rasterize writes <pdfPath>_page-N.jpg for every page.
func (p *PDFToppm) Rasterize(ctx context.Context, pdfPath string, dpi int) ([]string, error) {
	pages, err := PageCount(pdfPath)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrPDFRasterize.Code, "invalid PDF")
	}

	bin, err := exec.LookPath(p.Binary)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrPDFRasterize.Code, "pdftoppm not found (install poppler-utils)")
	}

	prefix := pdfPath + "_page"
	args := []string{
		"-jpeg",
		"-r", strconv.Itoa(dpi),
		pdfPath,
		prefix,
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		return nil, apperrors.Wrap(fmt.Errorf("%w: %s", err, msg), apperrors.ErrPDFRasterize.Code, apperrors.ErrPDFRasterize.Message)
	}

	files, err := filepath.Glob(escapeGlob(prefix) + "-*.jpg")
	if err != nil {
		return nil, err
	}
	files = SortPages(files, prefix)
	if len(files) != pages {
		p.logger.Warn("pdftoppm page count differs from pdfcpu",
			zap.String("file", pdfPath),
			zap.Int("expected", pages),
			zap.Int("rendered", len(files)),
		)
	}
	return files, nil
}

// SortPages orders "<prefix>-N.jpg" files by N. pdftoppm zero-pads N to the
// width of the page count, which breaks lexical order past page 9 for
// mixed widths.
func SortPages(files []string, prefix string) []string {
	num := func(f string) int {
		s := strings.TrimSuffix(strings.TrimPrefix(f, prefix+"-"), ".jpg")
		n, err := strconv.Atoi(s)
		if err != nil {
			return -1
		}
		return n
	}
	out := make([]string, 0, len(files))
	for _, f := range files {
		if num(f) > 0 {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return num(out[i]) < num(out[j]) })
	return out
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`, `\`, `\\`)
	return r.Replace(s)
}
