// imageprocessor.go - Normalizes scanned documents into JPEG attachments for vision models

package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"

	"github.com/bosocmputer/invoice_scanner/internal/common"
	apperrors "github.com/bosocmputer/invoice_scanner/internal/errors"
	"github.com/bosocmputer/invoice_scanner/internal/workpool"
)

// MediaTypeJPEG is the only media type the normalizer produces.
const MediaTypeJPEG = "image/jpeg"

// DocumentKind is how a file is turned into pages.
type DocumentKind int

const (
	KindImage DocumentKind = iota
	KindHEIF
	KindPDF
)

func (k DocumentKind) String() string {
	switch k {
	case KindPDF:
		return "pdf"
	case KindHEIF:
		return "heif"
	default:
		return "image"
	}
}

var imageExtensions = map[string]DocumentKind{
	".jpg":  KindImage,
	".jpeg": KindImage,
	".png":  KindImage,
	".gif":  KindImage,
	".bmp":  KindImage,
	".tif":  KindImage,
	".tiff": KindImage,
	".webp": KindImage,
	".heic": KindHEIF,
	".heif": KindHEIF,
	".pdf":  KindPDF,
}

// KindOf classifies path by its extension, case-insensitively.
func KindOf(path string) (DocumentKind, error) {
	ext := strings.ToLower(filepath.Ext(path))
	kind, ok := imageExtensions[ext]
	if !ok {
		return 0, apperrors.New(apperrors.ErrUnsupportedFile.Code, fmt.Sprintf("unsupported file type %q", ext))
	}
	return kind, nil
}

// Options controls resizing and encoding.
type Options struct {
	// MaxDimension bounds the longest edge. Larger images are scaled down to it.
	MaxDimension int
	// Scale is applied to images within the bound when it is not 1.
	Scale       float64
	JPEGQuality int
	DPI         int
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		MaxDimension: 2000,
		Scale:        1,
		JPEGQuality:  90,
		DPI:          200,
	}
}

// Attachment is one normalized page.
type Attachment struct {
	Page      int
	Path      string
	MediaType string
	Data      []byte
	Width     int
	Height    int
}

// Normalizer converts documents into ordered JPEG attachments. Pixel work
// runs on the shared pool so concurrent scans do not starve each other.
type Normalizer struct {
	opts   Options
	pool   *workpool.Pool
	raster Rasterizer
	logger *zap.Logger
}

// NewNormalizer wires a normalizer. A nil rasterizer means pdftoppm.
func NewNormalizer(opts Options, pool *workpool.Pool, raster Rasterizer, logger *zap.Logger) *Normalizer {
	def := DefaultOptions()
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = def.MaxDimension
	}
	if opts.Scale <= 0 {
		opts.Scale = def.Scale
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = def.JPEGQuality
	}
	if opts.DPI <= 0 {
		opts.DPI = def.DPI
	}
	if pool == nil {
		pool = workpool.New(0)
	}
	if raster == nil {
		raster = NewPDFToppm(logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{opts: opts, pool: pool, raster: raster, logger: logger}
}

// Normalize returns one attachment per page of path, in page order. The
// page images and the "_processed.jpg" files are left on disk for the caller.
func (n *Normalizer) Normalize(ctx context.Context, path string) ([]Attachment, error) {
	kind, err := KindOf(path)
	if err != nil {
		return nil, err
	}
	rc := common.FromContext(ctx)
	logger := rc.Logger(n.logger)

	sources := []string{path}
	if kind == KindPDF {
		var pages []string
		end := rc.StartSubStep("rasterize_pdf")
		err := n.pool.Do(ctx, func(ctx context.Context) error {
			var rerr error
			pages, rerr = n.raster.Rasterize(ctx, path, n.opts.DPI)
			return rerr
		})
		end(fmt.Sprintf("%d pages at %d dpi", len(pages), n.opts.DPI))
		if err != nil {
			if apperrors.IsAppError(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, apperrors.Wrap(err, apperrors.ErrPDFRasterize.Code, apperrors.ErrPDFRasterize.Message)
		}
		if len(pages) == 0 {
			return nil, apperrors.New(apperrors.ErrPDFRasterize.Code, "PDF has no pages")
		}
		logger.Debug("pdf rasterized", zap.String("file", path), zap.Int("pages", len(pages)))
		sources = pages
	}

	return workpool.Map(ctx, n.pool, len(sources), func(ctx context.Context, i int) (Attachment, error) {
		if err := ctx.Err(); err != nil {
			return Attachment{}, err
		}
		srcKind := kind
		if kind == KindPDF {
			srcKind = KindImage
		}
		end := rc.StartSubStep(fmt.Sprintf("page_%d", i+1))
		att, err := n.processImage(sources[i], srcKind, logger)
		if err != nil {
			end(err.Error())
			return Attachment{}, err
		}
		end(fmt.Sprintf("%dx%d, %d bytes", att.Width, att.Height, len(att.Data)))
		att.Page = i + 1
		return att, nil
	})
}

func (n *Normalizer) processImage(path string, kind DocumentKind, logger *zap.Logger) (Attachment, error) {
	img, err := loadImage(path, kind)
	if err != nil {
		return Attachment{}, err
	}

	img = flatten(img)
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	img = resize(img, n.opts.MaxDimension, n.opts.Scale)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(n.opts.JPEGQuality)); err != nil {
		return Attachment{}, fmt.Errorf("failed to encode processed image: %w", err)
	}

	out := path + "_processed.jpg"
	if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
		return Attachment{}, fmt.Errorf("failed to write processed image: %w", err)
	}

	b := img.Bounds()
	logger.Debug("image normalized",
		zap.String("file", path),
		zap.Int("src_width", w),
		zap.Int("src_height", h),
		zap.Int("width", b.Dx()),
		zap.Int("height", b.Dy()),
		zap.Int("bytes", buf.Len()),
	)

	return Attachment{
		Path:      out,
		MediaType: MediaTypeJPEG,
		Data:      buf.Bytes(),
		Width:     b.Dx(),
		Height:    b.Dy(),
	}, nil
}

func loadImage(path string, kind DocumentKind) (image.Image, error) {
	if kind == KindHEIF {
		return decodeHEIF(path)
	}
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrImageDecode.Code, fmt.Sprintf("failed to decode image %s", filepath.Base(path)))
	}
	return img, nil
}

// flatten composites images that may carry transparency onto white.
func flatten(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

// TargetSize returns the dimensions resize produces for a w x h source.
func TargetSize(w, h, maxDim int, scale float64) (int, int) {
	switch {
	case maxDim > 0 && (w > maxDim || h > maxDim):
		if w >= h {
			return maxDim, keepAspect(h, w, maxDim)
		}
		return keepAspect(w, h, maxDim), maxDim
	case scale > 0 && scale != 1:
		return max(1, int(float64(w)*scale)), max(1, int(float64(h)*scale))
	default:
		return w, h
	}
}

func keepAspect(side, longest, target int) int {
	v := int(float64(side)*float64(target)/float64(longest) + 0.5)
	return max(1, v)
}

func resize(img image.Image, maxDim int, scale float64) image.Image {
	b := img.Bounds()
	w, h := TargetSize(b.Dx(), b.Dy(), maxDim, scale)
	if w == b.Dx() && h == b.Dy() {
		return img
	}
	return imaging.Resize(img, w, h, imaging.Lanczos)
}
