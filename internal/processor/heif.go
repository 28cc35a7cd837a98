// heif.go - HEIF/HEIC decoding

package processor

import (
	"fmt"
	"image"
	"os"

	"github.com/jdeng/goheif"

	apperrors "github.com/bosocmputer/invoice_scanner/internal/errors"
)

func decodeHEIF(path string) (img image.Image, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrHEIFDecode.Code, apperrors.ErrHEIFDecode.Message)
	}
	defer f.Close()

	// goheif panics on some truncated or unsupported streams.
	defer func() {
		if r := recover(); r != nil {
			img = nil
			err = apperrors.Wrap(fmt.Errorf("%v", r), apperrors.ErrHEIFDecode.Code, apperrors.ErrHEIFDecode.Message)
		}
	}()

	img, err = goheif.Decode(f)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrHEIFDecode.Code, apperrors.ErrHEIFDecode.Message)
	}
	return img, nil
}
