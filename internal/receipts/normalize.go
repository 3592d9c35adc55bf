// Package receipts stores payment receipt attachments (photos or PDFs) and
// returns a public reference for each.
package receipts

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

const (
	MaxUploadSize = 5 * 1024 * 1024
	maxSide       = 1600
	webpQuality   = 80
)

var (
	ErrUnsupported = errors.New("receipts: unsupported file type")
	ErrTooLarge    = errors.New("receipts: file too large")
	ErrEmpty       = errors.New("receipts: empty file")
)

// File is a normalized attachment ready to be stored.
type File struct {
	Data        []byte
	ContentType string
	Ext         string
}

// Normalize converts JPEG and PNG photos to WebP bounded to maxSide pixels.
// PDFs and WebP pass through untouched; anything else is rejected.
func Normalize(data []byte) (File, error) {
	if len(data) == 0 {
		return File{}, ErrEmpty
	}
	if len(data) > MaxUploadSize {
		return File{}, ErrTooLarge
	}

	mt := mimetype.Detect(data)
	switch {
	case mt.Is("application/pdf"):
		return File{Data: data, ContentType: "application/pdf", Ext: "pdf"}, nil
	case mt.Is("image/webp"):
		return File{Data: data, ContentType: "image/webp", Ext: "webp"}, nil
	case mt.Is("image/jpeg"), mt.Is("image/png"):
		out, err := toWebP(data)
		if err != nil {
			return File{}, err
		}
		return File{Data: out, ContentType: "image/webp", Ext: "webp"}, nil
	default:
		return File{}, fmt.Errorf("%w: %s", ErrUnsupported, mt.String())
	}
}

func toWebP(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode receipt image: %w", err)
	}
	img = fit(img)

	buf := new(bytes.Buffer)
	if err := webp.Encode(buf, img, &webp.Options{Quality: webpQuality}); err != nil {
		return nil, fmt.Errorf("encode receipt webp: %w", err)
	}
	return buf.Bytes(), nil
}

func fit(img image.Image) image.Image {
	b := img.Bounds()
	if b.Dx() <= maxSide && b.Dy() <= maxSide {
		return img
	}
	return imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
}

// Key lays receipts out per student, ej: receipts/<student>/1741353600000.webp
func Key(studentID uuid.UUID, at time.Time, ext string) string {
	return fmt.Sprintf("receipts/%s/%d.%s", studentID, at.UnixMilli(), ext)
}
