package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// ErrDecode indicates that input bytes could not be decoded into a bitmap.
// It is recoverable; the caller may retry with a different file.
var ErrDecode = errors.New("imaging: undecodable image data")

// Bitmap is the canonical in-memory pixel representation used by the rest
// of the pipeline. Whatever the source (camera frame, upload, PDF page),
// the pixels are held as encoded PNG so every consumer sees one format.
type Bitmap struct {
	Width  int
	Height int
	PNG    []byte
}

// Normalize decodes arbitrary input bytes into a canonical Bitmap.
//
// Supported inputs: JPEG, PNG, GIF, HEIC/HEIF (common on iPhones) and PDF
// (first page rendered). Normalize is a pure transformation: identical
// bytes always yield an identical Bitmap. Corrupt or unsupported input
// returns an error wrapping ErrDecode.
func Normalize(data []byte, contentType string) (*Bitmap, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	var img image.Image
	var err error

	switch {
	case mimeType == "application/pdf":
		img, err = pdfToImage(data)
		if err != nil {
			return nil, fmt.Errorf("%w: rendering PDF: %v", ErrDecode, err)
		}
	case isHEICFormat(data) || isHEICMimeType(mimeType):
		img, err = heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: decoding HEIC/HEIF image: %v", ErrDecode, err)
		}
	default:
		img, _, err = image.Decode(bytes.NewReader(data))
		if err != nil {
			if strings.Contains(err.Error(), "unknown format") || strings.Contains(err.Error(), "unsupported") {
				return nil, fmt.Errorf("%w: unsupported format (supported: JPEG, PNG, GIF, HEIC, HEIF, PDF): %v", ErrDecode, err)
			}
			return nil, fmt.Errorf("%w: decoding image: %v", ErrDecode, err)
		}
	}

	return fromImage(img)
}

// FromRGB builds a Bitmap from a raw packed-RGB frame, the format camera
// devices deliver. The byte length must be exactly width*height*3.
func FromRGB(rgb []byte, width, height int) (*Bitmap, error) {
	if width <= 0 || height <= 0 || len(rgb) != width*height*3 {
		return nil, fmt.Errorf("%w: RGB frame size mismatch (got %d bytes for %dx%d)", ErrDecode, len(rgb), width, height)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		img.Pix[i*4+0] = rgb[i*3+0]
		img.Pix[i*4+1] = rgb[i*3+1]
		img.Pix[i*4+2] = rgb[i*3+2]
		img.Pix[i*4+3] = 0xff
	}

	return fromImage(img)
}

// fromImage encodes a decoded image as the canonical PNG bitmap
func fromImage(img image.Image) (*Bitmap, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%w: encoding PNG: %v", ErrDecode, err)
	}

	bounds := img.Bounds()
	return &Bitmap{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		PNG:    buf.Bytes(),
	}, nil
}

// pdfToImage renders the first page of a PDF to an image
func pdfToImage(pdfData []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	// Most food labels and delivery notes are single page
	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

// isHEICFormat checks the ftyp box for HEIC/HEIF brands. Go's standard
// image package does not support the format, so it is sniffed up front.
func isHEICFormat(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	if string(data[4:8]) == "ftyp" {
		brand := string(data[8:12])
		if brand == "heic" || brand == "heif" || brand == "mif1" || brand == "msf1" {
			return true
		}
	}
	return false
}

// isHEICMimeType checks if the MIME type indicates HEIC/HEIF format
func isHEICMimeType(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	return mimeType == "image/heic" || mimeType == "image/heif" ||
		strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

// ContentTypeForFilename maps a filename extension to a MIME type when the
// upload did not carry one.
func ContentTypeForFilename(filename string) string {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	case strings.HasSuffix(lower, ".gif"):
		return "image/gif"
	case strings.HasSuffix(lower, ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(lower, ".heic"):
		return "image/heic"
	case strings.HasSuffix(lower, ".heif"):
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}
