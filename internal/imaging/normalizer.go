package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

// AllowedTypes is the upload acceptor's MIME allow-list. Anything outside it
// must be rejected before normalization starts.
var AllowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/webp": true,
}

// Upload is one raw multipart file part, request-scoped.
type Upload struct {
	OriginalName string
	MimeType     string
	Data         []byte
}

// Normalized is the per-file output of the normalizer: a PNG letterboxed
// into the target canvas, plus its base64 encoding for inline API payloads.
type Normalized struct {
	OriginalName string
	MimeType     string
	FileName     string
	PNG          []byte
	Base64       string
}

// Normalizer letterboxes arbitrary images into a fixed canvas, preserving
// aspect ratio and padding with a solid background.
type Normalizer struct {
	width      int
	height     int
	background color.Color
}

func NewNormalizer(width, height int) *Normalizer {
	return &Normalizer{
		width:      width,
		height:     height,
		background: color.White,
	}
}

// Normalize decodes one upload and redraws it centered on the target canvas.
func (n *Normalizer) Normalize(upload Upload) (*Normalized, error) {
	src, err := decode(upload.MimeType, upload.Data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", upload.OriginalName, err)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, n.width, n.height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(n.background), image.Point{}, draw.Src)

	srcBounds := src.Bounds()
	srcW := srcBounds.Dx()
	srcH := srcBounds.Dy()
	if srcW <= 0 || srcH <= 0 {
		return nil, fmt.Errorf("decode %s: empty image", upload.OriginalName)
	}

	scale := min(float64(n.width)/float64(srcW), float64(n.height)/float64(srcH))
	dstW := int(float64(srcW) * scale)
	dstH := int(float64(srcH) * scale)
	if dstW < 1 {
		dstW = 1
	}
	if dstH < 1 {
		dstH = 1
	}
	offsetX := (n.width - dstW) / 2
	offsetY := (n.height - dstH) / 2
	target := image.Rect(offsetX, offsetY, offsetX+dstW, offsetY+dstH)

	draw.CatmullRom.Scale(canvas, target, src, srcBounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("encode %s: %w", upload.OriginalName, err)
	}

	data := buf.Bytes()
	return &Normalized{
		OriginalName: upload.OriginalName,
		MimeType:     "image/png",
		FileName:     uuid.NewString() + ".png",
		PNG:          data,
		Base64:       base64.StdEncoding.EncodeToString(data),
	}, nil
}

// NormalizeAll processes a batch all-or-nothing: the first failure aborts.
func (n *Normalizer) NormalizeAll(uploads []Upload) ([]Normalized, error) {
	normalized := make([]Normalized, 0, len(uploads))
	for _, upload := range uploads {
		record, err := n.Normalize(upload)
		if err != nil {
			return nil, err
		}
		normalized = append(normalized, *record)
	}
	return normalized, nil
}

// decode picks the decoder from the declared MIME type. Browsers sometimes
// misreport the content type, so a failed decode is retried as PNG before
// the file is given up on.
func decode(mimeType string, data []byte) (image.Image, error) {
	var (
		img image.Image
		err error
	)
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		img, err = jpeg.Decode(bytes.NewReader(data))
	case "image/png":
		img, err = png.Decode(bytes.NewReader(data))
	case "image/webp":
		img, err = webp.Decode(bytes.NewReader(data))
	default:
		img, _, err = image.Decode(bytes.NewReader(data))
	}
	if err == nil {
		return img, nil
	}

	fallback, fallbackErr := png.Decode(bytes.NewReader(data))
	if fallbackErr == nil {
		return fallback, nil
	}
	return nil, err
}
