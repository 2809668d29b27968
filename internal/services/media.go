package services

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"mime"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrUnsupportedMedia is returned for anything that is not a readable image
// or PDF.
var ErrUnsupportedMedia = errors.New("unsupported media type")

// MediaInfo describes a validated upload.
type MediaInfo struct {
	MIMEType string
	PDF      bool
	Pages    int
	Format   string
	Width    int
	Height   int
}

// InspectMedia checks that contentType is an image or PDF type and that data
// is readable as such. Image formats without a registered decoder (HEIC, for
// example) are accepted on the declared type alone.
func InspectMedia(contentType string, data []byte) (MediaInfo, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return MediaInfo{}, fmt.Errorf("%w: %q", ErrUnsupportedMedia, contentType)
	}
	mediaType = strings.ToLower(mediaType)
	if len(data) == 0 {
		return MediaInfo{}, fmt.Errorf("%w: empty file", ErrUnsupportedMedia)
	}

	switch {
	case mediaType == "application/pdf":
		return inspectPDF(data)
	case strings.HasPrefix(mediaType, "image/"):
		return inspectImage(mediaType, data)
	}
	return MediaInfo{}, fmt.Errorf("%w: %s", ErrUnsupportedMedia, mediaType)
}

func inspectPDF(data []byte) (MediaInfo, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	if err := api.Validate(bytes.NewReader(data), conf); err != nil {
		return MediaInfo{}, fmt.Errorf("%w: invalid PDF: %v", ErrUnsupportedMedia, err)
	}
	pages, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return MediaInfo{}, fmt.Errorf("%w: failed to count PDF pages: %v", ErrUnsupportedMedia, err)
	}
	return MediaInfo{MIMEType: "application/pdf", PDF: true, Pages: pages, Format: "pdf"}, nil
}

func inspectImage(mediaType string, data []byte) (MediaInfo, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if errors.Is(err, image.ErrFormat) {
		return MediaInfo{MIMEType: mediaType}, nil
	}
	if err != nil {
		return MediaInfo{}, fmt.Errorf("%w: unreadable image: %v", ErrUnsupportedMedia, err)
	}
	return MediaInfo{MIMEType: mediaType, Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}
