package decoder

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/wb-go/wbf/zlog"
	"github.com/yokitheyo/imageenhancer/internal/config"
	"github.com/yokitheyo/imageenhancer/internal/domain"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// formatAliases maps sniffed MIME subtypes onto the names used in
// ingestion.supported_formats.
var formatAliases = map[string]string{
	"jpg":      "jpeg",
	"x-ms-bmp": "bmp",
	"x-bmp":    "bmp",
	"tif":      "tiff",
}

type ImageDecoder struct {
	maxBytes  int64
	maxPixels int64
	formats   map[string]struct{}
}

var _ domain.Decoder = (*ImageDecoder)(nil)

func NewImageDecoder(cfg *config.IngestionConfig) *ImageDecoder {
	formats := make(map[string]struct{}, len(cfg.SupportedFormats))
	for _, f := range cfg.SupportedFormats {
		formats[normalizeFormat(f)] = struct{}{}
	}
	zlog.Logger.Info().
		Int64("max_bytes", cfg.MaxUploadBytes()).
		Int64("max_pixels", cfg.MaxPixels).
		Strs("supported_formats", cfg.SupportedFormats).
		Msg("ImageDecoder initialized")
	return &ImageDecoder{
		maxBytes:  cfg.MaxUploadBytes(),
		maxPixels: cfg.MaxPixels,
		formats:   formats,
	}
}

func (d *ImageDecoder) MaxBytes() int64 {
	return d.maxBytes
}

func (d *ImageDecoder) Decode(ctx context.Context, filename, declaredMime string, data []byte) (*domain.UploadedImage, error) {
	if len(data) == 0 {
		zlog.Logger.Warn().Str("filename", filename).Msg("empty upload")
		return nil, domain.NewIngestionError(domain.IngestionUnreadableFile, "file is empty", nil)
	}
	if d.maxBytes > 0 && int64(len(data)) > d.maxBytes {
		zlog.Logger.Warn().
			Str("filename", filename).
			Int("size", len(data)).
			Int64("max_bytes", d.maxBytes).
			Msg("upload exceeds size limit")
		return nil, domain.NewIngestionError(domain.IngestionTooLarge,
			fmt.Sprintf("%d bytes exceeds the %d byte limit", len(data), d.maxBytes), nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, domain.NewIngestionError(domain.IngestionUnreadableFile, "read cancelled", err)
	}

	mt := mimetype.Detect(data)
	format, ok := imageFormat(mt)
	if !ok {
		zlog.Logger.Warn().
			Str("filename", filename).
			Str("declared_mime", declaredMime).
			Str("detected_mime", mt.String()).
			Msg("upload is not an image")
		return nil, domain.NewIngestionError(domain.IngestionUnsupportedFormat,
			fmt.Sprintf("detected %s", mt.String()), nil)
	}
	if _, allowed := d.formats[format]; !allowed {
		zlog.Logger.Warn().
			Str("filename", filename).
			Str("format", format).
			Msg("image format not enabled")
		return nil, domain.NewIngestionError(domain.IngestionUnsupportedFormat,
			fmt.Sprintf("format %s is not supported", format), nil)
	}

	// Dimensions come from the header alone, before any pixel buffer is allocated.
	header, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		zlog.Logger.Warn().Err(err).Str("filename", filename).Str("format", format).Msg("failed to read image header")
		return nil, domain.NewIngestionError(domain.IngestionUnreadableFile, "invalid image header", err)
	}
	if header.Width <= 0 || header.Height <= 0 {
		zlog.Logger.Warn().Str("filename", filename).Msg("image header has no pixels")
		return nil, domain.NewIngestionError(domain.IngestionUnreadableFile, "image has no pixels", nil)
	}
	if pixels := int64(header.Width) * int64(header.Height); d.maxPixels > 0 && pixels > d.maxPixels {
		zlog.Logger.Warn().
			Str("filename", filename).
			Int("width", header.Width).
			Int("height", header.Height).
			Int64("max_pixels", d.maxPixels).
			Msg("image dimensions exceed pixel limit")
		return nil, domain.NewIngestionError(domain.IngestionTooLarge,
			fmt.Sprintf("%dx%d exceeds the %d pixel limit", header.Width, header.Height, d.maxPixels), nil)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		zlog.Logger.Warn().Err(err).Str("filename", filename).Str("format", format).Msg("failed to decode image")
		return nil, domain.NewIngestionError(domain.IngestionUnreadableFile, "decode failed", err)
	}
	width, height := img.Bounds().Dx(), img.Bounds().Dy()
	if width == 0 || height == 0 {
		zlog.Logger.Warn().Str("filename", filename).Msg("decoded image is empty")
		return nil, domain.NewIngestionError(domain.IngestionUnreadableFile, "image has no pixels", nil)
	}

	if declaredMime != "" && !strings.EqualFold(declaredMime, mt.String()) {
		zlog.Logger.Debug().
			Str("filename", filename).
			Str("declared_mime", declaredMime).
			Str("detected_mime", mt.String()).
			Msg("declared content type differs from content")
	}

	zlog.Logger.Info().
		Str("filename", filename).
		Str("mime", mt.String()).
		Int("width", width).
		Int("height", height).
		Int("size", len(data)).
		Msg("image decoded successfully")

	return &domain.UploadedImage{
		Filename: filename,
		MimeType: mt.String(),
		Format:   format,
		Size:     int64(len(data)),
		Width:    width,
		Height:   height,
		Data:     data,
		Pixels:   img,
	}, nil
}

func imageFormat(mt *mimetype.MIME) (string, bool) {
	mime, _, _ := strings.Cut(mt.String(), ";")
	sub, found := strings.CutPrefix(mime, "image/")
	if !found || sub == "" {
		return "", false
	}
	return normalizeFormat(sub), true
}

func normalizeFormat(f string) string {
	f = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(f), "."))
	if alias, ok := formatAliases[f]; ok {
		return alias
	}
	return f
}
