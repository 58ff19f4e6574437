package processor

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/wb-go/wbf/zlog"
	"github.com/yokitheyo/imageenhancer/internal/config"
	"github.com/yokitheyo/imageenhancer/internal/domain"
)

// Coefficients of the CSS Filter Effects saturate() color matrix.
const (
	lumR = 0.213
	lumG = 0.715
	lumB = 0.072
)

type ImageProcessor struct {
	preview config.PreviewConfig
	export  config.ExportConfig
	format  imaging.Format
}

var _ domain.Renderer = (*ImageProcessor)(nil)

func NewImageProcessor(preview *config.PreviewConfig, export *config.ExportConfig) (*ImageProcessor, error) {
	format, err := parseExportFormat(export.Format)
	if err != nil {
		return nil, err
	}
	zlog.Logger.Info().
		Int("preview_max_width", preview.MaxWidth).
		Int("preview_max_height", preview.MaxHeight).
		Str("export_format", format.String()).
		Int("export_quality", export.Quality).
		Str("watermark_text", export.WatermarkText).
		Msg("ImageProcessor initialized")
	return &ImageProcessor{preview: *preview, export: *export, format: format}, nil
}

// Preview renders img scaled down to the configured preview bounds.
func (p *ImageProcessor) Preview(img image.Image, settings domain.AdjustmentSettings) *image.NRGBA {
	if p.preview.MaxWidth > 0 && p.preview.MaxHeight > 0 {
		b := img.Bounds()
		if b.Dx() > p.preview.MaxWidth || b.Dy() > p.preview.MaxHeight {
			img = imaging.Fit(img, p.preview.MaxWidth, p.preview.MaxHeight, imaging.Lanczos)
			zlog.Logger.Debug().
				Int("original_width", b.Dx()).
				Int("original_height", b.Dy()).
				Int("preview_width", img.Bounds().Dx()).
				Int("preview_height", img.Bounds().Dy()).
				Msg("preview downscaled")
		}
	}
	return Render(img, settings)
}

// Export writes the full-size filtered pixels in the configured format.
func (p *ImageProcessor) Export(w io.Writer, img image.Image, settings domain.AdjustmentSettings) (domain.ExportInfo, error) {
	out := Render(img, settings)
	if p.export.WatermarkText != "" {
		watermark(out, p.export.WatermarkText, p.export.WatermarkOpacity)
	}

	var opts []imaging.EncodeOption
	if p.format == imaging.JPEG {
		opts = append(opts, imaging.JPEGQuality(p.export.Quality))
	}
	if err := imaging.Encode(w, out, p.format, opts...); err != nil {
		zlog.Logger.Error().Err(err).Str("format", p.format.String()).Msg("failed to encode export")
		return domain.ExportInfo{}, fmt.Errorf("encode export: %w", err)
	}

	mime, ext := formatInfo(p.format)
	return domain.ExportInfo{
		MimeType:  mime,
		Extension: ext,
		Width:     out.Bounds().Dx(),
		Height:    out.Bounds().Dy(),
	}, nil
}

// ExportExtension returns the file extension Export uses for an
// export.format value, case-insensitively.
func ExportExtension(format string) (string, error) {
	f, err := parseExportFormat(format)
	if err != nil {
		return "", err
	}
	_, ext := formatInfo(f)
	return ext, nil
}

func parseExportFormat(format string) (imaging.Format, error) {
	f, err := imaging.FormatFromExtension(strings.ToLower(strings.TrimSpace(format)))
	if err != nil {
		return 0, fmt.Errorf("export format %q: %w", format, err)
	}
	if f != imaging.PNG && f != imaging.JPEG {
		return 0, fmt.Errorf("export format %q is not supported", format)
	}
	return f, nil
}

func formatInfo(f imaging.Format) (mime, ext string) {
	if f == imaging.JPEG {
		return "image/jpeg", ".jpg"
	}
	return "image/png", ".png"
}

// Render applies brightness, then contrast, then saturation to a copy of img.
// The order is fixed: the three filters do not commute once values clip.
// Identity settings return an exact copy.
func Render(img image.Image, settings domain.AdjustmentSettings) *image.NRGBA {
	if settings.IsIdentity() {
		return imaging.Clone(img)
	}

	lut := toneCurve(percent(settings.Brightness), percent(settings.Contrast))
	sat := percent(settings.Saturation)
	identitySat := settings.Saturation == domain.AdjustmentDefault

	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		r, g, b := lut[c.R], lut[c.G], lut[c.B]
		if !identitySat {
			r, g, b = saturate(r, g, b, sat)
		}
		return color.NRGBA{R: to8(r), G: to8(g), B: to8(b), A: c.A}
	})
}

// toneCurve precomputes brightness followed by contrast for every 8-bit
// input level, clamping after each step.
func toneCurve(brightness, contrast float64) [256]float64 {
	var lut [256]float64
	for i := range lut {
		v := clamp01(float64(i) / 255 * brightness)
		lut[i] = clamp01((v-0.5)*contrast + 0.5)
	}
	return lut
}

func saturate(r, g, b, s float64) (float64, float64, float64) {
	nr := (lumR+(1-lumR)*s)*r + (lumG-lumG*s)*g + (lumB-lumB*s)*b
	ng := (lumR-lumR*s)*r + (lumG+(1-lumG)*s)*g + (lumB-lumB*s)*b
	nb := (lumR-lumR*s)*r + (lumG-lumG*s)*g + (lumB+(1-lumB)*s)*b
	return clamp01(nr), clamp01(ng), clamp01(nb)
}

func percent(v int) float64 {
	return float64(v) / 100
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func to8(v float64) uint8 {
	return uint8(math.Round(clamp01(v) * 255))
}

func GetImageDimensions(img image.Image) (width, height int) {
	bounds := img.Bounds()
	return bounds.Dx(), bounds.Dy()
}
