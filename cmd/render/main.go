package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/wb-go/wbf/zlog"
	"github.com/yokitheyo/imageenhancer/internal/config"
	"github.com/yokitheyo/imageenhancer/internal/domain"
	"github.com/yokitheyo/imageenhancer/internal/infrastructure/decoder"
	"github.com/yokitheyo/imageenhancer/internal/infrastructure/processor"
	"github.com/yokitheyo/imageenhancer/internal/usecase"
)

var (
	inputFlag      string
	outputFlag     string
	brightnessFlag int
	contrastFlag   int
	saturationFlag int
	formatFlag     string
	qualityFlag    int
	watermarkFlag  string
	timeoutFlag    time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "render",
	Short: "Enhance an image and bake brightness, contrast and saturation into it",
	Long: `Render runs an image through the same pipeline the web service uses:
the file is validated and decoded, passed through the enhancer, and the
adjustments are applied in the order brightness, contrast, saturation.
Every adjustment is a percentage in [0, 200]; 100 leaves the image unchanged.

Examples:
  render --input photo.jpg
  render -i photo.jpg -o out.png --brightness 120 --contrast 110
  render -i photo.png --format jpeg --quality 85 --watermark "demo"`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVarP(&inputFlag, "input", "i", "", "Image to enhance (required)")
	rootCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Output path (default: <name>_enhanced.<ext> next to the input)")
	rootCmd.Flags().IntVar(&brightnessFlag, "brightness", domain.AdjustmentDefault, "Brightness percentage")
	rootCmd.Flags().IntVar(&contrastFlag, "contrast", domain.AdjustmentDefault, "Contrast percentage")
	rootCmd.Flags().IntVar(&saturationFlag, "saturation", domain.AdjustmentDefault, "Saturation percentage")
	rootCmd.Flags().StringVarP(&formatFlag, "format", "f", "png", "Output format: png or jpeg")
	rootCmd.Flags().IntVarP(&qualityFlag, "quality", "q", 95, "JPEG quality (1-100)")
	rootCmd.Flags().StringVar(&watermarkFlag, "watermark", "", "Optional watermark text")
	rootCmd.Flags().DurationVar(&timeoutFlag, "timeout", time.Minute, "Maximum time to spend on the image")
	_ = rootCmd.MarkFlagRequired("input")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	zlog.Init()

	settings := domain.AdjustmentSettings{
		Brightness: brightnessFlag,
		Contrast:   contrastFlag,
		Saturation: saturationFlag,
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	cfg := config.Default()
	cfg.Export.Format = formatFlag
	cfg.Export.Quality = qualityFlag
	cfg.Export.WatermarkText = watermarkFlag
	if err := config.Validate(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeoutFlag)
	defer cancel()

	data, err := os.ReadFile(inputFlag)
	if err != nil {
		return fmt.Errorf("read %s: %w", inputFlag, err)
	}

	img, err := decoder.NewImageDecoder(&cfg.Ingestion).Decode(ctx, filepath.Base(inputFlag), "", data)
	if err != nil {
		return err
	}

	result, err := processor.NewStubEnhancer(0).Enhance(ctx, 1, img)
	if err != nil {
		return err
	}

	proc, err := processor.NewImageProcessor(&cfg.Preview, &cfg.Export)
	if err != nil {
		return err
	}

	output := outputFlag
	if output == "" {
		if output, err = defaultOutputPath(inputFlag, img, formatFlag); err != nil {
			return err
		}
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create %s: %w", output, err)
	}
	info, err := proc.Export(f, result.Pixels, settings)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(output)
		return fmt.Errorf("export %s: %w", output, err)
	}

	width, height := processor.GetImageDimensions(result.Pixels)
	zlog.Logger.Info().
		Str("input", inputFlag).
		Str("output", output).
		Str("mime", info.MimeType).
		Int("width", width).
		Int("height", height).
		Str("filter", settings.CSSFilter()).
		Msg("image rendered")

	fmt.Println(output)
	return nil
}

// defaultOutputPath places <name>_enhanced.<ext> next to the input, with the
// extension the processor writes for format.
func defaultOutputPath(input string, img *domain.UploadedImage, format string) (string, error) {
	ext, err := processor.ExportExtension(format)
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(input), usecase.ExportFilename(img, ext)), nil
}
