package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"go-vehicle-counter/internal/config"
	"go-vehicle-counter/internal/container"
	apperrors "go-vehicle-counter/internal/errors"
	"go-vehicle-counter/internal/factory"
	"go-vehicle-counter/internal/logger"
	"go-vehicle-counter/internal/marshal"
	"go-vehicle-counter/internal/service"
	"go-vehicle-counter/pkg/models"
)

const helpBanner = `vcount counts vehicles in still images.

  vcount -mode diff -first before.jpg -second after.jpg
  vcount -mode haar -image lot.png
  vcount -mode transform -image lot.png

`

var (
	mode     = flag.String("mode", "haar", "Counting mode: diff, haar or transform")
	first    = flag.String("first", "", "First image of the scene (diff)")
	second   = flag.String("second", "", "Second image of the scene (diff)")
	single   = flag.String("image", "", "Image to process (haar, transform)")
	dataDir  = flag.String("data-dir", "", "Application data directory (default DATA_DIR or the user config dir)")
	outPath  = flag.String("out", "", "Also write the output image to this path")
	asJSON   = flag.Bool("json", false, "Print the result as JSON")
	pureOnly = flag.Bool("pure", false, "Force the pure-Go vision backend")
	verbose  = flag.Bool("v", false, "Log every pipeline event to stderr")
)

type cliResult struct {
	Strategy     string  `json:"strategy"`
	VehicleCount int     `json:"vehicle_count"`
	OutputImage  string  `json:"output_image,omitempty"`
	MimeType     string  `json:"mime_type"`
	ElapsedSec   float64 `json:"processing_time_sec"`
}

// cliLogLevel keeps the terminal quiet unless -v asks for every pipeline
// event, which the logging observer emits at debug level.
func cliLogLevel(verbose bool) string {
	if verbose {
		return "debug"
	}
	return "error"
}

func main() {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, helpBanner)
		flag.PrintDefaults()
	}
	flag.Parse()

	logger.Logger.SetOutput(os.Stderr)
	logger.Configure(cliLogLevel(*verbose), "text")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load config")
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	backend := factory.DefaultBackend
	if *pureOnly {
		backend = factory.PureBackend
	}
	c, err := container.NewContainerWithBackend(cfg, backend)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	resp, err := run(ctx, c.Service())
	if err != nil {
		fail(err)
	}

	res := cliResult{
		Strategy:     resp.Strategy,
		VehicleCount: resp.VehicleCount,
		MimeType:     resp.Image.MimeType,
		ElapsedSec:   resp.ProcessingTimeSec,
	}
	if *outPath != "" {
		if err := writeImage(resp, *outPath); err != nil {
			fail(err)
		}
		res.OutputImage = *outPath
	}

	// JSON when asked for or when piped
	if *asJSON || !term.IsTerminal(int(os.Stdout.Fd())) {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			logger.WithError(err).Fatal("Failed to encode result")
		}
		return
	}

	if resp.Strategy == "equalize" {
		fmt.Printf("equalized image ready (%s)\n", res.MimeType)
	} else {
		fmt.Printf("%s: %d vehicle(s)\n", res.Strategy, res.VehicleCount)
	}
	if res.OutputImage != "" {
		fmt.Printf("output image: %s\n", res.OutputImage)
	}
}

func run(ctx context.Context, svc service.CountingService) (*models.CountResponse, error) {
	switch *mode {
	case "diff":
		if *first == "" || *second == "" {
			return nil, apperrors.NewValidationError("diff mode needs -first and -second", nil)
		}
		return svc.CountDiff(ctx, *first, *second)
	case "haar":
		if *single == "" {
			return nil, apperrors.NewValidationError("haar mode needs -image", nil)
		}
		return svc.CountHaar(ctx, *single)
	case "transform":
		if *single == "" {
			return nil, apperrors.NewValidationError("transform mode needs -image", nil)
		}
		return svc.Equalize(ctx, *single)
	default:
		return nil, apperrors.NewValidationError("unknown mode", nil).WithDetails(*mode)
	}
}

func writeImage(resp *models.CountResponse, path string) error {
	img := marshal.EncodedImage{Base64: resp.Image.Base64, MimeType: resp.Image.MimeType}
	data, err := img.Decode()
	if err != nil {
		return apperrors.NewPresentationError("failed to decode output image", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return apperrors.NewIOError("failed to write output image", err).WithDetails(path)
	}
	return nil
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "vcount: %s error: %v\n", apperrors.TypeOf(err), err)
	os.Exit(1)
}
