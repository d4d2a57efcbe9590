package main

import (
	"context"
	"fmt"
	"image"
	"os"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/edaniels/golog"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"sitesafety/internal/config"
	"sitesafety/internal/safety"
	ui "sitesafety/internal/ui"
	"sitesafety/processing/annotate"
	"sitesafety/processing/detector"
	"sitesafety/processing/upload"
)

const (
	flagConfig   = "config"
	flagDetector = "detector"
	flagLogLevel = "log-level"
	flagModel    = "model"
	flagConf     = "conf"
	flagOut      = "out"
)

func main() {
	app := &cli.App{
		Name:  "sitesafety",
		Usage: "construction site safety detection",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: flagConfig, Value: config.DefaultConfigPath, Usage: "path to the JSON config file"},
			&cli.StringFlag{Name: flagDetector, Usage: "inference server host:port (overrides config)"},
			&cli.StringFlag{Name: flagLogLevel, Value: "info", Usage: "info or debug"},
		},
		Action: runGUI,
		Commands: []*cli.Command{
			{
				Name:      "detect",
				Usage:     "run detection on one image and print the result",
				ArgsUsage: "<image>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagModel, Value: config.ModelConstruction, Usage: "one of: " + strings.Join(config.ModelsList[:], ", ")},
					&cli.Float64Flag{Name: flagConf, Value: config.DefaultConfidence, Usage: "confidence threshold in [0.1, 1.0]"},
					&cli.StringFlag{Name: flagOut, Usage: "write the annotated image here (.png or .jpg)"},
				},
				Action: runDetect,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type services struct {
	cfg       *config.Config
	logger    golog.Logger
	registry  *detector.Registry
	processor *detector.Processor
}

func setup(c *cli.Context) (*services, error) {
	logger := golog.NewLogger("sitesafety")
	if c.String(flagLogLevel) == "debug" {
		logger = golog.NewDebugLogger("sitesafety")
	}

	cfg, err := config.LoadConfigFile(c.String(flagConfig))
	if err != nil {
		return nil, err
	}
	if host := c.String(flagDetector); host != "" {
		cfg.SetDetectorHost(host)
	}

	loader := detector.RemoteLoader(cfg.GetDetectorHost(), cfg.IoU, logger)
	registry := detector.NewRegistry(cfg.ModelPaths(), loader, logger.Named("registry"))
	logger.Debugw("models configured", "host", cfg.GetDetectorHost(), "models", registry.Labels())

	annotator := annotate.New(cfg.Annotate.LineWidth, cfg.Annotate.FontSize)

	return &services{
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		processor: detector.NewProcessor(cfg, registry, annotator, logger.Named("processor")),
	}, nil
}

func (s *services) close() {
	if err := s.registry.Close(); err != nil {
		s.logger.Warnw("closing detectors", "error", err)
	}
}

func runGUI(c *cli.Context) error {
	s, err := setup(c)
	if err != nil {
		return err
	}
	defer s.close()

	checkDetector(c.Context, s)

	app := ui.CreateApp(s.processor, s.registry, s.cfg, s.logger.Named("ui"))
	app.Run()

	return nil
}

func checkDetector(ctx context.Context, s *services) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	probe := detector.NewRemoteDetector(s.cfg.GetDetectorHost(), "", s.logger)
	defer probe.Close()

	if err := probe.Ping(ctx); err != nil {
		s.logger.Warnw("inference server not available", "host", s.cfg.GetDetectorHost(), "error", err)
	}
}

func runDetect(c *cli.Context) (err error) {
	if c.NArg() != 1 {
		return errors.New("expected exactly one image path")
	}

	s, err := setup(c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, s.registry.Close())
	}()

	data, err := upload.ReadFile(c.Args().First())
	if err != nil {
		return err
	}

	res, err := s.processor.Run(c.Context, detector.Request{
		Model:      c.String(flagModel),
		Image:      data,
		Confidence: c.Float64(flagConf),
	})
	if err != nil {
		return err
	}

	printResult(res)

	if out := c.String(flagOut); out != "" {
		if err := writeImage(out, res.Annotated); err != nil {
			return err
		}
		fmt.Printf("annotated image written to %s\n", out)
	}
	return nil
}

func printResult(res *detector.Result) {
	if len(res.Counts) == 0 {
		fmt.Println("No objects detected in the image.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Class", "Count"})
	for _, label := range res.Counts.SortedLabels() {
		t.AppendRow(table.Row{label, res.Counts[label]})
	}
	t.AppendFooter(table.Row{"Total", res.Counts.Total()})
	t.Render()

	if res.Assessment == nil {
		return
	}

	fmt.Printf("Compliance Rate: %.2f%%\n", res.Assessment.Compliance)
	fmt.Printf("Risk Level: %s\n", riskColor(res.Assessment.Risk).Sprint(res.Assessment.Risk))
	fmt.Println(res.Assessment.Narrative)
}

func riskColor(risk safety.RiskTier) *color.Color {
	switch risk {
	case safety.RiskHigh:
		return color.New(color.FgRed, color.Bold)
	case safety.RiskMedium:
		return color.New(color.FgYellow, color.Bold)
	default:
		return color.New(color.FgGreen, color.Bold)
	}
}

// writeImage picks the encoder from the extension of path.
func writeImage(path string, img image.Image) error {
	return errors.Wrapf(imaging.Save(img, path, imaging.JPEGQuality(95)), "write %s", path)
}
