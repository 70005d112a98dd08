package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"

	"github.com/menta2k/medref"
	"github.com/menta2k/medref/internal/config"
	"github.com/menta2k/medref/internal/logging"
	"github.com/menta2k/medref/internal/utils"
	"github.com/menta2k/medref/pkg/types"
)

func main() {
	var in, outDir, address, configPath string
	var backend, endpoint, model string
	var stream, asJSON, noColor bool

	flag.StringVar(&in, "in", "", "input image path, directory or URL (jpg/png/gif/webp)")
	flag.StringVar(&outDir, "out", "", "write one JSON result per input into this directory")
	flag.StringVar(&address, "address", "", "your location, e.g. Delhi (empty skips the doctor search)")
	flag.StringVar(&configPath, "config", "", "optional JSON or YAML config file")
	flag.StringVar(&backend, "backend", "", "override backend: openai or ollama")
	flag.StringVar(&endpoint, "url", "", "override vision endpoint URL")
	flag.StringVar(&model, "model", "", "override model name")
	flag.BoolVar(&stream, "stream", false, "print the report while it is generated")
	flag.BoolVar(&asJSON, "json", false, "print the result bundle as JSON")
	flag.BoolVar(&noColor, "no-color", false, "disable colored output")

	flag.Parse()
	if noColor {
		color.Disable()
	}
	if in == "" {
		log.Fatalf("usage: %s -in scan.jpg|dir|URL [-address Delhi] [-backend openai|ollama] [-url endpoint] [-stream] [-json] [-out dir]", filepath.Base(os.Args[0]))
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal(err)
	}
	if backend != "" {
		cfg.Vision.Backend = backend
	}
	if endpoint != "" {
		cfg.Vision.Endpoint = endpoint
	}
	if model != "" {
		cfg.Vision.Model = model
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	pipeline, err := medref.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize pipeline", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	inputs, root := []string{in}, ""
	if utils.DirExists(in) {
		root = in
		inputs, err = utils.ListImageFiles(in)
		if err != nil {
			logger.Fatal("failed to list input directory", zap.Error(err))
		}
	}
	if outDir != "" {
		if err := utils.EnsureDir(outDir); err != nil {
			logger.Fatal("failed to create output directory", zap.Error(err))
		}
	}

	failed := 0
	for _, input := range inputs {
		if err := process(ctx, logger, pipeline, root, input, address, outDir, stream, asJSON); err != nil {
			// one readable line per failure, no stack traces
			fmt.Fprintf(os.Stderr, "%s: %v\n", input, err)
			failed++
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func process(ctx context.Context, logger *zap.Logger, pipeline *medref.Pipeline, root, input, address, outDir string, stream, asJSON bool) error {
	upload, err := pipeline.Processor().LoadSource(input)
	if err != nil {
		return err
	}
	logger.Info("loaded input",
		zap.String("input", input),
		zap.String("mime_type", upload.MIMEType),
		zap.String("size", utils.FormatFileSize(int64(len(upload.Data)))),
	)

	var bundle *types.ResultBundle
	if stream && !asJSON {
		fmt.Println(heading("AI Report:"))
		bundle, err = pipeline.RunStream(ctx, &upload, address, func(fragment string) {
			fmt.Print(fragment)
		})
		fmt.Println()
	} else {
		bundle, err = pipeline.Run(ctx, &upload, address)
	}
	if err != nil {
		return err
	}

	if outDir != "" {
		path := utils.RelativeOutputFilename(root, input, outDir, "_report", "json")
		js, err := json.MarshalIndent(bundle, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		if err := os.WriteFile(path, js, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		logger.Info("wrote result", zap.String("path", path))
	}

	if asJSON {
		js, err := json.MarshalIndent(bundle, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		fmt.Println(string(js))
		return nil
	}

	if !stream {
		fmt.Println(heading("AI Report:"))
		fmt.Println(bundle.Report.Text)
	}
	printDoctors(bundle, address)
	return nil
}

func heading(text string) string {
	return color.New(color.FgGreen, color.OpBold).Render(text)
}

func printDoctors(bundle *types.ResultBundle, address string) {
	if address == "" {
		return
	}
	fmt.Println()
	fmt.Println(heading(fmt.Sprintf("Nearby %ss:", bundle.Specialty)))
	if bundle.LocationError != "" {
		color.Warn.Printf("Doctor search unavailable: %s\n", bundle.LocationError)
		return
	}
	if len(bundle.Doctors) == 0 {
		fmt.Printf("No %ss found nearby.\n", bundle.Specialty)
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Name", "Address", "Rating", "Reviews"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for _, d := range bundle.Doctors {
		rating := "N/A"
		if d.Rating != nil {
			rating = fmt.Sprintf("%.1f", *d.Rating)
		}
		table.Append([]string{d.Name, d.Address, rating, strconv.Itoa(d.RatingCount)})
	}
	table.Render()
}
