// Command analyze runs the waste pipeline on image files from the command line.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/Brownie44l1/waste-api/internal/annotate"
	"github.com/Brownie44l1/waste-api/internal/config"
	"github.com/Brownie44l1/waste-api/internal/detector"
	perr "github.com/Brownie44l1/waste-api/internal/errors"
	"github.com/Brownie44l1/waste-api/internal/logger"
	"github.com/Brownie44l1/waste-api/internal/model"
	"github.com/Brownie44l1/waste-api/internal/pipeline"
)

type outcome struct {
	Path       string               `json:"path"`
	Result     *pipeline.Result     `json:"result,omitempty"`
	Detections []detector.Detection `json:"detections,omitempty"`
	Crops      []string             `json:"crops,omitempty"`
	Error      string               `json:"error,omitempty"`
}

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	asJSON := flag.Bool("json", false, "print one JSON object per image")
	workers := flag.Int("workers", 2, "images analyzed concurrently")
	batch := flag.Bool("batch", false, "decode every image first, then run each model over the whole set")
	detectOnly := flag.Bool("detect-only", false, "run only the object detector and print the boxes")
	cropsDir := flag.String("crops", "", "run only the object detector and save each box as a JPEG in this directory")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <image_path>...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger.Init(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Writer: os.Stderr})

	p := pipeline.Load(cfg.Models, logger.Named("pipeline"))
	var outcomes []outcome
	switch {
	case *detectOnly || *cropsDir != "":
		outcomes = detectAll(p, flag.Args(), *workers, *cropsDir)
	case *batch:
		outcomes = analyzeBatch(p, flag.Args())
	default:
		outcomes = analyzeAll(p, flag.Args(), *workers)
	}
	p.Close()

	failed := false
	for _, o := range outcomes {
		if o.Error != "" {
			failed = true
		}
		if *asJSON {
			_ = json.NewEncoder(os.Stdout).Encode(o)
		} else {
			printText(os.Stdout, o)
		}
	}
	if failed {
		os.Exit(1)
	}
}

// analyzeAll runs every path through p with at most workers in flight and
// returns the outcomes in input order
func analyzeAll(p *pipeline.Pipeline, paths []string, workers int) []outcome {
	if workers < 1 {
		workers = 1
	}
	out := make([]outcome, len(paths))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			out[i].Path = path
			res, err := p.AnalyzeFile(path)
			if err != nil {
				out[i].Error = err.Error()
				logger.Get().Error().Err(err).Str("path", path).Int("code", int(perr.Code(err))).Msg("analysis failed")
				return nil
			}
			out[i].Result = res
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// analyzeBatch decodes every path, then runs the decodable images through
// p as one batch
func analyzeBatch(p *pipeline.Pipeline, paths []string) []outcome {
	out := make([]outcome, len(paths))
	imgs := make([]image.Image, 0, len(paths))
	idx := make([]int, 0, len(paths))
	for i, path := range paths {
		out[i].Path = path
		img, _, err := model.DecodeFile(path)
		if err != nil {
			out[i].Error = err.Error()
			continue
		}
		imgs = append(imgs, img)
		idx = append(idx, i)
	}
	if len(imgs) == 0 {
		return out
	}

	results, err := p.AnalyzeBatch(imgs)
	if err != nil {
		logger.Get().Error().Err(err).Int("images", len(imgs)).Msg("batch analysis failed")
		for _, i := range idx {
			out[i].Error = err.Error()
		}
		return out
	}
	for n, i := range idx {
		out[i].Result = results[n]
	}
	return out
}

// detectAll runs only the detector. When cropsDir is set every box is saved
// as <image>_crop<n>.jpg under it.
func detectAll(p *pipeline.Pipeline, paths []string, workers int, cropsDir string) []outcome {
	if workers < 1 {
		workers = 1
	}
	out := make([]outcome, len(paths))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			out[i].Path = path
			if err := detectOne(p, path, cropsDir, &out[i]); err != nil {
				out[i].Error = err.Error()
				logger.Get().Error().Err(err).Str("path", path).Msg("detection failed")
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func detectOne(p *pipeline.Pipeline, path, cropsDir string, o *outcome) error {
	img, _, err := model.DecodeFile(path)
	if err != nil {
		return err
	}

	if cropsDir == "" {
		dets, err := p.Detect(img)
		if err != nil {
			return err
		}
		o.Detections = dets
		return nil
	}

	crops, err := p.DetectAndCrop(img)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cropsDir, 0o755); err != nil {
		return fmt.Errorf("create crops dir: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	for n, c := range crops {
		name := filepath.Join(cropsDir, fmt.Sprintf("%s_crop%d.jpg", base, n))
		if err := annotate.Save(name, c.Image); err != nil {
			return err
		}
		o.Detections = append(o.Detections, c.Detection)
		o.Crops = append(o.Crops, name)
	}
	return nil
}

var upper = cases.Upper(language.English)

func printText(w io.Writer, o outcome) {
	fmt.Fprintf(w, "\n%s\n", o.Path)
	if o.Error != "" {
		fmt.Fprintf(w, "  Error: %s\n", o.Error)
		return
	}

	if o.Result == nil {
		fmt.Fprintf(w, "  Objects: %d\n", len(o.Detections))
		for n, d := range o.Detections {
			fmt.Fprintf(w, "    %s %v\n", annotate.BoxLabel(d), d.BBox)
			if n < len(o.Crops) {
				fmt.Fprintf(w, "      -> %s\n", o.Crops[n])
			}
		}
		return
	}

	res := o.Result
	fmt.Fprintln(w, "Waste Analysis Result:")
	if c := res.Classification; c != nil {
		fmt.Fprintf(w, "  Type: %s\n", upper.String(c.Category))
		fmt.Fprintf(w, "  Confidence: %.1f%%\n", c.Confidence*100)
	} else {
		fmt.Fprintln(w, "  Type: n/a (classifier not loaded)")
	}
	if a := res.Anomaly; a != nil {
		fmt.Fprintf(w, "  Anomaly: %s (score %.2f)\n", yesNo(a.IsAnomaly), a.Score)
	} else {
		fmt.Fprintln(w, "  Anomaly: n/a (autoencoder not loaded)")
	}
	if d := res.Detection; d != nil {
		fmt.Fprintf(w, "  Objects: %d\n", len(d.Objects))
	}
	if res.Disposal != nil {
		fmt.Fprintf(w, "  Disposal: %s\n", res.Disposal.Bin)
	} else {
		fmt.Fprintln(w, "  Disposal: n/a")
	}
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
