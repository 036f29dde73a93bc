package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/unixpickle/essentials"

	"ximed/internal/log"
	"ximed/internal/models"
	"ximed/pkg/config"
	"ximed/pkg/metadata"
	"ximed/pkg/phantom"
	"ximed/pkg/segmentation"
	"ximed/pkg/series"
	"ximed/pkg/session"
	"ximed/pkg/visualization"
	"ximed/pkg/volume"
)

// options collects the command line.
type options struct {
	configPath string
	initConfig bool

	file       string
	roi        string
	maskOut    string
	enhanceOut string

	seriesDir    string
	timeout      time.Duration
	exportSlices bool
	slicesDir    string
	renderOut    string
	transfer     string

	metadataOut string
	format      string

	generate      string
	generateCount int
	noise         float64

	workers int
	match   string
	verbose bool
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "config.yaml", "Path to the YAML configuration file")
	flag.BoolVar(&o.initConfig, "init-config", false, "Write a default configuration file to -config and exit")
	flag.StringVar(&o.file, "file", "", "Single DICOM file to load")
	flag.StringVar(&o.roi, "roi", "", "Region to segment in the single file, as x,y,width,height")
	flag.StringVar(&o.maskOut, "mask-out", "mask.png", "Where to save the segmented mask")
	flag.StringVar(&o.enhanceOut, "enhance-out", "", "Save a contrast-enhanced copy of the single file here")
	flag.StringVar(&o.seriesDir, "series", "", "Directory holding a DICOM series")
	flag.DurationVar(&o.timeout, "timeout", 0, "Give up loading the series after this long (0 = no limit)")
	flag.BoolVar(&o.exportSlices, "export-slices", false, "Save volume sections along all axes")
	flag.StringVar(&o.slicesDir, "slices-dir", "", "Directory for exported sections (overrides config)")
	flag.StringVar(&o.renderOut, "render", "", "Composite the volume into this image (needs -transfer)")
	flag.StringVar(&o.transfer, "transfer", "", "YAML transfer function used by -render")
	flag.StringVar(&o.metadataOut, "metadata-out", "", "Write metadata here instead of stdout")
	flag.StringVar(&o.format, "format", "", "Metadata format: text or msgpack (overrides config)")
	flag.StringVar(&o.generate, "generate", "", "Write a synthetic series to this directory and exit")
	flag.IntVar(&o.generateCount, "generate-count", 10, "Number of slices written by -generate")
	flag.Float64Var(&o.noise, "noise", 0.1, "Detector noise level used by -generate")
	flag.IntVar(&o.workers, "workers", 0, "Decode workers (overrides config)")
	flag.StringVar(&o.match, "match", "", "Series file matching: extension, magic or either (overrides config)")
	flag.BoolVar(&o.verbose, "verbose", false, "Enable debug logging")
	flag.Parse()

	if o.file == "" && o.seriesDir == "" && o.generate == "" && !o.initConfig {
		flag.Usage()
		os.Exit(1)
	}

	essentials.Must(run(o, os.Stdout))
}

func run(o options, stdout io.Writer) error {
	if o.initConfig {
		if err := config.CreateDefaultConfigFile(o.configPath); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Default configuration written to %s\n", o.configPath)
		return nil
	}

	if o.file != "" && o.seriesDir != "" && o.metadataOut != "" {
		return errors.New("-metadata-out takes either -file or -series, not both")
	}

	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return err
	}
	applyOverrides(cfg, o)
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := log.Init(cfg.Output.Verbose); err != nil {
		return err
	}
	defer log.Sync()
	log.Infof("configuration %s: workers=%d match=%s", o.configPath, cfg.Processing.Workers, cfg.Processing.Match)

	if o.generate != "" {
		return generate(o, stdout)
	}
	if o.file != "" {
		if err := runImage(o, cfg, stdout); err != nil {
			return err
		}
	}
	if o.seriesDir != "" {
		if err := runSeries(o, cfg, stdout); err != nil {
			return err
		}
	}
	return nil
}

func applyOverrides(cfg *config.Config, o options) {
	if o.workers > 0 {
		cfg.Processing.Workers = o.workers
	}
	if o.match != "" {
		cfg.Processing.Match = o.match
	}
	if o.format != "" {
		cfg.Output.MetadataFormat = o.format
	}
	if o.slicesDir != "" {
		cfg.Output.SlicesDir = o.slicesDir
	}
	if o.verbose {
		cfg.Output.Verbose = true
	}
}

func generate(o options, stdout io.Writer) error {
	opts := phantom.Options{
		Width:          128,
		Height:         128,
		SliceThickness: 1.5,
		PixelSpacing:   [2]float64{0.8, 0.8},
		Patient:        phantom.Patient{Name: "Phantom^Test", ID: "PHANTOM-001"},
		Detector:       phantom.NewDetector(o.noise, uint64(time.Now().UnixNano())),
	}
	paths, err := phantom.WriteSeries(o.generate, opts, o.generateCount)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote %d synthetic slices to %s\n", len(paths), o.generate)
	return nil
}

func runImage(o options, cfg *config.Config, stdout io.Writer) error {
	fmt.Fprintf(stdout, "Loading DICOM file %s...\n", o.file)
	s := session.NewImageSession()
	if err := s.Load(o.file); err != nil {
		return err
	}
	rec, err := s.Record()
	if err != nil {
		return err
	}
	buf := rec.Buffer()
	stats := segmentation.BufferStats(buf)
	fmt.Fprintf(stdout, "Image %dx%d %s, values %.1f..%.1f (mean %.1f)\n",
		buf.Width, buf.Height, buf.DType(), stats.Min, stats.Max, stats.Mean)

	if err := writeMetadata(o, cfg, stdout, []metadata.Record{metadata.Extract(rec)}); err != nil {
		return err
	}

	if o.enhanceOut != "" {
		enhanced := segmentation.Image(segmentation.EnhanceContrast(buf))
		if err := imaging.Save(enhanced, o.enhanceOut); err != nil {
			return errors.Wrap(err, "save enhanced image")
		}
		fmt.Fprintf(stdout, "Contrast-enhanced image saved to %s\n", o.enhanceOut)
	}

	if o.roi == "" {
		return nil
	}
	region, err := parseRegion(o.roi)
	if err != nil {
		return err
	}
	mask, err := s.Segment(region)
	if err != nil {
		return err
	}
	if err := segmentation.SaveMask(mask, o.maskOut); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Segmented %s: %d of %d pixels set, mask saved to %s\n",
		region, mask.Count(), len(mask.Data), o.maskOut)
	return nil
}

func runSeries(o options, cfg *config.Config, stdout io.Writer) error {
	match, err := series.ParseMatchMode(cfg.Processing.Match)
	if err != nil {
		return err
	}
	s := session.NewSeriesSession(
		series.NewLoader(cfg.Processing.Workers, match),
		&volume.Builder{DefaultSpacing: cfg.Volume.DefaultSpacing},
	)

	fmt.Fprintf(stdout, "Loading series from %s with %d workers...\n", o.seriesDir, cfg.Processing.Workers)
	startTime := time.Now()

	ctx := context.Background()
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	index, err := s.LoadContext(ctx, o.seriesDir)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Loaded %d slices in %.2f seconds\n", index.Len(), time.Since(startTime).Seconds())
	for _, f := range index.Failures {
		fmt.Fprintf(stdout, "Warning: skipped %s: %v\n", f.FileName, f.Err)
	}
	for _, inc := range index.Inconsistencies {
		fmt.Fprintf(stdout, "Warning: %s: %s\n", inc.FileName, inc.Reason)
	}

	if err := writeMetadata(o, cfg, stdout, metadata.ExtractSeries(index)); err != nil {
		return err
	}

	vol, err := s.BuildVolume()
	if err != nil {
		return err
	}
	stats := volume.ComputeStats(vol)
	fmt.Fprintf(stdout, "Volume %s: %dx%dx%d voxels, spacing %.3f/%.3f/%.3f mm (slice spacing from %s)\n",
		vol.ID, vol.Width, vol.Height, vol.Depth,
		vol.Spacing.Row, vol.Spacing.Column, vol.Spacing.Slice, vol.SliceSpacingSource)
	fmt.Fprintf(stdout, "Values %.1f..%.1f, mean %.1f, stddev %.1f\n", stats.Min, stats.Max, stats.Mean, stats.StdDev)

	if o.exportSlices {
		viewer := visualization.NewViewer(vol)
		for _, axis := range []string{"x", "y", "z"} {
			axisDir := filepath.Join(cfg.Output.SlicesDir, axis)
			fmt.Fprintf(stdout, "Saving %s-axis slices to: %s\n", axis, axisDir)
			if _, err := viewer.SaveSliceSequence(axis, axisDir); err != nil {
				log.Errorw("slice export failed", "axis", axis, "dir", axisDir, "error", err)
			}
		}
		fmt.Fprintln(stdout, "Slice extraction completed!")
	}

	if o.renderOut != "" {
		if o.transfer == "" {
			return errors.New("-render needs a -transfer function")
		}
		tf, err := visualization.LoadTransferFunction(o.transfer)
		if err != nil {
			return err
		}
		r := &visualization.ProjectionRenderer{OutputPath: o.renderOut}
		if err := r.Render(ctx, vol, tf); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Rendered volume to %s\n", o.renderOut)
	}
	return nil
}

func writeMetadata(o options, cfg *config.Config, stdout io.Writer, recs []metadata.Record) error {
	var data []byte
	var err error
	switch cfg.Output.MetadataFormat {
	case "msgpack":
		if len(recs) == 1 && o.seriesDir == "" {
			data, err = metadata.MarshalMsgpack(recs[0])
		} else {
			data, err = metadata.MarshalSeriesMsgpack(recs)
		}
		if err != nil {
			return err
		}
		if o.metadataOut == "" {
			return errors.New("msgpack metadata needs -metadata-out")
		}
	default:
		var sb strings.Builder
		if err := metadata.WriteSeriesText(&sb, recs); err != nil {
			return err
		}
		data = []byte(sb.String())
	}

	if o.metadataOut == "" {
		fmt.Fprintln(stdout, "\nMetadata:")
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(o.metadataOut, data, 0644); err != nil {
		return errors.Wrap(err, "write metadata")
	}
	fmt.Fprintf(stdout, "Metadata written to %s\n", o.metadataOut)
	return nil
}

// parseRegion parses "x,y,width,height".
func parseRegion(s string) (models.Region, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return models.Region{}, fmt.Errorf("region %q must be x,y,width,height", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return models.Region{}, fmt.Errorf("region %q: %v", s, err)
		}
		v[i] = n
	}
	return models.Region{X: v[0], Y: v[1], Width: v[2], Height: v[3]}, nil
}
