package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ximed/internal/models"
	"ximed/pkg/metadata"
)

func TestParseRegion(t *testing.T) {
	r, err := parseRegion("10, 20,30,40")
	if err != nil {
		t.Fatalf("Failed to parse region: %v", err)
	}
	if r != (models.Region{X: 10, Y: 20, Width: 30, Height: 40}) {
		t.Errorf("Unexpected region %s", r)
	}

	for _, bad := range []string{"", "1,2,3", "a,b,c,d", "1,2,3,4,5"} {
		if _, err := parseRegion(bad); err == nil {
			t.Errorf("Expected an error for %q", bad)
		}
	}
}

// TestRunEndToEnd generates a series, then runs the single-file and series paths over it
func TestRunEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping end-to-end run in short mode")
	}

	dir := t.TempDir()
	seriesDir := filepath.Join(dir, "series")
	configPath := filepath.Join(dir, "config.yaml")

	var out bytes.Buffer
	if err := run(options{configPath: configPath, generate: seriesDir, generateCount: 4, noise: 0.1}, &out); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !strings.Contains(out.String(), "Wrote 4 synthetic slices") {
		t.Errorf("Unexpected generate output: %s", out.String())
	}

	out.Reset()
	maskPath := filepath.Join(dir, "mask.png")
	enhancedPath := filepath.Join(dir, "enhanced.png")
	err := run(options{
		configPath: configPath,
		file:       filepath.Join(seriesDir, "slice_001.dcm"),
		roi:        "32,32,64,64",
		maskOut:    maskPath,
		enhanceOut: enhancedPath,
	}, &out)
	if err != nil {
		t.Fatalf("Single-file run failed: %v", err)
	}
	for _, want := range []string{"Patient Name: Phantom^Test", "Segmented x=32 y=32 w=64 h=64"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Expected %q in output:\n%s", want, out.String())
		}
	}
	for _, path := range []string{maskPath, enhancedPath} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("Expected %s to exist: %v", path, err)
		}
	}

	out.Reset()
	metaPath := filepath.Join(dir, "meta.msgpack")
	slicesDir := filepath.Join(dir, "slices")
	err = run(options{
		configPath:   configPath,
		seriesDir:    seriesDir,
		workers:      2,
		format:       "msgpack",
		metadataOut:  metaPath,
		exportSlices: true,
		slicesDir:    slicesDir,
	}, &out)
	if err != nil {
		t.Fatalf("Series run failed: %v", err)
	}
	if !strings.Contains(out.String(), "128x128x4 voxels") {
		t.Errorf("Expected volume dimensions in output:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "slice spacing from SliceLocation") {
		t.Errorf("Expected slice spacing source in output:\n%s", out.String())
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		t.Fatalf("Failed to read metadata: %v", err)
	}
	recs, err := metadata.UnmarshalSeriesMsgpack(data)
	if err != nil {
		t.Fatalf("Failed to decode metadata: %v", err)
	}
	if len(recs) != 4 {
		t.Errorf("Expected 4 metadata entries, got %d", len(recs))
	}

	files, err := os.ReadDir(filepath.Join(slicesDir, "z"))
	if err != nil {
		t.Fatalf("Failed to list exported slices: %v", err)
	}
	if len(files) != 4 {
		t.Errorf("Expected 4 z slices, got %d", len(files))
	}
}

func TestRunRenderNeedsTransfer(t *testing.T) {
	dir := t.TempDir()
	seriesDir := filepath.Join(dir, "series")
	var out bytes.Buffer
	configPath := filepath.Join(dir, "none.yaml")
	if err := run(options{configPath: configPath, generate: seriesDir, generateCount: 2}, &out); err != nil {
		t.Fatal(err)
	}
	err := run(options{configPath: configPath, seriesDir: seriesDir, renderOut: filepath.Join(dir, "r.png")}, &out)
	if err == nil || !strings.Contains(err.Error(), "-transfer") {
		t.Errorf("Expected a missing transfer function error, got %v", err)
	}
}

// TestRunMetadataOutNeedsOneInput verifies a single -metadata-out cannot hold
// both the file and the series metadata
func TestRunMetadataOutNeedsOneInput(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "meta.txt")
	var out bytes.Buffer
	o := options{
		configPath:  filepath.Join(dir, "none.yaml"),
		file:        filepath.Join(dir, "a.dcm"),
		seriesDir:   dir,
		metadataOut: outPath,
	}
	err := run(o, &out)
	if err == nil || !strings.Contains(err.Error(), "-metadata-out") {
		t.Errorf("Expected a flag combination error, got %v", err)
	}
	if _, statErr := os.Stat(outPath); !os.IsNotExist(statErr) {
		t.Errorf("Expected no metadata file to be written, got %v", statErr)
	}
}

func TestRunInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "config.yaml")
	var out bytes.Buffer
	if err := run(options{configPath: path, initConfig: true}, &out); err != nil {
		t.Fatalf("init-config failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected config file: %v", err)
	}
}
