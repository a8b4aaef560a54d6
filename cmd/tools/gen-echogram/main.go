// Command gen-echogram writes a synthetic survey (echogram, predictions and
// bottom) for demos and tests of reportgen.
package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/acoustic.report/internal/echogram"
	"github.com/banshee-data/acoustic.report/internal/fsutil"
)

func main() {
	def := echogram.DefaultSyntheticConfig()
	out := flag.String("out", "data", "output directory")
	start := flag.String("start", def.Start.Format(time.RFC3339), "time of the first ping (RFC 3339)")
	pings := flag.Int("pings", def.Pings, "number of pings")
	interval := flag.Duration("interval", def.PingInterval, "time between pings")
	samples := flag.Int("samples", def.Samples, "samples per ping")
	spacing := flag.Float64("spacing", def.SampleSpacing, "sample spacing in meters")
	cats := flag.String("categories", "1,27", "comma separated category ids")
	bottom := flag.Float64("bottom", def.BottomDepth, "mean seafloor depth in meters")
	seed := flag.Int64("seed", def.Seed, "random seed")
	flag.Parse()

	cfg := def
	cfg.Pings, cfg.PingInterval = *pings, *interval
	cfg.Samples, cfg.SampleSpacing = *samples, *spacing
	cfg.BottomDepth, cfg.Seed = *bottom, *seed

	var err error
	if cfg.Start, err = time.Parse(time.RFC3339, *start); err != nil {
		log.Fatalf("bad -start: %v", err)
	}
	if cfg.Categories, err = parseCategories(*cats); err != nil {
		log.Fatalf("bad -categories: %v", err)
	}

	paths, err := Generate(fsutil.OSFileSystem{}, *out, cfg)
	if err != nil {
		log.Fatalf("generate failed: %v", err)
	}
	for _, p := range paths {
		log.Printf("wrote %s", p)
	}
}

// Generate writes sv.gob.zst, pred.gob.zst and bottom.gob.zst under dir.
func Generate(fsys fsutil.FileSystem, dir string, cfg echogram.SyntheticConfig) ([]string, error) {
	if cfg.Pings < 2 || cfg.Samples < 2 {
		return nil, fmt.Errorf("need at least 2 pings and 2 samples, got %d and %d", cfg.Pings, cfg.Samples)
	}
	e, p, b := echogram.Synthetic(cfg)
	paths := []string{
		filepath.Join(dir, "sv.gob.zst"),
		filepath.Join(dir, "pred.gob.zst"),
		filepath.Join(dir, "bottom.gob.zst"),
	}
	if err := echogram.SaveEchogram(fsys, paths[0], e); err != nil {
		return nil, err
	}
	if err := echogram.SavePredictions(fsys, paths[1], p); err != nil {
		return nil, err
	}
	if err := echogram.SaveBottom(fsys, paths[2], b); err != nil {
		return nil, err
	}
	return paths, nil
}

func parseCategories(s string) ([]int, error) {
	var ids []int
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		id, err := strconv.Atoi(f)
		if err != nil {
			return nil, err
		}
		if id <= 0 {
			return nil, fmt.Errorf("category %d: predicted categories are positive", id)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
