// Command mapserver is a small demo binary: it opens one map file,
// renders a single query box to a PNG, and writes the result to disk.
// It intentionally stops there — an HTTP route belongs to a different
// program, per SPEC_FULL.md's non-goals. The command layout (a single
// kong-tagged cli struct dispatched by ctx.Command()) is lifted
// directly from main.go's Convert/Show/Serve/... command set.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/protomaps/go-maptiles/maptile/geo"
	"github.com/protomaps/go-maptiles/maptile/render"
	"github.com/protomaps/go-maptiles/maptile/store"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var cli struct {
	Render struct {
		Input  string `arg:"" help:"Input map file." type:"existingfile"`
		Output string `arg:"" help:"Output PNG path." type:"path"`
		Bbox   string `required:"" help:"min_lon,min_lat,max_lon,max_lat"`
		Width  uint32 `default:"1024" help:"Output image width in pixels."`
		Height uint32 `default:"1024" help:"Output image height in pixels."`
		Region string `help:"Optional GeoJSON polygon/multipolygon file to mask features." type:"existingfile"`
	} `cmd:"" help:"Render one bounding box from a map file to a PNG."`

	Version struct {
	} `cmd:"" help:"Show the program version."`
}

func main() {
	if len(os.Args) < 2 {
		os.Args = append(os.Args, "--help")
	}

	logger := log.New(os.Stdout, "", log.Ldate|log.Ltime|log.Lshortfile)
	ctx := kong.Parse(&cli)

	switch ctx.Command() {
	case "render <input> <output>":
		if err := runRender(logger); err != nil {
			logger.Fatalf("Failed to render, %v", err)
		}
	case "version":
		fmt.Printf("mapserver %s, commit %s, built at %s\n", version, commit, date)
	default:
		panic(ctx.Command())
	}
}

func runRender(logger *log.Logger) error {
	box, err := parseBbox(cli.Render.Bbox)
	if err != nil {
		return err
	}

	s, err := store.OpenWithLogger(cli.Render.Input, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	var region []byte
	if cli.Render.Region != "" {
		region, err = os.ReadFile(cli.Render.Region)
		if err != nil {
			return err
		}
	}

	renderer := render.New(s, logger)
	png, err := renderer.Render(context.Background(), render.Query{
		Box:           box,
		Width:         cli.Render.Width,
		Height:        cli.Render.Height,
		RegionGeoJSON: region,
	})
	if err != nil {
		return err
	}

	if err := os.WriteFile(cli.Render.Output, png, 0o644); err != nil {
		return err
	}
	logger.Printf("wrote %s (%d bytes)", cli.Render.Output, len(png))
	return nil
}

func parseBbox(s string) (geo.Box, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return geo.Box{}, fmt.Errorf("bbox must be min_lon,min_lat,max_lon,max_lat")
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return geo.Box{}, fmt.Errorf("bbox value %q: %w", p, err)
		}
		vals[i] = v
	}
	return geo.Box{MinLon: vals[0], MinLat: vals[1], MaxLon: vals[2], MaxLat: vals[3]}, nil
}
