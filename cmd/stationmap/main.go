// Command stationmap draws the hydrometric stations of a stations CSV as a
// PNG map, optionally over watershed and flowline shapefiles.
//
// Usage:
//
//	go run ./cmd/stationmap \
//	  -stations data/mock/stations.csv \
//	  -watershed data/shp/bow_watershed.shp \
//	  -flowlines data/shp/bow_flowlines.shp \
//	  -out output/charts/station_map.png
package main

import (
	"flag"
	"fmt"
	"io"
	"log"

	"github.com/couchcryptid/hydrometric-etl/internal/adapter/csvstore"
	"github.com/couchcryptid/hydrometric-etl/internal/render"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	stationsPath := flag.String("stations", "", "stations CSV (STATION_NUMBER, LATITUDE, LONGITUDE)")
	watershed := flag.String("watershed", "", "optional watershed boundary shapefile")
	flowlines := flag.String("flowlines", "", "optional flowline shapefile")
	out := flag.String("out", "station_map.png", "output PNG path")
	title := flag.String("title", "Hydrometric Stations", "map title")
	flag.Parse()

	if *stationsPath == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -stations")
	}

	stations, err := csvstore.ReadStations(*stationsPath)
	if err != nil {
		return fmt.Errorf("read stations: %w", err)
	}

	var overlays []render.Overlay
	for _, layer := range []struct {
		path  string
		style render.Overlay
	}{
		{*watershed, render.WatershedStyle},
		{*flowlines, render.FlowlineStyle},
	} {
		if layer.path == "" {
			continue
		}
		o, err := render.LoadOverlay(layer.path, layer.style)
		if err != nil {
			return err
		}
		overlays = append(overlays, o)
	}

	err = render.SavePNG(*out, func(w io.Writer) error {
		return render.StationMap(w, *title, stations, overlays...)
	})
	if err != nil {
		return fmt.Errorf("render station map: %w", err)
	}
	log.Printf("wrote %s: %d stations, %d overlays", *out, len(stations), len(overlays))
	return nil
}
