package render

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/couchcryptid/hydrometric-etl/internal/domain"
)

// ChartsDir is the chart directory under the output root.
const ChartsDir = "charts"

// SaveReport renders every chart of a report into dir/charts and returns the
// written paths. Charts without enough data are skipped; other failures are
// joined into the returned error.
func SaveReport(dir string, r domain.StationReport) ([]string, error) {
	charts := []struct {
		suffix string
		draw   func(io.Writer, domain.StationReport) error
	}{
		{"hydrograph", Hydrograph},
		{"hydrograph_zoom", HydrographZoom},
		{"exceedance", Exceedance},
	}

	var (
		paths []string
		errs  []error
	)
	for _, c := range charts {
		path := filepath.Join(dir, ChartsDir, fmt.Sprintf("%s_%s_%s.png", r.Station.Code, r.Variable, c.suffix))
		err := SavePNG(path, func(w io.Writer) error { return c.draw(w, r) })
		switch {
		case errors.Is(err, ErrNotEnoughData):
			continue
		case err != nil:
			errs = append(errs, fmt.Errorf("%s: %w", c.suffix, err))
		default:
			paths = append(paths, path)
		}
	}
	return paths, errors.Join(errs...)
}

// SavePNG renders into memory first so a failed render leaves no file.
func SavePNG(path string, draw func(io.Writer) error) error {
	var buf bytes.Buffer
	if err := draw(&buf); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create chart directory: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write chart file: %w", err)
	}
	return nil
}
