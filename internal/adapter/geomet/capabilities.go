package geomet

import (
	"encoding/xml"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

// wmsCapabilities is the subset of a WMS 1.3.0 GetCapabilities document the
// client reads. Layers nest arbitrarily deep under Capability.
type wmsCapabilities struct {
	XMLName xml.Name   `xml:"WMS_Capabilities"`
	Version string     `xml:"version,attr"`
	Layers  []wmsLayer `xml:"Capability>Layer"`
}

type wmsLayer struct {
	Name       string         `xml:"Name"`
	Title      string         `xml:"Title"`
	Dimensions []wmsDimension `xml:"Dimension"`
	Layers     []wmsLayer     `xml:"Layer"`
}

type wmsDimension struct {
	Name    string `xml:"name,attr"`
	Units   string `xml:"units,attr"`
	Default string `xml:"default,attr"`
	Value   string `xml:",chardata"`
}

// ForecastRun describes the newest model run of a layer: its reference time
// and the valid times it provides, in ascending order.
type ForecastRun struct {
	Layer     string
	Reference time.Time
	Times     []time.Time
}

// Empty reports whether the run has no lead times.
func (r ForecastRun) Empty() bool { return len(r.Times) == 0 }

func parseCapabilities(body []byte) (wmsCapabilities, error) {
	var caps wmsCapabilities
	if err := xml.Unmarshal(body, &caps); err != nil {
		return wmsCapabilities{}, fmt.Errorf("decode WMS capabilities: %w", err)
	}
	return caps, nil
}

func (c wmsCapabilities) layer(name string) (wmsLayer, bool) {
	return findLayer(c.Layers, name)
}

func findLayer(layers []wmsLayer, name string) (wmsLayer, bool) {
	for _, l := range layers {
		if l.Name == name {
			return l, true
		}
		if found, ok := findLayer(l.Layers, name); ok {
			return found, true
		}
	}
	return wmsLayer{}, false
}

func (l wmsLayer) dimension(name string) (wmsDimension, bool) {
	for _, d := range l.Dimensions {
		if strings.EqualFold(d.Name, name) {
			return d, true
		}
	}
	return wmsDimension{}, false
}

// runFromLayer reads the time and reference_time dimensions of a layer.
func runFromLayer(l wmsLayer) (ForecastRun, error) {
	td, ok := l.dimension("time")
	if !ok {
		return ForecastRun{}, fmt.Errorf("layer %s has no time dimension", l.Name)
	}
	times, err := expandTimes(td.Value)
	if err != nil {
		return ForecastRun{}, fmt.Errorf("layer %s time dimension: %w", l.Name, err)
	}

	run := ForecastRun{Layer: l.Name, Times: times}
	if rd, ok := l.dimension("reference_time"); ok {
		refs, err := expandTimes(rd.Value)
		if err != nil {
			return ForecastRun{}, fmt.Errorf("layer %s reference_time dimension: %w", l.Name, err)
		}
		run.Reference = refs[len(refs)-1]
	}
	return run, nil
}

// expandTimes expands a WMS time dimension value. Both "start/end/period"
// intervals and comma-separated lists are accepted, or a mix of the two.
// The result is sorted and de-duplicated.
func expandTimes(value string) ([]time.Time, error) {
	var out []time.Time
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, "/")
		switch len(fields) {
		case 1:
			t, err := parseTime(fields[0])
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		case 3:
			start, err := parseTime(fields[0])
			if err != nil {
				return nil, err
			}
			end, err := parseTime(fields[1])
			if err != nil {
				return nil, err
			}
			step, err := parsePeriod(fields[2])
			if err != nil {
				return nil, err
			}
			for t := start; !t.After(end); t = t.Add(step) {
				out = append(out, t)
			}
		default:
			return nil, fmt.Errorf("malformed time interval %q", part)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("empty time dimension")
	}
	slices.SortFunc(out, func(a, b time.Time) int { return a.Compare(b) })
	return slices.CompactFunc(out, func(a, b time.Time) bool { return a.Equal(b) }), nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t.UTC(), nil
}

var periodRE = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?)?$`)

// parsePeriod parses the ISO 8601 durations GeoMet uses for dimension steps
// (PT1H, PT3H, P1D, PT30M).
func parsePeriod(s string) (time.Duration, error) {
	m := periodRE.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(s)))
	if m == nil {
		return 0, fmt.Errorf("unsupported period %q", s)
	}
	units := []time.Duration{24 * time.Hour, time.Hour, time.Minute}
	var d time.Duration
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, fmt.Errorf("unsupported period %q: %w", s, err)
		}
		d += time.Duration(n) * unit
	}
	if d <= 0 {
		return 0, fmt.Errorf("period %q must be positive", s)
	}
	return d, nil
}
