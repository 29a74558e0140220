package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// ThresholdTable maps return periods (years) to a discharge threshold per
// station. Discharge[code][i] is the threshold for ReturnPeriods[i]; a nil
// entry is a blank cell in the source table.
type ThresholdTable struct {
	ReturnPeriods []float64
	Discharge     map[string][]*float64
}

// Threshold is one (return period, discharge) pair for a single station.
type Threshold struct {
	ReturnPeriod float64 `json:"return_period"`
	Value        float64 `json:"value"`
}

// ForStation returns the station's non-blank thresholds sorted by return
// period, largest first. An unknown station yields none.
func (t ThresholdTable) ForStation(station string) []Threshold {
	col, ok := t.Discharge[station]
	if !ok {
		return nil
	}
	out := make([]Threshold, 0, len(t.ReturnPeriods))
	for i, rp := range t.ReturnPeriods {
		if i >= len(col) || col[i] == nil || math.IsNaN(*col[i]) {
			continue
		}
		out = append(out, Threshold{ReturnPeriod: rp, Value: *col[i]})
	}
	slices.SortStableFunc(out, func(a, b Threshold) int {
		switch {
		case a.ReturnPeriod > b.ReturnPeriod:
			return -1
		case a.ReturnPeriod < b.ReturnPeriod:
			return 1
		default:
			return 0
		}
	})
	return out
}

// Stations returns the station codes that have a column, sorted.
func (t ThresholdTable) Stations() []string {
	codes := make([]string, 0, len(t.Discharge))
	for code := range t.Discharge {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	return codes
}

// Validate reports station columns whose thresholds do not increase with the
// return period. Classification does not depend on monotonic input, so these
// are warnings for the caller to surface.
func (t ThresholdTable) Validate() []error {
	var errs []error
	for _, code := range t.Stations() {
		ths := t.ForStation(code)
		// ths is descending by return period; values must be descending too.
		for i := 1; i < len(ths); i++ {
			if ths[i].Value > ths[i-1].Value {
				errs = append(errs, fmt.Errorf("station %s: %g-year threshold %g exceeds %g-year threshold %g",
					code, ths[i].ReturnPeriod, ths[i].Value, ths[i-1].ReturnPeriod, ths[i-1].Value))
			}
		}
	}
	return errs
}

const (
	floorPrefix  = "Less than "
	belowTracked = "Below tracked return periods"
)

// LabelKind distinguishes the three exceedance outcomes.
type LabelKind int

const (
	// LabelMissing marks an observation without a value.
	LabelMissing LabelKind = iota
	// LabelFloor marks a value below every tracked threshold.
	LabelFloor
	// LabelExceeds marks a value meeting the ReturnPeriod threshold.
	LabelExceeds
)

// Label is the exceedance class of one observation. For LabelExceeds,
// ReturnPeriod is the largest return period met. For LabelFloor it is the
// smallest tracked return period (0 when the station has no thresholds).
type Label struct {
	Kind         LabelKind `json:"kind"`
	ReturnPeriod float64   `json:"return_period,omitempty"`
}

// Exceeds reports whether the label meets at least the given return period.
func (l Label) Exceeds(returnPeriod float64) bool {
	return l.Kind == LabelExceeds && l.ReturnPeriod >= returnPeriod
}

func (l Label) String() string {
	switch l.Kind {
	case LabelExceeds:
		return formatPeriod(l.ReturnPeriod) + "-year"
	case LabelFloor:
		if l.ReturnPeriod > 0 {
			return floorPrefix + formatPeriod(l.ReturnPeriod) + " year"
		}
		return belowTracked
	default:
		return ""
	}
}

// MarshalJSON encodes the label as its display string so downstream
// consumers do not depend on LabelKind values.
func (l Label) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// ParseLabel is the inverse of Label.String.
func ParseLabel(s string) (Label, error) {
	switch {
	case s == "":
		return Label{Kind: LabelMissing}, nil
	case s == belowTracked:
		return Label{Kind: LabelFloor}, nil
	case strings.HasPrefix(s, floorPrefix) && strings.HasSuffix(s, " year"):
		rp, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimPrefix(s, floorPrefix), " year"), 64)
		if err != nil {
			return Label{}, fmt.Errorf("parse label %q: %w", s, err)
		}
		return Label{Kind: LabelFloor, ReturnPeriod: rp}, nil
	case strings.HasSuffix(s, "-year"):
		rp, err := strconv.ParseFloat(strings.TrimSuffix(s, "-year"), 64)
		if err != nil {
			return Label{}, fmt.Errorf("parse label %q: %w", s, err)
		}
		return Label{Kind: LabelExceeds, ReturnPeriod: rp}, nil
	default:
		return Label{}, fmt.Errorf("parse label %q: unknown form", s)
	}
}

// UnmarshalJSON decodes the display string written by MarshalJSON.
func (l *Label) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseLabel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

func formatPeriod(rp float64) string {
	return strconv.FormatFloat(rp, 'f', -1, 64)
}

// LabelledObservation pairs an observation with its exceedance label.
type LabelledObservation struct {
	Observation
	Label Label `json:"label"`
}

// Classify labels every observation with the largest return period whose
// station threshold the value meets or exceeds. Values below every threshold
// get the floor label and missing values the missing label. The output has
// one label per observation, in input order.
func Classify(obs []Observation, table ThresholdTable, station string) []Label {
	ths := table.ForStation(station)
	floor := Label{Kind: LabelFloor}
	if len(ths) > 0 {
		floor.ReturnPeriod = ths[len(ths)-1].ReturnPeriod
	}

	labels := make([]Label, len(obs))
	for i, o := range obs {
		labels[i] = classifyValue(o.Value, ths, floor)
	}
	return labels
}

// classifyValue scans thresholds largest return period first, so the first
// threshold met is the answer. ths must be sorted by return period descending.
func classifyValue(v *float64, ths []Threshold, floor Label) Label {
	if v == nil || math.IsNaN(*v) {
		return Label{Kind: LabelMissing}
	}
	for _, th := range ths {
		if th.Value <= *v {
			return Label{Kind: LabelExceeds, ReturnPeriod: th.ReturnPeriod}
		}
	}
	return floor
}

// LabelSeries zips a series with its labels.
func LabelSeries(s Series, labels []Label) []LabelledObservation {
	out := make([]LabelledObservation, len(s.Points))
	for i, p := range s.Clone().Points {
		out[i] = LabelledObservation{Observation: p}
		if i < len(labels) {
			out[i].Label = labels[i]
		}
	}
	return out
}

// PeakLabel returns the most severe label: the largest exceeded return
// period, else a floor label if any value was present, else missing.
func PeakLabel(labels []Label) Label {
	peak := Label{Kind: LabelMissing}
	for _, l := range labels {
		switch {
		case l.Kind == LabelExceeds && (peak.Kind != LabelExceeds || l.ReturnPeriod > peak.ReturnPeriod):
			peak = l
		case l.Kind == LabelFloor && peak.Kind == LabelMissing:
			peak = l
		}
	}
	return peak
}
