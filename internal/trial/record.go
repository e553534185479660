// Package trial loads per-participant trial records and selects the trials
// matching a condition combination.
package trial

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrNoRecordFile is returned when a participant has no record table.
var ErrNoRecordFile = errors.New("no record file")

// ErrDuplicateTrial is returned when a table holds the same
// (participant, trial) pair twice.
var ErrDuplicateTrial = errors.New("duplicate trial")

// ErrInvalidRow marks a row that was skipped because it failed to parse or
// validate.
var ErrInvalidRow = errors.New("invalid row")

// RowError describes one skipped row. Row is 1-based and counts the header.
type RowError struct {
	Row int
	Err error
}

func (e RowError) Error() string { return fmt.Sprintf("row %d: %v", e.Row, e.Err) }

// Unwrap exposes ErrInvalidRow and the underlying cause.
func (e RowError) Unwrap() []error { return []error{ErrInvalidRow, e.Err} }

// Optional is a numeric field that may be absent from a row.
type Optional struct {
	V     float64
	Valid bool
}

// Some returns a present value.
func Some(v float64) Optional { return Optional{V: v, Valid: true} }

func (o Optional) String() string {
	if !o.Valid {
		return "-"
	}
	return strconv.FormatFloat(o.V, 'f', -1, 64)
}

// Record is one (participant, trial) row: the stimulus that was delivered
// and what the participant reported feeling.
type Record struct {
	Participant int
	Trial       int
	Temperature float64
	Duration    float64
	// Exactly one of Location and Direction is present.
	Location  Optional
	Direction Optional

	FeltThermal   Optional
	FeltLocation  Optional
	FeltDirection Optional
	FeltMotion    Optional
	NumLocation   Optional
	FeltIllusion  Optional
}

// Key identifies a record within a dataset.
type Key struct {
	Participant int
	Trial       int
}

// Key returns the record's identity.
func (r Record) Key() Key { return Key{Participant: r.Participant, Trial: r.Trial} }

// Validate checks the invariants of a single record.
func (r Record) Validate() error {
	if r.Participant < 1 {
		return fmt.Errorf("participant %d: must be >= 1", r.Participant)
	}
	if r.Trial < 1 {
		return fmt.Errorf("trial %d: must be >= 1", r.Trial)
	}
	if math.IsNaN(r.Temperature) {
		return fmt.Errorf("trial %d: temperature is not a number", r.Trial)
	}
	if !(r.Duration > 0) {
		return fmt.Errorf("trial %d: duration %v must be > 0", r.Trial, r.Duration)
	}
	switch {
	case r.Location.Valid && r.Direction.Valid:
		return fmt.Errorf("trial %d: both location and direction set", r.Trial)
	case r.Location.Valid:
		if r.Location.V < 0 || r.Location.V > 1 {
			return fmt.Errorf("trial %d: location %v outside [0,1]", r.Trial, r.Location.V)
		}
	case r.Direction.Valid:
		if r.Direction.V != 0 && r.Direction.V != 1 {
			return fmt.Errorf("trial %d: direction %v not in {0,1}", r.Trial, r.Direction.V)
		}
	default:
		return fmt.Errorf("trial %d: neither location nor direction set", r.Trial)
	}
	return nil
}

// column names, matched case-insensitively
const (
	colParticipant   = "participant"
	colTrial         = "trial"
	colTemperature   = "temperature"
	colDuration      = "duration"
	colLocation      = "location"
	colDirection     = "direction"
	colFeltThermal   = "feltthermal"
	colFeltLocation  = "feltlocation"
	colFeltDirection = "feltdirection"
	colFeltMotion    = "feltmotion"
	colNumLocation   = "numlocation"
	colFeltIllusion  = "feltillusion"
)

// header maps normalized column names to their index.
type header map[string]int

func newHeader(cells []string) header {
	h := make(header, len(cells))
	for i, c := range cells {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(c, "\ufeff")))
		if name == "" {
			continue
		}
		if _, dup := h[name]; !dup {
			h[name] = i
		}
	}
	return h
}

func (h header) has(name string) bool {
	_, ok := h[name]
	return ok
}

func (h header) cell(row []string, name string) string {
	i, ok := h[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (h header) optional(row []string, name string) (Optional, error) {
	s := h.cell(row, name)
	v, ok, err := parseNumber(s)
	if err != nil {
		return Optional{}, fmt.Errorf("column %s: %w", name, err)
	}
	if !ok {
		return Optional{}, nil
	}
	return Some(v), nil
}

func (h header) required(row []string, name string) (float64, error) {
	o, err := h.optional(row, name)
	if err != nil {
		return 0, err
	}
	if !o.Valid {
		return 0, fmt.Errorf("column %s: missing value", name)
	}
	return o.V, nil
}

func (h header) integer(row []string, name string) (int, error) {
	v, err := h.required(row, name)
	if err != nil {
		return 0, err
	}
	if v != math.Trunc(v) {
		return 0, fmt.Errorf("column %s: %v is not an integer", name, v)
	}
	return int(v), nil
}

// parseNumber parses a spreadsheet cell. Empty and NaN cells are absent;
// booleans map to 0 and 1.
func parseNumber(s string) (float64, bool, error) {
	switch strings.ToLower(s) {
	case "", "nan", "na", "null", "none":
		return 0, false, nil
	case "true":
		return 1, true, nil
	case "false":
		return 0, true, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid number %q", s)
	}
	if math.IsNaN(v) {
		return 0, false, nil
	}
	return v, true, nil
}

// parseRows converts a header row plus data rows into validated records.
// participant is used when the table has no participant column; when it
// does, every row must agree with it (0 accepts any). Rows that fail to parse
// or validate are skipped and reported; a missing column or a duplicate trial
// rejects the table.
func parseRows(rows [][]string, participant int) ([]Record, []RowError, error) {
	if len(rows) == 0 {
		return nil, nil, errors.New("empty table")
	}
	h := newHeader(rows[0])
	for _, name := range []string{colTrial, colTemperature, colDuration} {
		if !h.has(name) {
			return nil, nil, fmt.Errorf("missing column %q", name)
		}
	}
	if !h.has(colLocation) && !h.has(colDirection) {
		return nil, nil, fmt.Errorf("missing column %q or %q", colLocation, colDirection)
	}

	seen := make(map[Key]bool)
	var records []Record
	var skipped []RowError
	for i, row := range rows[1:] {
		if blank(row) {
			continue
		}
		r, err := parseRow(h, row, participant)
		if err != nil {
			skipped = append(skipped, RowError{Row: i + 2, Err: err})
			continue
		}
		if seen[r.Key()] {
			return nil, nil, fmt.Errorf("row %d: %w: participant %d trial %d", i+2, ErrDuplicateTrial, r.Participant, r.Trial)
		}
		seen[r.Key()] = true
		records = append(records, r)
	}
	return records, skipped, nil
}

func parseRow(h header, row []string, participant int) (Record, error) {
	var r Record
	var err error

	r.Participant = participant
	if h.has(colParticipant) && h.cell(row, colParticipant) != "" {
		p, err := h.integer(row, colParticipant)
		if err != nil {
			return r, err
		}
		if participant != 0 && p != participant {
			return r, fmt.Errorf("participant %d in table for participant %d", p, participant)
		}
		r.Participant = p
	}

	if r.Trial, err = h.integer(row, colTrial); err != nil {
		return r, err
	}
	if r.Temperature, err = h.required(row, colTemperature); err != nil {
		return r, err
	}
	if r.Duration, err = h.required(row, colDuration); err != nil {
		return r, err
	}

	fields := []struct {
		name string
		dst  *Optional
	}{
		{colLocation, &r.Location},
		{colDirection, &r.Direction},
		{colFeltThermal, &r.FeltThermal},
		{colFeltLocation, &r.FeltLocation},
		{colFeltDirection, &r.FeltDirection},
		{colFeltMotion, &r.FeltMotion},
		{colNumLocation, &r.NumLocation},
		{colFeltIllusion, &r.FeltIllusion},
	}
	for _, f := range fields {
		if *f.dst, err = h.optional(row, f.name); err != nil {
			return r, err
		}
	}

	return r, r.Validate()
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
