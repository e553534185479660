package trial

import (
	"math"

	"thermomap/internal/condition"
)

// Rules are the perceptual-match constraints applied on top of the
// stimulus equalities.
type Rules struct {
	// ThermalMatch requires sign(Temperature) == sign(FeltThermal).
	ThermalMatch bool `yaml:"thermal_match"`
	// DirectionMatch requires Direction == FeltDirection.
	DirectionMatch bool `yaml:"direction_match"`
	// LocationTolerance, when positive, requires
	// |Location - FeltLocation| < LocationTolerance.
	LocationTolerance float64 `yaml:"location_tolerance"`
}

// Predicate selects the records of one condition combination. Each equality
// constraint may be the wildcard condition.All. The zero Predicate requires
// every stimulus field to be zero; use MatchAll for an unconstrained one.
type Predicate struct {
	Temperature condition.Level
	Duration    condition.Level
	Location    condition.Level
	Direction   condition.Level
	// Illusion constrains the reported FeltIllusion value.
	Illusion condition.Level
	Rules
}

// MatchAll returns a predicate without constraints.
func MatchAll() Predicate {
	return Predicate{
		Temperature: condition.All,
		Duration:    condition.All,
		Location:    condition.All,
		Direction:   condition.All,
		Illusion:    condition.All,
	}
}

// ForCombination builds the predicate selecting the trials of c.
func ForCombination(c condition.Combination, rules Rules) Predicate {
	p := MatchAll()
	p.Temperature = condition.At(c.Temperature)
	p.Duration = c.Duration
	switch c.Axis {
	case condition.AxisDirection:
		p.Direction = c.Position
	default:
		p.Location = c.Position
	}
	if c.Illusion != nil {
		p.Illusion = *c.Illusion
	}
	p.Rules = rules
	return p
}

// Matches reports whether r satisfies every constraint.
func (p Predicate) Matches(r Record) bool {
	if !p.Temperature.Matches(r.Temperature) || !p.Duration.Matches(r.Duration) {
		return false
	}
	if !matchOptional(p.Location, r.Location) || !matchOptional(p.Direction, r.Direction) {
		return false
	}
	if !matchOptional(p.Illusion, r.FeltIllusion) {
		return false
	}

	if p.ThermalMatch {
		if !r.FeltThermal.Valid || sign(r.Temperature) != sign(r.FeltThermal.V) {
			return false
		}
	}
	if p.DirectionMatch {
		if !r.Direction.Valid || !r.FeltDirection.Valid || r.Direction.V != r.FeltDirection.V {
			return false
		}
	}
	if p.LocationTolerance > 0 {
		if !r.Location.Valid || !r.FeltLocation.Valid ||
			math.Abs(r.Location.V-r.FeltLocation.V) >= p.LocationTolerance {
			return false
		}
	}
	return true
}

func matchOptional(l condition.Level, o Optional) bool {
	if l.Any {
		return true
	}
	return o.Valid && l.Matches(o.V)
}

// sign is three-valued: zero matches only zero.
func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// Selection maps each requested participant to its matching trials.
type Selection map[int][]int

// Count returns the total number of selected trials.
func (s Selection) Count() int {
	n := 0
	for _, trials := range s {
		n += len(trials)
	}
	return n
}

// Select returns, for every requested participant, the trials of records
// that satisfy p, in record order. Participants without matches map to an
// empty, non-nil list.
func Select(records []Record, participants []int, p Predicate) Selection {
	sel := make(Selection, len(participants))
	for _, id := range participants {
		sel[id] = []int{}
	}
	for _, r := range records {
		trials, ok := sel[r.Participant]
		if !ok {
			continue
		}
		if p.Matches(r) {
			sel[r.Participant] = append(trials, r.Trial)
		}
	}
	return sel
}
