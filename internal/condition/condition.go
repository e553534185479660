// Package condition describes experimental condition combinations: the
// factor levels a heatmap is computed for, the cross product the batch walks,
// and the deterministic names the rendered assets are written under.
package condition

import (
	"fmt"
	"iter"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Axis identifies the spatial factor of a study variant.
type Axis int

const (
	// AxisLocation: the stimulus is delivered at a fraction 0..1 along the limb.
	AxisLocation Axis = iota
	// AxisDirection: the stimulus moves in direction 0 or 1.
	AxisDirection
)

func (a Axis) String() string {
	switch a {
	case AxisLocation:
		return "location"
	case AxisDirection:
		return "direction"
	default:
		return "unknown"
	}
}

// ParseAxis parses "location" or "direction".
func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "location", "loc":
		return AxisLocation, nil
	case "direction", "dir":
		return AxisDirection, nil
	}
	return AxisLocation, fmt.Errorf("unknown axis %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (a Axis) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Axis) UnmarshalText(b []byte) error {
	v, err := ParseAxis(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Level is one value of a factor, or the wildcard matching every value.
type Level struct {
	Value float64
	Any   bool
}

// At returns the level for a concrete value.
func At(v float64) Level { return Level{Value: v} }

// All is the wildcard level.
var All = Level{Any: true}

// Matches reports whether v satisfies the level. Values are compared with a
// small tolerance since they round-trip through spreadsheets.
func (l Level) Matches(v float64) bool {
	return l.Any || math.Abs(l.Value-v) < 1e-9
}

func (l Level) String() string {
	if l.Any {
		return "all"
	}
	return formatFloat(l.Value)
}

// Combination is one concrete assignment of factor levels.
type Combination struct {
	Axis        Axis
	Temperature float64
	Duration    Level
	// Position is the location fraction for AxisLocation or the direction
	// (0 or 1) for AxisDirection.
	Position Level
	// Illusion is the reported-illusion level (1, 0 or All). Nil when the
	// batch does not split by illusion.
	Illusion *Level
}

// Warm reports whether the combination is a warm stimulus.
func (c Combination) Warm() bool { return c.Temperature > 0 }

// MarkerFraction returns where along the limb the stimulus marker belongs.
// ok is false for wildcard positions, which get no marker.
func (c Combination) MarkerFraction() (fraction float64, ok bool) {
	if c.Position.Any {
		return 0, false
	}
	return c.Position.Value, true
}

func (c Combination) String() string {
	s := fmt.Sprintf("temp=%s dur=%s %s=%s",
		formatFloat(c.Temperature), c.Duration, c.Axis, c.Position)
	if c.Illusion != nil {
		s += " illusion=" + c.Illusion.String()
	}
	return s
}

// Filename returns the deterministic asset name for the combination rendered
// over the given participants, e.g. "p1-16_temp-9_dur-0.1_loc-25.png" or,
// split by illusion, "p1-16_ill-1_temp-9_dur-0.1_loc-25.png". Locations are
// written in percent, rounded to the nearest integer.
func (c Combination) Filename(participants []int) string {
	var pos string
	switch c.Axis {
	case AxisDirection:
		pos = "dir-" + c.Position.String()
	default:
		if c.Position.Any {
			pos = "loc-all"
		} else {
			pos = fmt.Sprintf("loc-%d", int(math.Round(c.Position.Value*100)))
		}
	}
	prefix := ParticipantString(participants)
	if c.Illusion != nil {
		prefix += "_ill-" + c.Illusion.String()
	}
	return fmt.Sprintf("%s_temp-%s_dur-%s_%s.png",
		prefix, formatFloat(c.Temperature), c.Duration, pos)
}

// Job is a combination restricted to a participant set.
type Job struct {
	Combination  Combination
	Participants []int
	// Group is the full participant set of the batch; it keys the output folder.
	Group []int
}

// Single reports whether the job renders one participant.
func (j Job) Single() bool { return len(j.Participants) == 1 }

// RelPath is the asset path relative to the output root.
func (j Job) RelPath() string {
	return filepath.Join(ParticipantString(j.Group), j.Combination.Filename(j.Participants))
}

func (j Job) String() string {
	return fmt.Sprintf("%s [%s]", j.Combination, ParticipantString(j.Participants))
}

// Space is the set of factor levels the batch iterates over.
type Space struct {
	Axis         Axis
	Temperatures []float64
	Durations    []float64
	// Positions are location fractions or directions depending on Axis.
	Positions []float64
	// AllPositions adds a wildcard position level after the concrete ones.
	AllPositions bool
	// AllDurations adds a wildcard duration level after the concrete ones.
	AllDurations bool
	// Illusions splits the batch by reported illusion (typically 1 and 0).
	// Empty means no split.
	Illusions []float64
	// AllIllusions adds a wildcard illusion level after the concrete ones.
	AllIllusions bool
}

// Size returns the number of combinations in the space.
func (s Space) Size() int {
	return len(s.illusionLevels()) * len(s.Temperatures) * len(s.positionLevels()) * len(s.durationLevels())
}

// Combinations yields the cross product in illusion, temperature, position,
// duration order.
func (s Space) Combinations() iter.Seq[Combination] {
	return func(yield func(Combination) bool) {
		illusions := s.illusionLevels()
		positions := s.positionLevels()
		durations := s.durationLevels()
		for _, ill := range illusions {
			for _, t := range s.Temperatures {
				for _, p := range positions {
					for _, d := range durations {
						c := Combination{Axis: s.Axis, Temperature: t, Duration: d, Position: p}
						if ill != nil {
							l := *ill
							c.Illusion = &l
						}
						if !yield(c) {
							return
						}
					}
				}
			}
		}
	}
}

// Jobs yields, per combination, the group job followed by one job per
// participant when perParticipant is set. A single-participant group gets no
// extra job since it would write the same asset.
func (s Space) Jobs(participants []int, perParticipant bool) iter.Seq[Job] {
	group := Normalize(participants)
	return func(yield func(Job) bool) {
		for c := range s.Combinations() {
			if !yield(Job{Combination: c, Participants: group, Group: group}) {
				return
			}
			if !perParticipant || len(group) < 2 {
				continue
			}
			for _, p := range group {
				if !yield(Job{Combination: c, Participants: []int{p}, Group: group}) {
					return
				}
			}
		}
	}
}

func (s Space) positionLevels() []Level {
	levels := make([]Level, 0, len(s.Positions)+1)
	for _, p := range s.Positions {
		levels = append(levels, At(p))
	}
	if s.AllPositions {
		levels = append(levels, All)
	}
	return levels
}

// illusionLevels returns a single nil entry when the space is not split by
// illusion.
func (s Space) illusionLevels() []*Level {
	if len(s.Illusions) == 0 && !s.AllIllusions {
		return []*Level{nil}
	}
	levels := make([]*Level, 0, len(s.Illusions)+1)
	for _, v := range s.Illusions {
		l := At(v)
		levels = append(levels, &l)
	}
	if s.AllIllusions {
		all := All
		levels = append(levels, &all)
	}
	return levels
}

func (s Space) durationLevels() []Level {
	levels := make([]Level, 0, len(s.Durations)+1)
	for _, d := range s.Durations {
		levels = append(levels, At(d))
	}
	if s.AllDurations {
		levels = append(levels, All)
	}
	return levels
}

// Normalize returns a sorted copy of participants without duplicates.
func Normalize(participants []int) []int {
	out := append([]int(nil), participants...)
	sort.Ints(out)
	n := 0
	for i, p := range out {
		if i > 0 && p == out[n-1] {
			continue
		}
		out[n] = p
		n++
	}
	return out[:n]
}

// ParticipantString compacts a participant set into its range form:
// [1 2 3 6 8 9 10] -> "p1-3-6-8-10". Consecutive runs collapse to
// "first-last"; singletons stand alone.
func ParticipantString(participants []int) string {
	ps := Normalize(participants)
	if len(ps) == 0 {
		return "p"
	}

	var parts []string
	start, prev := ps[0], ps[0]
	flush := func() {
		if start == prev {
			parts = append(parts, strconv.Itoa(start))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", start, prev))
		}
	}
	for _, p := range ps[1:] {
		if p == prev+1 {
			prev = p
			continue
		}
		flush()
		start, prev = p, p
	}
	flush()

	return "p" + strings.Join(parts, "-")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
