package models

import "fmt"

// SegmentKind classifies a timed part of a race.
type SegmentKind string

const (
	SegmentKindRun        SegmentKind = "run"
	SegmentKindStation    SegmentKind = "station"
	SegmentKindTransition SegmentKind = "transition"
)

// Segment is one of the 16 timed sub-efforts of a race (8 runs, 8 stations)
// or the Roxzone transition time. Lap i pairs RUN_i with the i-th station.
type Segment int

const (
	SegmentRun1 Segment = iota
	SegmentRun2
	SegmentRun3
	SegmentRun4
	SegmentRun5
	SegmentRun6
	SegmentRun7
	SegmentRun8
	SegmentSkiErg
	SegmentSledPush
	SegmentSledPull
	SegmentBurpeeBroadJump
	SegmentRowErg
	SegmentFarmersCarry
	SegmentSandbagLunges
	SegmentWallBalls
	SegmentRoxzone
)

type segmentInfo struct {
	display string
	field   Field
	kind    SegmentKind
}

var segmentTable = [...]segmentInfo{
	SegmentRun1:            {"Run 1", FieldRun1, SegmentKindRun},
	SegmentRun2:            {"Run 2", FieldRun2, SegmentKindRun},
	SegmentRun3:            {"Run 3", FieldRun3, SegmentKindRun},
	SegmentRun4:            {"Run 4", FieldRun4, SegmentKindRun},
	SegmentRun5:            {"Run 5", FieldRun5, SegmentKindRun},
	SegmentRun6:            {"Run 6", FieldRun6, SegmentKindRun},
	SegmentRun7:            {"Run 7", FieldRun7, SegmentKindRun},
	SegmentRun8:            {"Run 8", FieldRun8, SegmentKindRun},
	SegmentSkiErg:          {"SkiErg", FieldSkiErg, SegmentKindStation},
	SegmentSledPush:        {"Sled Push", FieldSledPush, SegmentKindStation},
	SegmentSledPull:        {"Sled Pull", FieldSledPull, SegmentKindStation},
	SegmentBurpeeBroadJump: {"Burpee Broad Jump", FieldBurpeeBroadJump, SegmentKindStation},
	SegmentRowErg:          {"Row Erg", FieldRowErg, SegmentKindStation},
	SegmentFarmersCarry:    {"Farmers Carry", FieldFarmersCarry, SegmentKindStation},
	SegmentSandbagLunges:   {"Sandbag Lunges", FieldSandbagLunges, SegmentKindStation},
	SegmentWallBalls:       {"Wall Balls", FieldWallBalls, SegmentKindStation},
	SegmentRoxzone:         {"Roxzone", FieldRoxzone, SegmentKindTransition},
}

// Runs lists the 8 running segments in race order.
var Runs = [8]Segment{
	SegmentRun1, SegmentRun2, SegmentRun3, SegmentRun4,
	SegmentRun5, SegmentRun6, SegmentRun7, SegmentRun8,
}

// Stations lists the 8 workout stations in race order.
var Stations = [8]Segment{
	SegmentSkiErg, SegmentSledPush, SegmentSledPull, SegmentBurpeeBroadJump,
	SegmentRowErg, SegmentFarmersCarry, SegmentSandbagLunges, SegmentWallBalls,
}

// String returns the display name, e.g. "Run 3" or "Sled Push".
func (s Segment) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Segment(%d)", int(s))
	}
	return segmentTable[s].display
}

// Valid reports whether s is a known segment.
func (s Segment) Valid() bool {
	return s >= SegmentRun1 && s <= SegmentRoxzone
}

// Field returns the statistics field holding this segment's time.
func (s Segment) Field() Field {
	return segmentTable[s].field
}

// Kind returns whether the segment is a run, a station or the transition.
func (s Segment) Kind() SegmentKind {
	return segmentTable[s].kind
}

// Lap returns the 1-based lap number for runs and stations, 0 for Roxzone.
func (s Segment) Lap() int {
	switch s.Kind() {
	case SegmentKindRun:
		return int(s-SegmentRun1) + 1
	case SegmentKindStation:
		return int(s-SegmentSkiErg) + 1
	default:
		return 0
	}
}

// AllSegments returns every segment: runs, stations, then Roxzone.
func AllSegments() []Segment {
	out := make([]Segment, 0, len(segmentTable))
	for i := range segmentTable {
		out = append(out, Segment(i))
	}
	return out
}

// ParseSegment resolves a display name ("Run 5", "Wall Balls", "Roxzone").
func ParseSegment(name string) (Segment, bool) {
	for i := range segmentTable {
		if segmentTable[i].display == name {
			return Segment(i), true
		}
	}
	return 0, false
}

// Field names one of the 20 per-result time columns, all in minutes.
type Field string

const (
	FieldTotal           Field = "total_time"
	FieldRun             Field = "run_time"
	FieldWork            Field = "work_time"
	FieldRoxzone         Field = "roxzone_time"
	FieldRun1            Field = "run1_time"
	FieldRun2            Field = "run2_time"
	FieldRun3            Field = "run3_time"
	FieldRun4            Field = "run4_time"
	FieldRun5            Field = "run5_time"
	FieldRun6            Field = "run6_time"
	FieldRun7            Field = "run7_time"
	FieldRun8            Field = "run8_time"
	FieldSkiErg          Field = "skierg_time"
	FieldSledPush        Field = "sled_push_time"
	FieldSledPull        Field = "sled_pull_time"
	FieldBurpeeBroadJump Field = "burpee_broad_jump_time"
	FieldRowErg          Field = "row_erg_time"
	FieldFarmersCarry    Field = "farmers_carry_time"
	FieldSandbagLunges   Field = "sandbag_lunges_time"
	FieldWallBalls       Field = "wall_balls_time"
)

// StatsFields is every field cohort statistics are computed for.
var StatsFields = []Field{
	FieldTotal, FieldRun, FieldWork, FieldRoxzone,
	FieldRun1, FieldRun2, FieldRun3, FieldRun4,
	FieldRun5, FieldRun6, FieldRun7, FieldRun8,
	FieldSkiErg, FieldSledPush, FieldSledPull, FieldBurpeeBroadJump,
	FieldRowErg, FieldFarmersCarry, FieldSandbagLunges, FieldWallBalls,
}
