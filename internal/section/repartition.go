package section

// Percentile thresholds of the strengths/weaknesses split. Lower percentiles
// are faster. Between the two the model's choice stands.
const (
	StrengthMaxPercentile = 25.0
	WeaknessMinPercentile = 30.0
)

type Side string

const (
	SideStrength Side = "strength"
	SideWeakness Side = "weakness"
)

// Classify returns the side a segment at percentile belongs on, keeping
// current inside the dead zone.
func Classify(percentile float64, current Side) Side {
	switch {
	case percentile <= StrengthMaxPercentile:
		return SideStrength
	case percentile >= WeaknessMinPercentile:
		return SideWeakness
	default:
		return current
	}
}

// Repartition moves items between strengths and weaknesses by their
// percentile. Items without a percentile stay where they are; relative
// order is kept.
func Repartition[T any](strengths, weaknesses []T, percentile func(T) (float64, bool)) ([]T, []T) {
	var s, w []T
	place := func(it T, current Side) {
		side := current
		if p, ok := percentile(it); ok {
			side = Classify(p, current)
		}
		if side == SideStrength {
			s = append(s, it)
		} else {
			w = append(w, it)
		}
	}
	for _, it := range strengths {
		place(it, SideStrength)
	}
	for _, it := range weaknesses {
		place(it, SideWeakness)
	}
	return s, w
}
