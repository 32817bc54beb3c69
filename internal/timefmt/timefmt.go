// Package timefmt renders race times and time deltas for report text.
package timefmt

import (
	"fmt"
	"math"
)

// Improvement renders a recoverable amount of seconds the way reports show
// it: "约 0 秒", "约 45 秒", "约 2 分", "约 2 分 5 秒".
func Improvement(seconds float64) string {
	s := int(math.Round(seconds))
	if s <= 0 {
		return "约 0 秒"
	}
	if s < 60 {
		return fmt.Sprintf("约 %d 秒", s)
	}
	m, rem := s/60, s%60
	if rem == 0 {
		return fmt.Sprintf("约 %d 分", m)
	}
	return fmt.Sprintf("约 %d 分 %d 秒", m, rem)
}

// Duration renders seconds as M:SS, or H:MM:SS from one hour up.
func Duration(seconds float64) string {
	s := int(math.Round(math.Abs(seconds)))
	h, m, sec := s/3600, (s%3600)/60, s%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%d:%02d", m, sec)
}

// Minutes renders a time in minutes as M:SS / H:MM:SS.
func Minutes(minutes float64) string {
	return Duration(minutes * 60)
}

// Clock renders minutes as H:MM:SS, always with the hour.
func Clock(minutes float64) string {
	s := int(math.Round(math.Abs(minutes * 60)))
	return fmt.Sprintf("%d:%02d:%02d", s/3600, (s%3600)/60, s%60)
}

// Delta renders a signed difference in seconds, e.g. "+0:15" or "-1:02".
func Delta(seconds float64) string {
	sign := "+"
	if math.Round(seconds) < 0 {
		sign = "-"
	}
	return sign + Duration(seconds)
}

// Loss renders a loss in seconds as a negative delta, "-0:32".
func Loss(seconds float64) string {
	if math.Round(seconds) <= 0 {
		return "0:00"
	}
	return "-" + Duration(seconds)
}
