package section

import (
	"fmt"
	"math"
	"regexp"

	"github.com/dustin/go-humanize"
)

var placeholder = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// formatTemplate substitutes {key} placeholders from values. A template
// naming a key values does not have is returned unchanged.
func formatTemplate(tmpl string, values map[string]any) string {
	for _, m := range placeholder.FindAllStringSubmatch(tmpl, -1) {
		if _, ok := values[m[1]]; !ok {
			return tmpl
		}
	}
	return placeholder.ReplaceAllStringFunc(tmpl, func(s string) string {
		return formatValue(values[s[1:len(s)-1]])
	})
}

// formatValue renders numbers the way summaries show them: integers with
// thousands separators, fractions with one decimal.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return humanize.Comma(int64(x))
	case int64:
		return humanize.Comma(x)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return humanize.Comma(int64(x))
		}
		return humanize.FtoaWithDigits(x, 1)
	default:
		return fmt.Sprint(x)
	}
}
