package section

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatTemplate(t *testing.T) {
	tests := []struct {
		name   string
		tmpl   string
		values map[string]any
		want   string
	}{
		{"strings", "{athlete_name} @ {location}", map[string]any{"athlete_name": "Li Wei", "location": "shanghai"}, "Li Wei @ shanghai"},
		{"int with separator", "样本 {n} 人", map[string]any{"n": 12500}, "样本 12,500 人"},
		{"integral float", "总损耗 {x} 秒", map[string]any{"x": 135.0}, "总损耗 135 秒"},
		{"fraction", "进步率 {x}%", map[string]any{"x": 62.46}, "进步率 62.5%"},
		{"missing key keeps template", "{a} and {b}", map[string]any{"a": 1}, "{a} and {b}"},
		{"no placeholders", "plain", nil, "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatTemplate(tt.tmpl, tt.values))
		})
	}
}
