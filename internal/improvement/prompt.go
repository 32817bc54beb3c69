package improvement

import (
	"fmt"
	"strings"

	"github.com/kiranshivaraju/hyroxreport/internal/timefmt"
)

const promptHeader = `你是一名 HYROX 教练。请根据下面的损耗数据，为每个分段给出“可提升时间”的保守估计。

约束：
1. recommended_improvement_seconds 必须是非负数，且不得超过该分段给出的“上限”。
2. 跑步分段的上限是与 Top 10% 平均用时的差距；没有 Top 10% 数据时上限为 0。
3. 功能站与转换区的上限就是该分段的损耗。
4. reason 用一句中文说明依据，不超过 60 个字，不要重复数字。
5. 只输出 JSON，不要输出任何其他文字。

`

const promptExample = `
输出格式示例：
{
  "running": [{"segment": "Run 8", "recommended_improvement_seconds": 20, "reason": "后程掉速明显，保持前程配速即可收回部分时间。"}],
  "workout": [{"segment": "Sled Push", "recommended_improvement_seconds": 15, "reason": "推雪橇技术动作可优化。"}],
  "roxzone": {"segment": "Roxzone", "recommended_improvement_seconds": 10, "reason": "转换区移动可以更果断。"}
}
`

func buildPrompt(entries []entry) string {
	var b strings.Builder
	b.WriteString(promptHeader)

	section := func(title, kind string) {
		first := true
		for _, en := range entries {
			if en.kind != kind {
				continue
			}
			if first {
				fmt.Fprintf(&b, "## %s\n", title)
				first = false
			}
			fmt.Fprintf(&b, "- %s：损耗 %.1f 秒，你的用时 %s", en.segment, en.loss, timefmt.Minutes(en.athlete))
			if en.hasReference {
				fmt.Fprintf(&b, "，参考 %s", timefmt.Minutes(en.reference))
			}
			if en.hasRank {
				fmt.Fprintf(&b, "，组内百分位 %.1f%%", en.percentile)
			}
			if kind == KindRunning && !en.hasReference {
				b.WriteString("，无 Top 10% 数据，上限 0 秒\n")
				continue
			}
			fmt.Fprintf(&b, "，上限 %.1f 秒\n", en.ceiling)
		}
		if !first {
			b.WriteString("\n")
		}
	}
	section("跑步（与 Top 10% 差距）", KindRunning)
	section("功能站", KindWorkout)
	section("转换区", KindRoxzone)

	b.WriteString(promptExample)
	return b.String()
}
