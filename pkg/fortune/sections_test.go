package fortune

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanSectionsMarkdownHeaders(t *testing.T) {
	text := "哎呀，欢迎！\n## 八字总评\n命局清奇。\n## 五行简述\n木旺水弱。"

	got := ScanSections(text, ScanOptions{DefaultTitle: "总论", HeaderPrefix: "##"})

	assert.Equal(t, []string{"总论", "八字总评", "五行简述"}, got.Titles())
	body, ok := got.Get("五行简述")
	require.True(t, ok)
	assert.Equal(t, "木旺水弱。", body)
}

func TestScanSectionsFallbackToSingleSection(t *testing.T) {
	text := "  只有一段话，没有任何标题。  "

	got := ScanSections(text, ScanOptions{DefaultTitle: "总体解读"})

	require.Len(t, got, 1)
	assert.Equal(t, "总体解读", got[0].Title)
	assert.Equal(t, "只有一段话，没有任何标题。", got[0].Body)
}

func TestScanSectionsSingleHeaderFallsBack(t *testing.T) {
	text := "# 唯一标题\n内容"

	got := ScanSections(text, ScanOptions{DefaultTitle: "总体解读"})

	require.Len(t, got, 1)
	assert.Equal(t, "总体解读", got[0].Title)
	assert.Equal(t, strings.TrimSpace(text), got[0].Body)
}

func TestScanSectionsDoubleHashOnlyIgnoresSingleHash(t *testing.T) {
	text := "# 不是标题\n正文\n## 真标题\n内容"

	got := ScanSections(text, ScanOptions{DefaultTitle: "总论", HeaderPrefix: "##"})

	assert.Equal(t, []string{"总论", "真标题"}, got.Titles())
	body, _ := got.Get("总论")
	assert.Contains(t, body, "# 不是标题")
}

func TestScanSectionsBracketsAndNormalize(t *testing.T) {
	text := "【综合分析】\n一切向好。\n【牌位解读】\n过去：愚者。"
	normalize := func(title string) string {
		if strings.Contains(title, "综合") {
			return "整体解读"
		}
		if strings.Contains(title, "牌位") {
			return "各牌位详细解读"
		}
		return title
	}

	got := ScanSections(text, ScanOptions{
		DefaultTitle: "整体解读",
		Brackets:     true,
		Normalize:    normalize,
	})

	assert.Equal(t, []string{"整体解读", "各牌位详细解读"}, got.Titles())
	body, _ := got.Get("各牌位详细解读")
	assert.True(t, strings.HasPrefix(body, "【牌位解读】"), "bracket header line stays in the body")
}

func TestScanSectionsRuleMergesUnderCurrentTitle(t *testing.T) {
	text := "# 开篇\n第一段\n---------------- 分隔 ----\n第二段\n# 结语\n完"

	got := ScanSections(text, ScanOptions{DefaultTitle: "整体解读", Rules: true})

	assert.Equal(t, []string{"开篇", "结语"}, got.Titles())
	body, _ := got.Get("开篇")
	assert.Contains(t, body, "第一段")
	assert.Contains(t, body, "第二段")
}

func TestSectionsJSONPreservesOrder(t *testing.T) {
	s := Sections{{Title: "乙", Body: "b"}, {Title: "甲", Body: "a<>"}}

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t, `{"乙":"b","甲":"a<>"}`, string(data))

	var back Sections
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, s, back)
}

func TestValidatedInputHelpers(t *testing.T) {
	v := ValidatedInput{"b": "2", "a": "1"}

	assert.Equal(t, "input", v.Kind())
	assert.Equal(t, []string{"a", "b"}, v.Keys())

	clone := v.Clone()
	clone["a"] = "changed"
	assert.Equal(t, "1", v.Get("a"))
	assert.Equal(t, RawInput{"a": "1", "b": "2"}, v.Raw())
}

func TestParseDateAndClock(t *testing.T) {
	canonical, parsed, err := ParseDate("1990-5-15")
	require.NoError(t, err)
	assert.Equal(t, "1990-05-15", canonical)
	assert.Equal(t, 1990, parsed.Year())

	_, _, err = ParseDate("15/05/1990")
	assert.Error(t, err)

	clock, hour, minute, err := ParseClock("8:05")
	require.NoError(t, err)
	assert.Equal(t, "08:05", clock)
	assert.Equal(t, 8, hour)
	assert.Equal(t, 5, minute)

	_, _, _, err = ParseClock("25:00")
	assert.Error(t, err)
}
