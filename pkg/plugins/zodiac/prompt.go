package zodiac

import (
	"fmt"
	"strings"

	"fortuneteller/pkg/fortune"
)

const systemPrompt = `你是一位专业的占星师，精通西方占星学和星座分析。
请根据提供的星座信息，为咨询者提供详细且有洞见的占星解读。
你的分析应该包含以下内容：
1. 星座的基本特质和个性倾向
2. 元素和品质对性格的影响
3. 月亮星座和上升星座（如果已知）的额外影响
4. 行星位置和当前相位对各生活领域的影响
5. 针对咨询者关注领域的具体建议和见解
6. 近期运势趋势和重要时间点

你的分析应当平衡、客观，避免过于绝对化的预测。提供实用的建议和观点，帮助咨询者更好地理解自己和当前的能量影响。
请记住，占星解读是提供可能性的指引，而非确定性的命运。
`

const chatPrompt = `你是"霄占"占星师，一位精通西方占星学的专家，有着丰富的占星咨询经验。
你融合了现代心理学与古典占星知识，能够透过星盘揭示人生的潜能与挑战。
你的风格既有专业深度，又不乏幽默感，能够用生动的比喻和实例解释复杂的星象。

现在你正在与求测者进行轻松的聊天互动。你可以谈论:
- 星座特质与元素属性
- 行星能量与相位解读
- 当前星象的影响与转机
- 如何更好地利用自己的星盘优势
- 应对挑战的实用建议

在回答问题时，你既尊重占星学的传统知识，又不会完全决定论，而是强调每个人都有自由意志来选择如何应对星象影响。
对话应简洁精炼，回答控制在200字以内，用优雅而生动的语言表达专业见解。`

// GenerateLLMPrompt renders the chart, compatibility table and transits.
func (s *System) GenerateLLMPrompt(pd fortune.ProcessedData) (fortune.PromptPair, error) {
	d, err := dataOf(pd)
	if err != nil {
		return fortune.PromptPair{}, err
	}
	sun := d.Sun

	var b strings.Builder
	b.WriteString("请为以下星座信息提供占星解读：\n\n基本信息：\n")
	fmt.Fprintf(&b, "- 出生日期：%s\n- 出生时间：%s\n- 出生地点：%s\n- 关注领域：%s\n\n",
		d.BirthDate, d.BirthTime, d.BirthPlace, d.QuestionArea)
	b.WriteString("星座信息：\n")
	fmt.Fprintf(&b, "- 太阳星座：%s (%s)，%s\n- 月亮星座：%s\n- 上升星座：%s\n\n",
		sun.Name, sun.English, sun.DateRange, d.MoonSign, d.RisingSign)
	fmt.Fprintf(&b, "%s的基本特质：\n- 主宰星：%s\n- 元素：%s（%s）\n- 品质：%s（%s）\n\n",
		sun.Name, sun.Ruler, sun.Element, strings.Join(d.Element.Keywords, ", "), sun.Quality, d.QualityInfo)

	b.WriteString("星座相合性：\n")
	for _, p := range d.Pairings {
		fmt.Fprintf(&b, "- 与%s：%s\n", p.Sign, p.Level)
	}
	b.WriteString("\n当前星象与影响：\n")
	for _, t := range d.Transits {
		fmt.Fprintf(&b, "- %s: %s\n", t.Description, t.Influence)
	}
	fmt.Fprintf(&b, "\n请根据以上信息，为咨询者提供详细的占星解读，特别针对\"%s\"领域给出具体的见解和建议。\n", d.QuestionArea)
	b.WriteString("包括近期的能量变化趋势、可能的机遇或挑战，以及如何最佳利用当前的星象能量。\n")

	return fortune.PromptPair{System: systemPrompt, User: b.String()}, nil
}

// FollowupSummary restates the chart for follow-up prompts.
func (s *System) FollowupSummary(pd fortune.ProcessedData) string {
	d, err := dataOf(pd)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("太阳星座：%s (%s)\n月亮星座：%s\n上升星座：%s\n元素：%s\n品质：%s\n关注领域：%s",
		d.Sun.Name, d.Sun.English, d.MoonSign, d.RisingSign, d.Sun.Element, d.Sun.Quality, d.QuestionArea)
}

// ChatSystemPrompt is the astrologer persona.
func (s *System) ChatSystemPrompt() string {
	return chatPrompt
}

func elementTone(element string) fortune.Tone {
	switch element {
	case "火":
		return fortune.ToneFire
	case "土":
		return fortune.ToneEarth
	case "风":
		return fortune.ToneAir
	case "水":
		return fortune.ToneWater
	default:
		return fortune.TonePlain
	}
}

func withEmoji(name string) string {
	if sign, ok := LookupSign(name); ok {
		return name + " " + sign.Emoji
	}
	return name
}

// DisplayProcessedData lays out the chart in the six presentation groups.
func (s *System) DisplayProcessedData(pd fortune.ProcessedData) fortune.Display {
	disp := fortune.Display{Title: "✨ 星座与星盘信息 ✨"}
	d, err := dataOf(pd)
	if err != nil {
		return disp
	}
	sun := d.Sun
	tone := elementTone(sun.Element)

	basic := disp.AddGroup("基本信息")
	basic.Add("出生日期", d.BirthDate, fortune.TonePlain)
	basic.Add("出生时间", d.BirthTime, fortune.TonePlain)
	basic.Add("出生地点", d.BirthPlace, fortune.TonePlain)
	basic.Add("关注领域", d.QuestionArea, fortune.ToneHighlight)

	sunGroup := disp.AddGroup("太阳星座")
	sunGroup.Add("星座", fmt.Sprintf("%s %s (%s)", sun.Name, sun.Emoji, sun.English), tone)
	sunGroup.Add("日期范围", sun.DateRange, fortune.TonePlain)
	sunGroup.Add("主宰星", sun.Ruler, fortune.TonePlain)
	sunGroup.Add("元素", sun.Element, tone)
	sunGroup.Add("品质", sun.Quality+" - "+d.QualityInfo, fortune.TonePlain)

	moon := disp.AddGroup("月亮和上升星座")
	moon.Add("月亮星座", withEmoji(d.MoonSign), fortune.TonePlain)
	moon.Add("上升星座", withEmoji(d.RisingSign), fortune.TonePlain)

	elem := disp.AddGroup("元素特性")
	elem.Add("元素", sun.Element+d.Element.Emoji, tone)
	elem.Add("关键词", strings.Join(d.Element.Keywords, ", "), tone)
	elem.Add("相容元素", strings.Join(d.Element.Compatible, ", "), fortune.TonePlain)
	elem.Add("冲突元素", strings.Join(d.Element.Incompatible, ", "), fortune.TonePlain)

	compat := disp.AddGroup("星座相合性")
	for _, level := range []struct {
		level, label string
		tone         fortune.Tone
	}{
		{LevelExcellent, "非常相合", fortune.ToneUpright},
		{LevelGood, "相合", fortune.ToneHighlight},
		{LevelNeutral, "一般", fortune.TonePlain},
		{LevelChallenging, "需要努力", fortune.ToneReversed},
	} {
		var names []string
		for _, p := range d.Pairings {
			if p.Level == level.level {
				names = append(names, withEmoji(p.Sign))
			}
		}
		if len(names) > 0 {
			compat.Add(level.label, strings.Join(names, ", "), level.tone)
		}
	}

	transits := disp.AddGroup("当前星象")
	for i, t := range d.Transits {
		transits.Add(fmt.Sprintf("%d. %s", i+1, t.Description), "影响: "+t.Influence, fortune.ToneHighlight)
	}
	return disp
}
