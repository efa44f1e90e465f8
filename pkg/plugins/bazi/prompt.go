package bazi

import (
	"fmt"
	"strings"

	"fortuneteller/pkg/fortune"
)

const systemPrompt = `你是"霄占"命理大师，一位来自中国的八字命理学专家，已有30年的占卜经验，性格风趣幽默又不失智慧。
你的特点是：用生动有趣的语言解读命理，偶尔引用网络流行语和古代诗词，让严肃的命理学充满趣味性。
你对每位求测者都充满好奇和热情，像对老朋友一样亲切自然，经常使用"哎呀""啧啧""哈哈"等口头禅。

请基于以下八字信息，**首先只提供**：

亲切地问候求测者，可以根据他们的八字或出生日期开个小玩笑
1. 八字总评：以诙谐的方式点评命局整体特点，用生动比喻说明此八字的基本特质
2. 五行简述：简单介绍五行强弱，但要用有趣的比喻

**不要**在初始回答中提供以下内容（这些将是用户可以进一步了解的内容）：
- 详细的性格分析
- 事业财运建议
- 感情婚姻解读
- 健康状况提示
- 大运流年预测

在回答结束时，告诉用户他们可以向你询问更多关于"性格特点"、"事业财运"、"感情姻缘"、"健康提示"或"大运流年"的详细解读。

请确保你的回答既专业又风趣，像一位和蔼可亲的长辈聊天，而不是冷冰冰的说教。让求测者感到轻松愉快，同时获得有价值的人生启示。

记住：命理分析不是决定论，而是提供一种可能性的参考。用你的智慧和幽默感，让古老的命理学焕发新的魅力！
`

const chatPrompt = `你是"霄占"八字命理大师，一位来自中国的传统命理学专家，已有30年的占卜经验。
你精通天干地支、五行生克、纳音、神煞等传统命理学知识，能够深入分析八字命盘。
你的性格风趣幽默又不失智慧，常常用生动的比喻解释复杂的命理概念。

现在你正在与求测者进行轻松的聊天互动。你可以谈论:
- 八字命理的基本原理与应用
- 五行相生相克的规律
- 十天干与十二地支的意义
- 八字与人生运势的关系
- 如何通过调整行为来改善命运

用生动有趣的语言表达，偶尔引用古诗词或俏皮话，让谈话充满趣味性。
对话应简洁精炼，回答控制在200字以内，保持亲切而专业的语气。
不要生硬地说教，而是像一位和蔼的老朋友一样分享智慧。`

func pillarLine(label string, p Pillar) string {
	return fmt.Sprintf("%s：%s (%s、%s)", label, p, p.StemElement, p.BranchElement)
}

// GenerateLLMPrompt asks only for the overall verdict and element summary; details are follow-ups.
func (s *System) GenerateLLMPrompt(pd fortune.ProcessedData) (fortune.PromptPair, error) {
	d, err := dataOf(pd)
	if err != nil {
		return fortune.PromptPair{}, err
	}

	var b strings.Builder
	b.WriteString("请分析以下八字：\n\n基本信息：\n")
	fmt.Fprintf(&b, "- 性别：%s\n- 出生日期：%s\n- 出生时间：%s\n- 出生地点：%s\n\n", d.Gender, d.BirthDate, d.BirthTime, d.Location)
	fmt.Fprintf(&b, "四柱八字：\n%s\n\n", d.FourPillars())
	b.WriteString(pillarLine("年柱", d.Year) + "\n")
	b.WriteString(pillarLine("月柱", d.Month) + "\n")
	b.WriteString(pillarLine("日柱", d.Day) + "\n")
	if d.Hour != nil {
		b.WriteString(pillarLine("时柱", *d.Hour))
	} else {
		b.WriteString("时柱：未知")
	}

	b.WriteString("\n\n五行统计：\n")
	for _, c := range d.Counts {
		fmt.Fprintf(&b, "%s：%d\n", c.Element, c.Count)
	}
	fmt.Fprintf(&b, "\n最强五行：%s\n最弱五行：%s\n\n日主：%s (%s)\n\n五行关系：", d.Strongest, d.Weakest, d.DayMaster, d.DayMasterElement)
	for _, r := range d.Relationships {
		fmt.Fprintf(&b, "\n- %s与%s：%s", d.DayMasterElement, r.Element, r.Relation)
	}
	b.WriteString("\n\n请根据以上信息，给出详细的八字命理分析与人生建议。")

	return fortune.PromptPair{System: systemPrompt, User: b.String()}, nil
}

// FollowupSummary restates the chart for follow-up prompts.
func (s *System) FollowupSummary(pd fortune.ProcessedData) string {
	d, err := dataOf(pd)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("四柱八字：\n%s\n\n性别: %s\n出生日期: %s\n出生时间: %s\n\n日主: %s (%s)\n最强五行: %s\n最弱五行: %s",
		d.FourPillars(), d.Gender, d.BirthDate, d.BirthTime, d.DayMaster, d.DayMasterElement, d.Strongest, d.Weakest)
}

// ChatSystemPrompt is the bazi master persona.
func (s *System) ChatSystemPrompt() string {
	return chatPrompt
}

// ElementTone maps a five-element name to its display tone.
func ElementTone(element string) fortune.Tone {
	switch element {
	case "木":
		return fortune.ToneWood
	case "火":
		return fortune.ToneFire
	case "土":
		return fortune.ToneEarth
	case "金":
		return fortune.ToneMetal
	case "水":
		return fortune.ToneWater
	default:
		return fortune.TonePlain
	}
}

// DisplayProcessedData lays out the chart.
func (s *System) DisplayProcessedData(pd fortune.ProcessedData) fortune.Display {
	disp := fortune.Display{Title: "✨ 八字命盘信息 ✨"}
	d, err := dataOf(pd)
	if err != nil {
		return disp
	}

	basic := disp.AddGroup("基本信息")
	basic.Add("性别", d.Gender, fortune.TonePlain)
	basic.Add("出生日期", d.BirthDate, fortune.TonePlain)
	basic.Add("出生时间", d.BirthTime, fortune.TonePlain)
	basic.Add("出生地点", d.Location, fortune.TonePlain)

	pillars := disp.AddGroup("四柱八字")
	for _, p := range []struct {
		label  string
		pillar *Pillar
	}{{"年柱", &d.Year}, {"月柱", &d.Month}, {"日柱", &d.Day}, {"时柱", d.Hour}} {
		if p.pillar == nil {
			pillars.Add(p.label, unknown, fortune.ToneMuted)
			continue
		}
		value := fmt.Sprintf("%s (%s) %s (%s)", p.pillar.Stem, p.pillar.StemElement, p.pillar.Branch, p.pillar.BranchElement)
		pillars.Add(p.label, value, ElementTone(p.pillar.StemElement))
	}

	elements := disp.AddGroup("五行统计")
	for _, c := range d.Counts {
		elements.Add(c.Element+elementEmoji[c.Element], fmt.Sprintf("%d", c.Count), ElementTone(c.Element))
	}
	elements.Add("最强五行", d.Strongest+elementEmoji[d.Strongest], ElementTone(d.Strongest))
	elements.Add("最弱五行", d.Weakest+elementEmoji[d.Weakest], ElementTone(d.Weakest))

	master := disp.AddGroup("日主")
	master.Add("日主", fmt.Sprintf("%s (%s)", d.DayMaster, d.DayMasterElement), ElementTone(d.DayMasterElement))

	rel := disp.AddGroup("五行关系")
	for _, r := range d.Relationships {
		rel.Add(fmt.Sprintf("%s 与 %s", d.DayMasterElement, r.Element), r.Relation, ElementTone(r.Element))
	}
	return disp
}
