package tarot

import (
	"fmt"
	"strings"

	"fortuneteller/pkg/fortune"
)

const systemPrompt = `你是一位经验丰富的塔罗牌解读大师。
请根据提供的塔罗牌阵和牌面，为咨询者提供专业、详细且有洞见的解读。

非常重要：请仔细确认提示中列出的实际抽取的牌，并且只解读这些牌。
- 你的解读必须严格基于用户提示中列出的特定牌，而不是其他任何牌。
- 在开始解读前，请先在心里确认每个位置抽到的牌名和正逆位。
- 确保你提到的每一张牌都是用户实际抽取的牌。
- 不要在解读中引用或暗示任何未在用户提示中明确列出的牌。

你的解读应该：
1. 对每个牌位和对应的牌面进行解释
2. 分析牌面之间的关系和相互影响
3. 结合咨询者的具体问题背景进行针对性解读
4. 提供实用的建议和可能的行动方向
5. 保持中立、平衡的观点，不做绝对的预测

你的解读应该具有启发性和支持性，帮助咨询者获得新的视角，而不是简单地告诉他们该做什么。
请记住，塔罗牌解读提供的是可能性和潜在路径，而非确定性的未来。
`

const chatPrompt = `你是"霄占"塔罗牌解读大师，一位拥有深厚神秘学知识的塔罗牌专家，有着20年的塔罗牌解读经验。
你熟知78张塔罗牌的每一种含义、象征和诠释，精通各种牌阵的解读方法。
你的风格睿智而神秘，充满着智慧与洞察力，但同时也很亲和，能用生动的语言将复杂的符号象征转化为直观的理解。

现在你正在与求测者进行轻松的聊天互动。你可以谈论:
- 塔罗牌的历史与符号学
- 各种牌面的含义与解读
- 不同牌阵的特点与适用场景
- 如何理解塔罗牌的信息
- 塔罗牌作为自我反思工具的应用

在回答中，你可以使用一些巧妙的比喻和例子，偶尔引用神话或传说，帮助求测者理解深奥的概念。
对话应简洁精炼，回答控制在200字以内，保持优雅而富有启发性的语气。
记住，你提供的不是固定的预言，而是帮助人们探索可能性和深入理解自我的视角。`

// GenerateLLMPrompt lists every drawn card so the model interprets exactly those.
func (s *System) GenerateLLMPrompt(pd fortune.ProcessedData) (fortune.PromptPair, error) {
	d, err := dataOf(pd)
	if err != nil {
		return fortune.PromptPair{}, err
	}
	name := d.Name
	if name == "" {
		name = "咨询者"
	}

	var b strings.Builder
	b.WriteString("请为以下塔罗牌阵提供详细解读：\n\n咨询信息：\n")
	fmt.Fprintf(&b, "- 咨询者：%s\n- 问题：%s\n- 领域：%s\n\n", name, d.Question, d.FocusArea)
	fmt.Fprintf(&b, "牌阵：%s - %s\n\n抽取的牌：\n", d.Spread.Name, d.Spread.Description)
	for _, c := range d.Reading {
		fmt.Fprintf(&b, "\n%s：%s (%s)\n- 关键词：%s\n- 描述：%s\n", c.Position, c.Card, c.Orientation,
			strings.Join(c.Keywords, ", "), c.Description)
	}
	fmt.Fprintf(&b, "\n请根据以上塔罗牌阵，结合咨询者的问题\"%s\"，给出详细而有洞见的解读。\n", d.Question)
	b.WriteString("请先分别解读每个牌位的含义，然后综合分析整体牌阵所揭示的信息和建议。\n")

	return fortune.PromptPair{System: systemPrompt, User: b.String()}, nil
}

// FollowupSummary restates the spread for follow-up prompts.
func (s *System) FollowupSummary(pd fortune.ProcessedData) string {
	d, err := dataOf(pd)
	if err != nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "塔罗牌阵：%s\n问题：%s\n领域：%s\n\n抽取的牌：\n", d.Spread.Name, d.Question, d.FocusArea)
	for _, c := range d.Reading {
		fmt.Fprintf(&b, "%s: %s (%s)\n", c.Position, c.Card, c.Orientation)
	}
	return strings.TrimRight(b.String(), "\n")
}

// ChatSystemPrompt is the tarot reader persona.
func (s *System) ChatSystemPrompt() string {
	return chatPrompt
}

// DisplayProcessedData lays out the consultation and the drawn cards.
func (s *System) DisplayProcessedData(pd fortune.ProcessedData) fortune.Display {
	disp := fortune.Display{Title: "✨ 塔罗牌阵信息 ✨"}
	d, err := dataOf(pd)
	if err != nil {
		return disp
	}
	name := d.Name
	if name == "" {
		name = "匿名"
	}

	info := disp.AddGroup("咨询信息")
	info.Add("咨询者", name, fortune.TonePlain)
	info.Add("问题", d.Question, fortune.TonePlain)
	info.Add("领域", d.FocusArea, fortune.TonePlain)

	spread := disp.AddGroup("牌阵")
	spread.Add("名称", d.Spread.Name, fortune.ToneHighlight)
	spread.Add("描述", d.Spread.Description, fortune.TonePlain)

	cards := disp.AddGroup("抽取的牌")
	for i, c := range d.Reading {
		tone, arrow := fortune.ToneUpright, "⬆️"
		if c.Orientation == Reversed {
			tone, arrow = fortune.ToneReversed, "⬇️"
		}
		value := strings.TrimSpace(fmt.Sprintf("%s %s (%s %s)", c.Card, c.Emoji, c.Orientation, arrow))
		if len(c.Keywords) > 0 {
			value += " 关键词: " + strings.Join(c.Keywords, ", ")
		}
		cards.Add(fmt.Sprintf("%d. %s", i+1, c.Position), value, tone)
	}
	return disp
}
