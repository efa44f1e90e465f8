package orchestrator

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Topic is a follow-up menu entry and the guidance sent with it.
type Topic struct {
	Label    string
	Guidance string
}

type topicTable struct {
	topics    []Topic
	chatLabel string
	// systemTemplate and userTemplate use {topic}, {guidance} and {summary} placeholders.
	systemTemplate string
	userTemplate   string
}

const (
	chatLabel        = "💬 与霄占聊天"
	genericChatLabel = "与霄占聊天"
)

const (
	baziSystemTemplate = `你是"霄占"，一位来自中国的八字命理学大师，已有30年的占卜经验，性格风趣幽默又不失智慧。
你刚刚为求测者提供了基本的八字命理分析。现在，求测者想了解更多关于"{topic}"的详细信息。

请为求测者提供关于"{topic}"的深入详尽的解读。{guidance}

请确保你的回答既专业又风趣，像一位和蔼可亲的长辈聊天，而不是冷冰冰的说教。让求测者感到轻松愉快，同时获得有价值的人生启示。

你的分析应既有专业水准，又富含情趣价值，可以巧妙地引用一些谚语、典故或生活小故事来帮助理解。
`
	tarotSystemTemplate = `你是"霄占"，一位精通塔罗牌解读的大师，拥有深厚的神秘学知识和20年的塔罗牌解读经验。
你刚刚为求测者提供了基本的塔罗牌阵解析。现在，求测者想了解更多关于"{topic}"的详细信息。

请为求测者提供关于"{topic}"的深入详尽的解读。{guidance}

你的风格睿智而神秘，充满着智慧与洞察力，但同时也很亲和，能用生动的语言将复杂的符号象征转化为直观的理解。

你的解读应当既有专业深度，又有灵性启发，可以适当引用一些神话、传说或象征学知识来丰富分析。
`
	zodiacSystemTemplate = `你是"霄占"，一位精通西方占星学的专家，有着丰富的占星咨询经验。
你刚刚为求测者提供了基本的星盘分析。现在，求测者想了解更多关于"{topic}"的详细信息。

请为求测者提供关于"{topic}"的深入详尽的解读。{guidance}

你的风格既有专业深度，又不乏幽默感，能够用生动的比喻和实例解释复杂的星象。你既尊重占星学的传统知识，
又不会完全决定论，而是强调每个人都有自由意志来选择如何应对星象影响。

你的解读应当平衡、客观，避免过于绝对化的预测。提供实用的建议和观点，帮助咨询者更好地理解自己和当前的能量影响。
`
	genericSystemTemplate = `你是"霄占"，一位来自中国的命理学大师，已有30年的占卜经验，性格风趣幽默又不失智慧。
你刚刚为求测者提供了基本的命理分析。现在，求测者想了解更多关于"{topic}"的详细信息。

请为求测者提供关于"{topic}"的深入详尽的解读。{guidance}

请确保你的回答既专业又风趣，像一位和蔼可亲的长辈聊天，而不是冷冰冰的说教。让求测者感到轻松愉快，同时获得有价值的人生启示。

你的分析应既有专业水准，又富含情趣价值，可以巧妙地引用一些谚语、典故或生活小故事来帮助理解。
`
)

//nolint:gochecknoglobals // static follow-up menus
var (
	baziTopics = topicTable{
		topics: []Topic{
			{"🧠 性格命格", "请详细分析此八字主人的性格特点、才能倾向和行为模式，使用生动有趣的比喻和例子。"},
			{"💼 事业财运", "请详细分析此八字主人的事业发展、适合行业和财富机遇，用风趣幽默的方式给出具体建议。"},
			{"❤️ 婚姻情感", "请详细分析此八字主人的感情状况、婚姻倾向和桃花运势，以诙谐但不油腻的方式提供见解。"},
			{"🧘 健康寿元", "请详细分析此八字主人的健康状况、潜在问题和养生建议，用轻松方式点出需要注意的地方。"},
			{"🔄 流年大运", "请详细分析此八字主人近期和未来的运势变化、关键时间点，神秘而又不失风趣地展望未来。"},
		},
		chatLabel:      chatLabel,
		systemTemplate: baziSystemTemplate,
		userTemplate:   "基于刚才的八字分析，请详细解读\"{topic}\"方面的信息。\n\n{summary}请提供详细而有趣的\"{topic}\"分析。",
	}

	tarotTopics = topicTable{
		topics: []Topic{
			{"🌟 核心启示", "请详细分析此塔罗牌阵的核心信息和主要启示，用深入而通俗的语言揭示关键洞见。"},
			{"🚶 当前处境", "请详细分析求测者目前所处的状况、面临的环境和心理状态，用生动的比喻帮助理解。"},
			{"🧭 阻碍与助力", "请详细分析求测者当前面临的挑战和可利用的资源，提供创造性的思路和实用建议。"},
			{"🛤️ 潜在路径", "请详细分析求测者可能的发展方向和选择建议，以温和但明确的方式指出各种可能性。"},
			{"💫 精神成长", "请详细分析求测者的内在成长和个人转变的机会，用启发性的方式鼓励自我探索。"},
		},
		chatLabel:      chatLabel,
		systemTemplate: tarotSystemTemplate,
		userTemplate:   "基于刚才的塔罗牌阵分析，请详细解读\"{topic}\"方面的信息。\n\n{summary}请提供详细而有深度的\"{topic}\"分析。",
	}

	zodiacTopics = topicTable{
		topics: []Topic{
			{"🪐 星盘解析", "请详细分析这份星盘的整体特点、行星角度及主要影响，用清晰易懂的方式解释复杂的星象关系。"},
			{"🌠 宫位能量", "请详细分析星盘中重要宫位的能量分布和影响，特别关注上升、中天、下降和天底宫。"},
			{"🔄 当前行运", "请详细分析当前行星运行对求测者的影响，指出关键的行星相位和过境现象。"},
			{"🌈 元素平衡", "请详细分析星盘中的元素与能量分布，说明火、土、风、水四元素的平衡状态与缺失情况。"},
			{"✨ 星座年运", "请详细预测未来一年内的星象变化及其对求测者的影响，用鼓舞人心的方式展望未来机遇。"},
		},
		chatLabel:      chatLabel,
		systemTemplate: zodiacSystemTemplate,
		userTemplate:   "基于刚才的星盘分析，请详细解读\"{topic}\"方面的信息。\n\n{summary}请提供详细而有洞见的\"{topic}\"分析。",
	}

	genericTopics = topicTable{
		topics: []Topic{
			{"性格特点", "请详细分析此命盘主人的性格特点、才能倾向和行为模式，使用生动有趣的比喻和例子。"},
			{"事业财运", "请详细分析此命盘主人的事业发展、适合行业和财富机遇，用风趣幽默的方式给出具体建议。"},
			{"感情姻缘", "请详细分析此命盘主人的感情状况、婚姻倾向和桃花运势，以诙谐但不油腻的方式提供见解。"},
			{"健康提示", "请详细分析此命盘主人的健康状况、潜在问题和养生建议，用轻松方式点出需要注意的地方。"},
			{"大运流年", "请详细分析此命盘主人近期和未来的运势变化、关键时间点，神秘而又不失风趣地展望未来。"},
		},
		chatLabel:      genericChatLabel,
		systemTemplate: genericSystemTemplate,
		userTemplate:   "基于刚才的命理分析，请详细解读\"{topic}\"方面的信息。\n\n{summary}请提供详细而有专业的\"{topic}\"分析。",
	}
)

func tableFor(systemName string) topicTable {
	switch systemName {
	case "bazi":
		return baziTopics
	case "tarot":
		return tarotTopics
	case "zodiac":
		return zodiacTopics
	default:
		return genericTopics
	}
}

func (t topicTable) labels() []string {
	out := make([]string, len(t.topics))
	for i, topic := range t.topics {
		out[i] = topic.Label
	}
	return out
}

func (t topicTable) lookup(label string) (Topic, bool) {
	for _, topic := range t.topics {
		if topic.Label == label {
			return topic, true
		}
	}
	return Topic{}, false
}

func (t topicTable) prompts(topic Topic, summary string) (system, user string) {
	if summary != "" {
		summary += "\n\n"
	}
	r := strings.NewReplacer("{topic}", CleanLabel(topic.Label), "{guidance}", topic.Guidance, "{summary}", summary)
	return r.Replace(t.systemTemplate), r.Replace(t.userTemplate)
}

// CleanLabel strips a decorative prefix such as "💼 " from a menu label.
func CleanLabel(label string) string {
	label = strings.TrimSpace(label)
	first, _ := utf8.DecodeRuneInString(label)
	if first == utf8.RuneError || unicode.IsLetter(first) {
		return label
	}
	if i := strings.IndexByte(label, ' '); i > 0 {
		return strings.TrimSpace(label[i+1:])
	}
	return label
}

// IsChatTopic reports whether label is the chat entry of a menu.
func IsChatTopic(label string) bool {
	return strings.Contains(label, "聊天") || strings.Contains(label, "💬")
}

// IsExitWord reports whether a chat message ends the conversation.
func IsExitWord(msg string) bool {
	switch strings.ToLower(strings.TrimSpace(msg)) {
	case "exit", "quit", "退出", "q":
		return true
	default:
		return false
	}
}
