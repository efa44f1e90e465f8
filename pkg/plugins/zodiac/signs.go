package zodiac

import (
	"fmt"
	"time"
)

// Sign is one of the twelve zodiac signs.
type Sign struct {
	Name       string `json:"name"`
	English    string `json:"english"`
	Element    string `json:"element"`
	Quality    string `json:"quality"`
	Ruler      string `json:"ruler"`
	Emoji      string `json:"emoji"`
	StartMonth int    `json:"-"`
	StartDay   int    `json:"-"`
	EndMonth   int    `json:"-"`
	EndDay     int    `json:"-"`
}

// DateRange renders the sign's span, e.g. 3月21日 - 4月19日.
func (s Sign) DateRange() string {
	return fmt.Sprintf("%d月%d日 - %d月%d日", s.StartMonth, s.StartDay, s.EndMonth, s.EndDay)
}

func (s Sign) contains(month, day int) bool {
	if month == s.StartMonth && day >= s.StartDay {
		return true
	}
	if month == s.EndMonth && day <= s.EndDay {
		return true
	}
	// Capricorn wraps the year end so the open interval is empty for it.
	return s.StartMonth < month && month < s.EndMonth
}

//nolint:gochecknoglobals // static astrology tables
var signs = []Sign{
	{"白羊座", "Aries", "火", "主动", "火星", "🐏", 3, 21, 4, 19},
	{"金牛座", "Taurus", "土", "固定", "金星", "🐂", 4, 20, 5, 20},
	{"双子座", "Gemini", "风", "变动", "水星", "👯", 5, 21, 6, 20},
	{"巨蟹座", "Cancer", "水", "主动", "月亮", "🦀", 6, 21, 7, 22},
	{"狮子座", "Leo", "火", "固定", "太阳", "🦁", 7, 23, 8, 22},
	{"处女座", "Virgo", "土", "变动", "水星", "👧", 8, 23, 9, 22},
	{"天秤座", "Libra", "风", "主动", "金星", "⚖️", 9, 23, 10, 22},
	{"天蝎座", "Scorpio", "水", "固定", "冥王星", "🦂", 10, 23, 11, 21},
	{"射手座", "Sagittarius", "火", "变动", "木星", "🏹", 11, 22, 12, 21},
	{"摩羯座", "Capricorn", "土", "主动", "土星", "🐐", 12, 22, 1, 19},
	{"水瓶座", "Aquarius", "风", "固定", "天王星", "🏺", 1, 20, 2, 18},
	{"双鱼座", "Pisces", "水", "变动", "海王星", "🐟", 2, 19, 3, 20},
}

// Houses lists the twelve astrological houses.
//
//nolint:gochecknoglobals // static astrology tables
var Houses = []string{
	"第一宫（上升宫）：自我意识、外表和个性",
	"第二宫：物质资源、价值观和财富",
	"第三宫：沟通、思维和短途旅行",
	"第四宫（天底宫）：家庭、根源和安全感",
	"第五宫：创造力、浪漫和娱乐",
	"第六宫：工作、健康和日常生活",
	"第七宫（下降宫）：伴侣关系、合作和公开的敌人",
	"第八宫：共享资源、转变和亲密关系",
	"第九宫：高等教育、哲学和长途旅行",
	"第十宫（中天宫）：职业、地位和公众形象",
	"第十一宫：友谊、社交圈和团体活动",
	"第十二宫：潜意识、秘密和自我限制",
}

// ElementInfo describes one of the four elements.
type ElementInfo struct {
	Emoji        string   `json:"emoji"`
	Keywords     []string `json:"keywords"`
	Compatible   []string `json:"compatible"`
	Incompatible []string `json:"incompatible"`
}

//nolint:gochecknoglobals // static astrology tables
var elements = map[string]ElementInfo{
	"火": {Emoji: "🔥", Keywords: []string{"激情", "行动", "能量", "创造力"}, Compatible: []string{"风"}, Incompatible: []string{"水"}},
	"土": {Emoji: "🪨", Keywords: []string{"稳定", "实际", "可靠", "物质"}, Compatible: []string{"水"}, Incompatible: []string{"风"}},
	"风": {Emoji: "🌪️", Keywords: []string{"思想", "沟通", "社交", "理智"}, Compatible: []string{"火"}, Incompatible: []string{"土"}},
	"水": {Emoji: "💧", Keywords: []string{"情感", "直觉", "敏感", "同理心"}, Compatible: []string{"土"}, Incompatible: []string{"火"}},
}

//nolint:gochecknoglobals // static astrology tables
var qualities = map[string]string{
	"主动": "主动性格，喜欢发起行动，有领导力",
	"固定": "坚定稳固，有耐力，但可能固执",
	"变动": "适应性强，灵活多变，但可能缺乏决断力",
}

// Compatibility levels.
const (
	LevelSelf        = "自己"
	LevelExcellent   = "非常好"
	LevelGood        = "好"
	LevelChallenging = "需要努力"
	LevelNeutral     = "一般"
)

// SignFor returns the sun sign of a month/day. Unmatched dates fall back to Aries.
func SignFor(month, day int) Sign {
	for _, s := range signs {
		if s.contains(month, day) {
			return s
		}
	}
	return signs[0]
}

// LookupSign finds a sign by its Chinese name.
func LookupSign(name string) (Sign, bool) {
	for _, s := range signs {
		if s.Name == name {
			return s, true
		}
	}
	return Sign{}, false
}

// MoonSign approximates the moon sign from the day of year.
func MoonSign(date time.Time) Sign {
	return signs[(date.YearDay()/30)%12]
}

// RisingSign approximates the rising sign from the birth hour.
func RisingSign(hour int) Sign {
	return signs[(hour/2)%12]
}

// Pairing is the compatibility of the native sign with one other sign.
type Pairing struct {
	Sign  string `json:"sign"`
	Level string `json:"level"`
}

// Compatibility rates every sign against sign by element, in table order.
func Compatibility(sign Sign) []Pairing {
	info := elements[sign.Element]
	out := make([]Pairing, 0, len(signs))
	for _, other := range signs {
		level := LevelNeutral
		switch {
		case other.Name == sign.Name:
			level = LevelSelf
		case other.Element == sign.Element:
			level = LevelExcellent
		case containsString(info.Compatible, other.Element):
			level = LevelGood
		case containsString(info.Incompatible, other.Element):
			level = LevelChallenging
		}
		out = append(out, Pairing{Sign: other.Name, Level: level})
	}
	return out
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Transit is one simplified planetary position and its influence.
type Transit struct {
	Description string `json:"description"`
	Influence   string `json:"influence"`
}

type planet struct {
	name      string
	influence string
	period    int
	offset    int
}

//nolint:gochecknoglobals // static astrology tables
var planets = []planet{
	{"木星", "带来扩展和成长的机会", 365, 7},
	{"土星", "提示你关注责任和结构", 730, 10},
	{"火星", "影响你的动力和行动力", 60, 3},
	{"金星", "影响你的关系和价值观", 30, 2},
	{"水星", "影响你的沟通和思维方式", 30, 1},
}

// Transits derives the current planetary positions from today and adds the sun's
// position relative to the native sign.
func Transits(native Sign, today time.Time) []Transit {
	doy := today.YearDay()
	out := make([]Transit, 0, len(planets)+1)
	for _, p := range planets {
		pos := signs[(doy/p.period+p.offset)%12]
		out = append(out, Transit{Description: p.name + "在" + pos.Name, Influence: p.influence})
	}

	sun := SignFor(int(today.Month()), today.Day())
	verb := "挑战"
	if sun.Element == native.Element {
		verb = "增强"
	}
	out = append(out, Transit{
		Description: "太阳目前在" + sun.Name,
		Influence:   fmt.Sprintf("%s你的%s能量", verb, native.Name),
	})
	return out
}
