package bazi

import "time"

//nolint:gochecknoglobals // static lookup tables
var (
	heavenlyStems   = []string{"甲", "乙", "丙", "丁", "戊", "己", "庚", "辛", "壬", "癸"}
	earthlyBranches = []string{"子", "丑", "寅", "卯", "辰", "巳", "午", "未", "申", "酉", "戌", "亥"}

	// elementOrder is the fixed order used for counts and tie-breaking.
	elementOrder = []string{"木", "火", "土", "金", "水"}

	elementOf = map[string]string{
		"甲": "木", "乙": "木", "丙": "火", "丁": "火", "戊": "土",
		"己": "土", "庚": "金", "辛": "金", "壬": "水", "癸": "水",
		"子": "水", "丑": "土", "寅": "木", "卯": "木", "辰": "土", "巳": "火",
		"午": "火", "未": "土", "申": "金", "酉": "金", "戌": "土", "亥": "水",
	}

	elementEmoji = map[string]string{"木": "🌳", "火": "🔥", "土": "🪨", "金": "🥇", "水": "💧"}

	// relations[a][b] is how element a relates to element b.
	relations = map[string]map[string]string{
		"木": {"木": "比和", "火": "生", "土": "克", "金": "被克", "水": "被生"},
		"火": {"木": "被生", "火": "比和", "土": "生", "金": "克", "水": "被克"},
		"土": {"木": "被克", "火": "被生", "土": "比和", "金": "生", "水": "克"},
		"金": {"木": "克", "火": "被克", "土": "被生", "金": "比和", "水": "生"},
		"水": {"木": "生", "火": "克", "土": "被克", "金": "被生", "水": "比和"},
	}

	// dayCycleStart is a 甲子 day anchoring the sexagenary day count.
	dayCycleStart = time.Date(1900, time.January, 31, 0, 0, 0, 0, time.UTC)
)

// mod returns the non-negative remainder so dates before the anchors still index the tables.
func mod(a, n int) int {
	r := a % n
	if r < 0 {
		r += n
	}
	return r
}

func newPillar(stem, branch int) Pillar {
	s, b := heavenlyStems[stem], earthlyBranches[branch]
	return Pillar{Stem: s, Branch: b, StemElement: elementOf[s], BranchElement: elementOf[b]}
}

func yearIndexes(year int) (stem, branch int) {
	return mod(year-4, 10), mod(year-4, 12)
}

// YearPillar counts from the 甲子 year 4 CE.
func YearPillar(year int) Pillar {
	return newPillar(yearIndexes(year))
}

// MonthPillar derives the month stem from the year stem; January maps to 寅.
func MonthPillar(year, month int) Pillar {
	yearStem, _ := yearIndexes(year)
	return newPillar(mod(yearStem*2+month-1, 10), mod(month+1, 12))
}

// DayPillar counts whole days from a known 甲子 day.
func DayPillar(date time.Time) Pillar {
	d := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	days := int((d.Unix() - dayCycleStart.Unix()) / 86400)
	return newPillar(mod(days, 10), mod(days, 12))
}

// HourPillar maps each two-hour block to a branch; 23:00 falls in 亥.
func HourPillar(dayStem string, hour int) Pillar {
	branch := mod(hour, 24) / 2
	stem := 0
	for i, s := range heavenlyStems {
		if s == dayStem {
			stem = i
			break
		}
	}
	return newPillar(mod(stem*2+branch, 10), branch)
}

// tally counts elements over pillars and picks the first maximal and minimal in elementOrder.
func tally(pillars ...Pillar) (counts []ElementCount, strongest, weakest string) {
	n := make(map[string]int, len(elementOrder))
	for _, p := range pillars {
		n[p.StemElement]++
		n[p.BranchElement]++
	}
	counts = make([]ElementCount, len(elementOrder))
	maxIdx, minIdx := 0, 0
	for i, e := range elementOrder {
		counts[i] = ElementCount{Element: e, Count: n[e]}
		if n[e] > n[elementOrder[maxIdx]] {
			maxIdx = i
		}
		if n[e] < n[elementOrder[minIdx]] {
			minIdx = i
		}
	}
	return counts, elementOrder[maxIdx], elementOrder[minIdx]
}
