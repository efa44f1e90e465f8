// Package zodiac implements a simplified western astrology reading.
package zodiac

import (
	"encoding/json"
	"fmt"
	"time"

	"fortuneteller/pkg/apperrors"
	"fortuneteller/pkg/fortune"
	"fortuneteller/pkg/logx"
)

// Name is the registry key of the system.
const Name = "zodiac"

const (
	unknown      = "未知"
	defaultFocus = "整体运势"
)

//nolint:gochecknoglobals // static option list
var questionAreas = []string{"爱情", "事业", "健康", "财富", "人际关系", "整体运势"}

// SunSign is the native sign with its rendered date range.
type SunSign struct {
	Sign
	DateRange string `json:"date_range"`
}

// Data is a computed chart.
type Data struct {
	BirthDate    string      `json:"birth_date"`
	BirthTime    string      `json:"birth_time"`
	BirthPlace   string      `json:"birth_place"`
	QuestionArea string      `json:"question_area"`
	Sun          SunSign     `json:"zodiac_sign"`
	MoonSign     string      `json:"moon_sign"`
	RisingSign   string      `json:"rising_sign"`
	Element      ElementInfo `json:"element_info"`
	QualityInfo  string      `json:"quality_info"`
	Pairings     []Pairing   `json:"compatibility"`
	Transits     []Transit   `json:"current_transits"`
}

// Kind tags the variant.
func (Data) Kind() string { return Name }

// System is the zodiac plugin.
type System struct {
	fortune.Base
	now    fortune.Clock
	logger *logx.Logger
}

// New creates the system. A nil clock uses time.Now.
func New(clock fortune.Clock) *System {
	if clock == nil {
		clock = time.Now
	}
	return &System{
		Base:   fortune.NewBase(Name, "星座占星", "基于西方占星学和十二星座的命运分析"),
		now:    clock,
		logger: logx.NewLogger("zodiac"),
	}
}

// RequiredInputs lists the fields in display order.
func (s *System) RequiredInputs() []fortune.InputField {
	opts := make([]fortune.Option, len(questionAreas))
	for i, a := range questionAreas {
		opts[i] = fortune.Option{Value: a}
	}
	return []fortune.InputField{
		{Name: "birth_date", Type: fortune.InputDate, Description: "出生日期 (YYYY-MM-DD)", Required: true},
		{Name: "birth_time", Type: fortune.InputTime, Description: "出生时间 (HH:MM)"},
		{Name: "birth_place", Type: fortune.InputText, Description: "出生地点"},
		{Name: "question_area", Type: fortune.InputSelect, Description: "关注领域", Options: opts, Default: defaultFocus},
	}
}

// ValidateInput canonicalizes dates and applies the default question area.
func (s *System) ValidateInput(raw fortune.RawInput) (fortune.ValidatedInput, error) {
	out := fortune.ValidatedInput{}

	date := raw.Trimmed("birth_date")
	if date == "" {
		return nil, apperrors.InvalidInput("出生日期是必须的")
	}
	canonical, _, err := fortune.ParseDate(date)
	if err != nil {
		return nil, apperrors.InvalidInput(fmt.Sprintf("出生日期格式错误: %s", date))
	}
	out["birth_date"] = canonical

	out["birth_time"] = ""
	if t := raw.Trimmed("birth_time"); t != "" {
		clock, _, _, err := fortune.ParseClock(t)
		if err != nil {
			return nil, apperrors.InvalidInput(fmt.Sprintf("出生时间格式错误: %s", t))
		}
		out["birth_time"] = clock
	}

	out["birth_place"] = raw.Trimmed("birth_place")

	area := raw.Trimmed("question_area")
	switch {
	case area == "":
		area = defaultFocus
	case !containsString(questionAreas, area):
		return nil, apperrors.InvalidInput(fmt.Sprintf("不支持的关注领域: %s", area))
	}
	out["question_area"] = area
	return out, nil
}

// ProcessData computes signs, compatibility and transits relative to the clock's today.
func (s *System) ProcessData(in fortune.ValidatedInput) (fortune.ProcessedData, error) {
	_, birth, err := fortune.ParseDate(in.Get("birth_date"))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindProcessing, err, "zodiac: invalid birth date")
	}

	sun := SignFor(int(birth.Month()), birth.Day())
	d := &Data{
		BirthDate:    in.Get("birth_date"),
		BirthTime:    orUnknown(in.Get("birth_time")),
		BirthPlace:   orUnknown(in.Get("birth_place")),
		QuestionArea: in.Get("question_area"),
		Sun:          SunSign{Sign: sun, DateRange: sun.DateRange()},
		MoonSign:     MoonSign(birth).Name,
		RisingSign:   unknown,
		Element:      elements[sun.Element],
		QualityInfo:  qualities[sun.Quality],
		Pairings:     Compatibility(sun),
		Transits:     Transits(sun, s.now()),
	}
	if d.QuestionArea == "" {
		d.QuestionArea = defaultFocus
	}
	if t := in.Get("birth_time"); t != "" {
		_, hour, _, err := fortune.ParseClock(t)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindProcessing, err, "zodiac: invalid birth time")
		}
		d.RisingSign = RisingSign(hour).Name
	}

	s.logger.Debug("sun %s moon %s rising %s", d.Sun.Name, d.MoonSign, d.RisingSign)
	return d, nil
}

func orUnknown(v string) string {
	if v == "" {
		return unknown
	}
	return v
}

func dataOf(pd fortune.ProcessedData) (*Data, error) {
	switch d := pd.(type) {
	case *Data:
		return d, nil
	case Data:
		return &d, nil
	default:
		return nil, apperrors.Newf(apperrors.KindProcessing, "zodiac: unexpected processed data %T", pd)
	}
}

// FormatResult splits on # and ## headers; text before the first header is 总体解读.
func (s *System) FormatResult(text string) fortune.Sections {
	return fortune.ScanSections(text, fortune.ScanOptions{DefaultTitle: "总体解读", HeaderPrefix: "#"})
}

// RestoreProcessedData decodes a persisted chart. Sign date bounds are restored from the table.
func (s *System) RestoreProcessedData(raw []byte) (fortune.ProcessedData, error) {
	var d Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode zodiac data: %w", err)
	}
	if sign, ok := LookupSign(d.Sun.Name); ok {
		d.Sun.Sign = sign
	}
	return &d, nil
}
