// Package bazi implements the four pillars (八字) divination system.
package bazi

import (
	"encoding/json"
	"fmt"
	"strings"

	"fortuneteller/pkg/apperrors"
	"fortuneteller/pkg/fortune"
)

// Name is the registry key of the system.
const Name = "bazi"

// Pillar is one stem/branch pair with its elements.
type Pillar struct {
	Stem          string `json:"stem"`
	Branch        string `json:"branch"`
	StemElement   string `json:"stem_element"`
	BranchElement string `json:"branch_element"`
}

func (p Pillar) String() string {
	return p.Stem + p.Branch
}

// ElementCount is how often an element appears across the pillars.
type ElementCount struct {
	Element string `json:"element"`
	Count   int    `json:"count"`
}

// Relation is the day master's relation to an element present in the chart.
type Relation struct {
	Element  string `json:"element"`
	Relation string `json:"relation"`
}

// Data is the computed chart.
type Data struct {
	Hour             *Pillar        `json:"hour_pillar"`
	BirthDate        string         `json:"birth_date"`
	BirthTime        string         `json:"birth_time"`
	Gender           string         `json:"gender"`
	Location         string         `json:"location"`
	Strongest        string         `json:"strongest"`
	Weakest          string         `json:"weakest"`
	DayMaster        string         `json:"day_master"`
	DayMasterElement string         `json:"day_master_element"`
	Counts           []ElementCount `json:"counts"`
	Relationships    []Relation     `json:"relationships"`
	Year             Pillar         `json:"year_pillar"`
	Month            Pillar         `json:"month_pillar"`
	Day              Pillar         `json:"day_pillar"`
}

// Kind tags the variant.
func (Data) Kind() string { return Name }

// HourString is the hour pillar or 未知 when the birth time was not given.
func (d *Data) HourString() string {
	if d.Hour == nil {
		return unknown
	}
	return d.Hour.String()
}

// FourPillars joins the pillars with spaces.
func (d *Data) FourPillars() string {
	return strings.Join([]string{d.Year.String(), d.Month.String(), d.Day.String(), d.HourString()}, " ")
}

const unknown = "未知"

// System is the bazi plugin.
type System struct {
	fortune.Base
}

// New creates the bazi system.
func New() *System {
	return &System{Base: fortune.NewBase(Name, "八字命理", "传统中国八字命理，基于出生年、月、日、时分析命运")}
}

//nolint:gochecknoglobals // static field definitions
var genderField = fortune.InputField{
	Name:        "gender",
	Type:        fortune.InputSelect,
	Description: "性别",
	Options:     []fortune.Option{{Value: "男"}, {Value: "女"}},
	Required:    true,
}

// RequiredInputs lists the fields in display order.
func (s *System) RequiredInputs() []fortune.InputField {
	return []fortune.InputField{
		{Name: "birth_date", Type: fortune.InputDate, Description: "出生日期 (YYYY-MM-DD)", Required: true},
		{Name: "birth_time", Type: fortune.InputTime, Description: "出生时间 (HH:MM)"},
		genderField,
		{Name: "location", Type: fortune.InputText, Description: "出生地点"},
	}
}

func normalizeGender(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "男", "male", "m":
		return "男"
	case "女", "female", "f":
		return "女"
	default:
		return ""
	}
}

// ValidateInput checks and canonicalizes the birth data.
func (s *System) ValidateInput(raw fortune.RawInput) (fortune.ValidatedInput, error) {
	out := fortune.ValidatedInput{}

	date := raw.Trimmed("birth_date")
	if date == "" {
		return nil, apperrors.InvalidInput("出生日期是必须的")
	}
	canonical, _, err := fortune.ParseDate(date)
	if err != nil {
		return nil, apperrors.InvalidInput(fmt.Sprintf("出生日期格式错误: %v", err))
	}
	out["birth_date"] = canonical

	out["birth_time"] = ""
	if t := raw.Trimmed("birth_time"); t != "" {
		clock, _, _, err := fortune.ParseClock(t)
		if err != nil {
			return nil, apperrors.InvalidInput(fmt.Sprintf("出生时间格式错误: %v", err))
		}
		out["birth_time"] = clock
	}

	g := raw.Trimmed("gender")
	if g == "" {
		return nil, apperrors.InvalidInput("性别是必须的")
	}
	gender := normalizeGender(g)
	if gender == "" {
		return nil, apperrors.InvalidInput("性别必须是'男'或'女'")
	}
	out["gender"] = gender
	out["location"] = raw.Trimmed("location")

	return out, nil
}

// ProcessData computes the four pillars, element balance and day master.
func (s *System) ProcessData(in fortune.ValidatedInput) (fortune.ProcessedData, error) {
	_, date, err := fortune.ParseDate(in.Get("birth_date"))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindProcessing, err, "bazi: invalid birth date")
	}

	d := &Data{
		BirthDate: in.Get("birth_date"),
		BirthTime: orUnknown(in.Get("birth_time")),
		Gender:    in.Get("gender"),
		Location:  orUnknown(in.Get("location")),
		Year:      YearPillar(date.Year()),
		Month:     MonthPillar(date.Year(), int(date.Month())),
		Day:       DayPillar(date),
	}

	pillars := []Pillar{d.Year, d.Month, d.Day}
	if t := in.Get("birth_time"); t != "" {
		_, hour, _, err := fortune.ParseClock(t)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindProcessing, err, "bazi: invalid birth time")
		}
		hp := HourPillar(d.Day.Stem, hour)
		d.Hour = &hp
		pillars = append(pillars, hp)
	}

	d.Counts, d.Strongest, d.Weakest = tally(pillars...)
	d.DayMaster = d.Day.Stem
	d.DayMasterElement = d.Day.StemElement
	for _, c := range d.Counts {
		if c.Count > 0 {
			d.Relationships = append(d.Relationships, Relation{
				Element:  c.Element,
				Relation: relations[d.DayMasterElement][c.Element],
			})
		}
	}
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
		return nil, apperrors.Newf(apperrors.KindProcessing, "bazi: unexpected processed data %T", pd)
	}
}

// FormatResult splits on ## headers; text before the first header is 总论.
func (s *System) FormatResult(text string) fortune.Sections {
	return fortune.ScanSections(text, fortune.ScanOptions{DefaultTitle: "总论", HeaderPrefix: "##"})
}

// RestoreProcessedData decodes a chart persisted as JSON.
func (s *System) RestoreProcessedData(raw []byte) (fortune.ProcessedData, error) {
	var d Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode bazi data: %w", err)
	}
	return &d, nil
}
