// Package tarot implements tarot spreads drawn from a 78-card deck.
package tarot

import (
	"encoding/json"
	"fmt"
	"strings"

	"fortuneteller/pkg/apperrors"
	"fortuneteller/pkg/fortune"
	"fortuneteller/pkg/logx"
)

// Name is the registry key of the system.
const Name = "tarot"

const (
	Upright  = "正位"
	Reversed = "逆位"

	// reversedOdds is the percentage of draws that land reversed.
	reversedOdds = 33
)

// Spread is a named layout of positions.
type Spread struct {
	Key         string   `json:"key"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Positions   []string `json:"-"`
}

//nolint:gochecknoglobals // static spread table
var spreads = []Spread{
	{Key: "single", Name: "单牌阅读", Description: "抽取一张牌进行简单的阅读", Positions: []string{"当前状况"}},
	{Key: "three_card", Name: "三牌阵", Description: "过去、现在、未来的经典三牌阵", Positions: []string{"过去", "现在", "未来"}},
	{Key: "celtic_cross", Name: "凯尔特十字", Description: "详细分析当前情况和潜在结果的经典阵列", Positions: []string{
		"当前状况", "挑战", "过去", "未来", "意识目标", "潜意识影响", "自我认知", "外部影响", "希望与恐惧", "最终结果",
	}},
	{Key: "relationship", Name: "关系阵", Description: "分析两个人之间关系的牌阵", Positions: []string{
		"你自己", "对方", "关系基础", "过去影响", "当前状态", "未来发展",
	}},
}

//nolint:gochecknoglobals // static option list
var focusAreas = []string{"爱情", "事业", "健康", "财富", "灵性", "一般"}

const defaultFocus = "一般"

func spreadFor(key string) (Spread, bool) {
	for _, s := range spreads {
		if s.Key == key {
			return s, true
		}
	}
	return Spread{}, false
}

// DrawnCard is a card placed in a spread position.
type DrawnCard struct {
	Position    string   `json:"position"`
	Card        string   `json:"card"`
	Emoji       string   `json:"emoji,omitempty"`
	Orientation string   `json:"orientation"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
}

// Data is a completed draw.
type Data struct {
	Question  string      `json:"question"`
	FocusArea string      `json:"focus_area"`
	Name      string      `json:"name"`
	Spread    Spread      `json:"spread"`
	Reading   []DrawnCard `json:"reading"`
}

// Kind tags the variant.
func (Data) Kind() string { return Name }

// System is the tarot plugin.
type System struct {
	fortune.Base
	rng    fortune.RNG
	logger *logx.Logger
	cards  []Card
}

// New loads the deck (from dataDir/deck.yaml when present) and creates the system.
// A nil rng uses fortune.DefaultRNG.
func New(rng fortune.RNG, dataDir string) (*System, error) {
	logger := logx.NewLogger("tarot")
	cards, source, err := LoadDeck(dataDir)
	if err != nil {
		return nil, err
	}
	if rng == nil {
		rng = fortune.DefaultRNG
	}
	logger.Info("tarot system initialized with %d cards from %s", len(cards), source)
	return &System{
		Base:   fortune.NewBase(Name, "塔罗牌", "基于传统塔罗牌解读的占卜系统"),
		rng:    rng,
		logger: logger,
		cards:  cards,
	}, nil
}

// Cards returns the loaded deck.
func (s *System) Cards() []Card {
	return append([]Card(nil), s.cards...)
}

// RequiredInputs lists the fields in display order.
func (s *System) RequiredInputs() []fortune.InputField {
	spreadOpts := make([]fortune.Option, len(spreads))
	for i, sp := range spreads {
		spreadOpts[i] = fortune.Option{Value: sp.Key, Label: sp.Name, Description: sp.Description}
	}
	focusOpts := make([]fortune.Option, len(focusAreas))
	for i, f := range focusAreas {
		focusOpts[i] = fortune.Option{Value: f}
	}
	return []fortune.InputField{
		{Name: "question", Type: fortune.InputText, Description: "你想要咨询的问题", Required: true},
		{Name: "spread", Type: fortune.InputSelect, Description: "塔罗牌阵", Options: spreadOpts, Required: true},
		{Name: "focus_area", Type: fortune.InputSelect, Description: "问题领域", Options: focusOpts, Default: defaultFocus, Required: true},
		{Name: "name", Type: fortune.InputText, Description: "你的姓名（可选）"},
	}
}

// ValidateInput checks the question, spread and focus area.
func (s *System) ValidateInput(raw fortune.RawInput) (fortune.ValidatedInput, error) {
	question := raw.Trimmed("question")
	if question == "" {
		return nil, apperrors.InvalidInput("问题内容是必须的")
	}

	spread := raw.Trimmed("spread")
	if spread == "" {
		return nil, apperrors.InvalidInput("必须选择塔罗牌阵")
	}
	if _, ok := spreadFor(spread); !ok {
		return nil, apperrors.InvalidInput(fmt.Sprintf("不支持的牌阵: %s", spread))
	}

	focus := raw.Trimmed("focus_area")
	if focus == "" {
		focus = defaultFocus
	} else if !contains(focusAreas, focus) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("不支持的问题领域: %s", focus))
	}

	return fortune.ValidatedInput{
		"question":   question,
		"spread":     spread,
		"focus_area": focus,
		"name":       raw.Trimmed("name"),
	}, nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// ProcessData draws one distinct card per position.
func (s *System) ProcessData(in fortune.ValidatedInput) (fortune.ProcessedData, error) {
	spread, ok := spreadFor(in.Get("spread"))
	if !ok {
		return nil, apperrors.InvalidInput(fmt.Sprintf("不支持的牌阵: %s", in.Get("spread")))
	}

	drawn := s.draw(len(spread.Positions))
	d := &Data{
		Question:  in.Get("question"),
		FocusArea: in.Get("focus_area"),
		Name:      in.Get("name"),
		Spread:    spread,
		Reading:   make([]DrawnCard, len(drawn)),
	}
	for i, card := range drawn {
		orientation := Upright
		if s.rng.Intn(100) < reversedOdds {
			orientation = Reversed
		}
		d.Reading[i] = DrawnCard{
			Position:    spread.Positions[i],
			Card:        card.Name,
			Emoji:       card.Emoji,
			Orientation: orientation,
			Description: card.Description,
			Keywords:    card.Keywords,
		}
	}
	s.logger.Debug("drew %d cards for spread %s", len(drawn), spread.Key)
	return d, nil
}

// draw runs a partial Fisher-Yates shuffle over card indexes.
func (s *System) draw(n int) []Card {
	if n > len(s.cards) {
		n = len(s.cards)
	}
	idx := make([]int, len(s.cards))
	for i := range idx {
		idx[i] = i
	}
	out := make([]Card, n)
	for i := 0; i < n; i++ {
		j := i + s.rng.Intn(len(idx)-i)
		idx[i], idx[j] = idx[j], idx[i]
		out[i] = s.cards[idx[i]]
	}
	return out
}

func dataOf(pd fortune.ProcessedData) (*Data, error) {
	switch d := pd.(type) {
	case *Data:
		return d, nil
	case Data:
		return &d, nil
	default:
		return nil, apperrors.Newf(apperrors.KindProcessing, "tarot: unexpected processed data %T", pd)
	}
}

// FormatResult recognizes # headers, 【】 headers and long ---- rules.
func (s *System) FormatResult(text string) fortune.Sections {
	return fortune.ScanSections(text, fortune.ScanOptions{
		DefaultTitle: "整体解读",
		HeaderPrefix: "#",
		Brackets:     true,
		Rules:        true,
		Normalize:    normalizeTitle,
	})
}

func normalizeTitle(title string) string {
	switch {
	case strings.Contains(title, "整体"), strings.Contains(title, "综合"):
		return "整体解读"
	case strings.Contains(title, "牌位"):
		return "各牌位详细解读"
	default:
		return title
	}
}

// RestoreProcessedData decodes a persisted draw. Spread positions are restored from the table.
func (s *System) RestoreProcessedData(raw []byte) (fortune.ProcessedData, error) {
	var d Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode tarot data: %w", err)
	}
	if sp, ok := spreadFor(d.Spread.Key); ok {
		d.Spread = sp
	}
	return &d, nil
}
