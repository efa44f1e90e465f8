package zodiac

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fortuneteller/pkg/apperrors"
	"fortuneteller/pkg/fortune"
)

func fixedClock() time.Time {
	return time.Date(2024, 3, 25, 10, 0, 0, 0, time.UTC)
}

func TestSignFor(t *testing.T) {
	cases := []struct {
		month, day int
		want       string
	}{
		{3, 20, "双鱼座"},
		{3, 21, "白羊座"},
		{5, 15, "金牛座"},
		{12, 25, "摩羯座"},
		{1, 5, "摩羯座"},
		{1, 20, "水瓶座"},
		{8, 23, "处女座"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SignFor(tc.month, tc.day).Name, "%d/%d", tc.month, tc.day)
	}
	assert.Equal(t, "12月22日 - 1月19日", SignFor(1, 1).DateRange())
}

func TestMoonAndRising(t *testing.T) {
	birth := time.Date(1990, 5, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "狮子座", MoonSign(birth).Name)
	assert.Equal(t, "白羊座", RisingSign(0).Name)
	assert.Equal(t, "狮子座", RisingSign(8).Name)
	assert.Equal(t, "双鱼座", RisingSign(23).Name)
}

func TestCompatibility(t *testing.T) {
	taurus, ok := LookupSign("金牛座")
	require.True(t, ok)

	got := map[string]string{}
	for _, p := range Compatibility(taurus) {
		got[p.Sign] = p.Level
	}
	assert.Len(t, got, 12)
	assert.Equal(t, LevelSelf, got["金牛座"])
	assert.Equal(t, LevelExcellent, got["处女座"])
	assert.Equal(t, LevelGood, got["巨蟹座"])
	assert.Equal(t, LevelChallenging, got["双子座"])
	assert.Equal(t, LevelNeutral, got["白羊座"])
}

func TestTransitsFollowToday(t *testing.T) {
	taurus, _ := LookupSign("金牛座")
	got := Transits(taurus, fixedClock())

	require.Len(t, got, 6)
	assert.Equal(t, Transit{"木星在天蝎座", "带来扩展和成长的机会"}, got[0])
	assert.Equal(t, "土星在水瓶座", got[1].Description)
	assert.Equal(t, "火星在狮子座", got[2].Description)
	assert.Equal(t, "金星在狮子座", got[3].Description)
	assert.Equal(t, "水星在巨蟹座", got[4].Description)
	assert.Equal(t, Transit{"太阳目前在白羊座", "挑战你的金牛座能量"}, got[5])

	leo, _ := LookupSign("狮子座")
	assert.Equal(t, "增强你的狮子座能量", Transits(leo, fixedClock())[5].Influence)
}

func TestValidateInput(t *testing.T) {
	s := New(fixedClock)

	v, err := s.ValidateInput(fortune.RawInput{"birth_date": "1990-5-15"})
	require.NoError(t, err)
	assert.Equal(t, fortune.ValidatedInput{
		"birth_date": "1990-05-15", "birth_time": "", "birth_place": "", "question_area": "整体运势",
	}, v)

	again, err := s.ValidateInput(v.Raw())
	require.NoError(t, err)
	assert.Equal(t, v, again)

	cases := map[string]struct {
		raw  fortune.RawInput
		want string
	}{
		"missing date": {fortune.RawInput{}, "出生日期是必须的"},
		"bad date":     {fortune.RawInput{"birth_date": "15.05.1990"}, "出生日期格式错误"},
		"bad time":     {fortune.RawInput{"birth_date": "1990-05-15", "birth_time": "noon"}, "出生时间格式错误"},
		"bad area":     {fortune.RawInput{"birth_date": "1990-05-15", "question_area": "学业"}, "不支持的关注领域: 学业"},
	}
	for name, tc := range cases {
		_, err := s.ValidateInput(tc.raw)
		require.Error(t, err, name)
		assert.True(t, apperrors.Is(err, apperrors.KindInvalidInput), name)
		assert.Contains(t, err.Error(), tc.want, name)
	}
}

func TestProcessAndPrompt(t *testing.T) {
	s := New(fixedClock)
	in, err := s.ValidateInput(fortune.RawInput{"birth_date": "1990-05-15", "birth_time": "08:30", "birth_place": "杭州", "question_area": "事业"})
	require.NoError(t, err)

	pd, err := s.ProcessData(in)
	require.NoError(t, err)
	d := pd.(*Data)
	assert.Equal(t, "金牛座", d.Sun.Name)
	assert.Equal(t, "4月20日 - 5月20日", d.Sun.DateRange)
	assert.Equal(t, "狮子座", d.MoonSign)
	assert.Equal(t, "狮子座", d.RisingSign)
	assert.Equal(t, "坚定稳固，有耐力，但可能固执", d.QualityInfo)

	p, err := s.GenerateLLMPrompt(pd)
	require.NoError(t, err)
	assert.Contains(t, p.System, "专业的占星师")
	assert.Contains(t, p.User, "- 太阳星座：金牛座 (Taurus)，4月20日 - 5月20日")
	assert.Contains(t, p.User, "- 元素：土（稳定, 实际, 可靠, 物质）")
	assert.Contains(t, p.User, "- 与处女座：非常好")
	assert.Contains(t, p.User, "- 太阳目前在白羊座: 挑战你的金牛座能量")
	assert.Contains(t, p.User, "特别针对\"事业\"领域")

	assert.Contains(t, s.FollowupSummary(pd), "太阳星座：金牛座 (Taurus)")
}

func TestProcessWithoutTime(t *testing.T) {
	s := New(fixedClock)
	pd, err := s.ProcessData(fortune.ValidatedInput{"birth_date": "2000-12-25", "question_area": "爱情"})
	require.NoError(t, err)
	d := pd.(*Data)
	assert.Equal(t, "摩羯座", d.Sun.Name)
	assert.Equal(t, "未知", d.RisingSign)
	assert.Equal(t, "未知", d.BirthTime)
	assert.Equal(t, "未知", d.BirthPlace)
}

func TestFormatResult(t *testing.T) {
	s := New(fixedClock)

	got := s.FormatResult("开场白\n# 性格特质\n稳重。\n## 事业运势\n步步高升。")
	assert.Equal(t, []string{"总体解读", "性格特质", "事业运势"}, got.Titles())

	single := s.FormatResult("没有标题")
	assert.Equal(t, []string{"总体解读"}, single.Titles())
}

func TestDisplayAndRestore(t *testing.T) {
	s := New(fixedClock)
	pd, err := s.ProcessData(fortune.ValidatedInput{"birth_date": "1990-05-15", "question_area": "整体运势"})
	require.NoError(t, err)

	disp := s.DisplayProcessedData(pd)
	var headings []string
	for _, g := range disp.Groups {
		headings = append(headings, g.Heading)
	}
	assert.Equal(t, []string{"基本信息", "太阳星座", "月亮和上升星座", "元素特性", "星座相合性", "当前星象"}, headings)
	assert.Equal(t, fortune.ToneEarth, disp.Groups[1].Rows[0].Tone)
	assert.Len(t, disp.Groups[5].Rows, 6)

	raw, err := json.Marshal(pd)
	require.NoError(t, err)
	restored, err := s.RestoreProcessedData(raw)
	require.NoError(t, err)
	assert.Equal(t, pd, restored)

	assert.Contains(t, s.ChatSystemPrompt(), "占星师")
}
