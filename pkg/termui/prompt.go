package termui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"fortuneteller/pkg/fortune"
)

// ErrBack is returned when the user picks the "return" entry of a menu.
var ErrBack = errors.New("back to main menu")

// Prompter reads answers line by line.
type Prompter struct {
	in    *bufio.Reader
	w     io.Writer
	theme *Theme
}

// NewPrompter reads from in and echoes prompts to w.
func NewPrompter(in io.Reader, w io.Writer, theme *Theme) *Prompter {
	return &Prompter{in: bufio.NewReader(in), w: w, theme: theme}
}

// Line prints prompt and returns the trimmed answer. io.EOF is returned once input is exhausted.
func (p *Prompter) Line(prompt string) (string, error) {
	fmt.Fprint(p.w, prompt)
	line, err := p.in.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (p *Prompter) warn(msg string) {
	fmt.Fprintln(p.w, p.theme.Bad(msg))
}

// Choose reads a number in [lo, hi] and repeats until one is given.
func (p *Prompter) Choose(prompt string, lo, hi int) (int, error) {
	for {
		answer, err := p.Line(prompt)
		if err != nil {
			return 0, err
		}
		n, convErr := strconv.Atoi(answer)
		switch {
		case convErr != nil:
			p.warn("请输入有效的数字")
		case n < lo || n > hi:
			p.warn(fmt.Sprintf("请输入%d到%d之间的数字", lo, hi))
		default:
			return n, nil
		}
	}
}

// ChooseSystem asks for a system by number, 0 meaning quit. It returns ErrBack on 0.
func (p *Prompter) ChooseSystem(systems []fortune.Descriptor) (fortune.Descriptor, error) {
	n, err := p.Choose(fmt.Sprintf("\n请选择占卜系统 (1-%d，0 退出): ", len(systems)), 0, len(systems))
	if err != nil {
		return fortune.Descriptor{}, err
	}
	if n == 0 {
		return fortune.Descriptor{}, ErrBack
	}
	return systems[n-1], nil
}

// ChooseTopic asks for a follow-up topic, returning ErrBack on 0.
func (p *Prompter) ChooseTopic(topics []string) (string, error) {
	n, err := p.Choose(fmt.Sprintf("\n请选择 (0-%d): ", len(topics)), 0, len(topics))
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", ErrBack
	}
	return topics[n-1], nil
}

// CollectInputs asks for every field of sys in order. Answers are checked for shape only;
// the system still validates the result.
func (p *Prompter) CollectInputs(sys fortune.Descriptor, fields []fortune.InputField) (fortune.RawInput, error) {
	fmt.Fprintf(p.w, "\n%s\n", p.theme.Title("✨ 请输入"+sys.DisplayName+"所需的信息 ✨"))
	fmt.Fprintln(p.w, p.theme.Accent(strings.Repeat("-", 60)))

	raw := fortune.RawInput{}
	for _, f := range fields {
		value, err := p.field(f)
		if err != nil {
			return nil, err
		}
		if value != "" {
			raw[f.Name] = value
		}
	}
	return raw, nil
}

func (p *Prompter) field(f fortune.InputField) (string, error) {
	if f.Type == fortune.InputSelect && len(f.Options) > 0 {
		return p.selectField(f)
	}

	suffix := " (选填，按Enter跳过)"
	if f.Required {
		suffix = " (必填)"
	}
	if f.Default != "" {
		suffix += fmt.Sprintf(" [默认: %s]", f.Default)
	}
	prompt := fmt.Sprintf("%s%s: ", p.theme.Good(f.Description), suffix)

	for {
		answer, err := p.Line(prompt)
		if err != nil {
			return "", err
		}
		if answer == "" {
			if f.Default != "" {
				return f.Default, nil
			}
			if f.Required {
				p.warn("此字段为必填项，请输入有效值")
				continue
			}
			return "", nil
		}

		switch f.Type {
		case fortune.InputDate:
			if _, _, err := fortune.ParseDate(answer); err != nil {
				p.warn("请输入有效的日期格式 (YYYY-MM-DD)")
				continue
			}
		case fortune.InputTime:
			if _, _, _, err := fortune.ParseClock(answer); err != nil {
				p.warn("请输入有效的时间格式 (HH:MM)")
				continue
			}
		}
		return answer, nil
	}
}

func (p *Prompter) selectField(f fortune.InputField) (string, error) {
	fmt.Fprintf(p.w, "%s:\n", p.theme.Good(f.Description))
	for i, o := range f.Options {
		line := fmt.Sprintf("  %d. %s", i+1, o.Label)
		if o.Description != "" {
			line += " - " + o.Description
		}
		fmt.Fprintln(p.w, line)
	}

	lo := 1
	prompt := fmt.Sprintf("请选择一个选项 (1-%d): ", len(f.Options))
	if !f.Required {
		lo = 0
		prompt = fmt.Sprintf("请选择一个选项 (1-%d，0 跳过): ", len(f.Options))
	}
	n, err := p.Choose(prompt, lo, len(f.Options))
	if err != nil {
		return "", err
	}
	if n == 0 {
		return f.Default, nil
	}
	return f.Options[n-1].Value, nil
}
