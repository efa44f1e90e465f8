package termui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"

	"fortuneteller/pkg/config"
	"fortuneteller/pkg/fortune"
	"fortuneteller/pkg/orchestrator"
)

const banner = `
    ██╗  ██╗██╗ █████╗  ██████╗      ███████╗██╗  ██╗ █████╗ ███╗   ██╗
    ╚██╗██╔╝██║██╔══██╗██╔═══██╗     ╚══███╔╝██║  ██║██╔══██╗████╗  ██║
     ╚███╔╝ ██║███████║██║   ██║       ███╔╝ ███████║███████║██╔██╗ ██║
     ██╔██╗ ██║██╔══██║██║   ██║      ███╔╝  ██╔══██║██╔══██║██║╚██╗██║
    ██╔╝ ██╗██║██║  ██║╚██████╔╝     ███████╗██║  ██║██║  ██║██║ ╚████║
    ╚═╝  ╚═╝╚═╝╚═╝  ╚═╝ ╚═════╝      ╚══════╝╚═╝  ╚═╝╚═╝  ╚═╝╚═╝  ╚═══╝
`

//nolint:gochecknoglobals // static lookup table
var systemIcons = map[string]string{
	"bazi":   "🀄",
	"tarot":  "🃏",
	"zodiac": "⭐",
}

// Printer writes screens to a terminal.
type Printer struct {
	w        io.Writer
	theme    *Theme
	markdown *glamour.TermRenderer
}

// NewPrinter creates a printer. Colour and markdown styling follow the detected profile of w.
func NewPrinter(w io.Writer) (*Printer, error) {
	theme := NewTheme(w)
	return newPrinter(w, theme)
}

// NewPlainPrinter creates a printer that never emits escape sequences.
func NewPlainPrinter(w io.Writer) (*Printer, error) {
	return newPrinter(w, NewPlainTheme(w))
}

func newPrinter(w io.Writer, theme *Theme) (*Printer, error) {
	style := glamour.WithStandardStyle("notty")
	if theme.Colored() {
		style = glamour.WithAutoStyle()
	}
	md, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(80))
	if err != nil {
		return nil, fmt.Errorf("create markdown renderer: %w", err)
	}
	return &Printer{w: w, theme: theme, markdown: md}, nil
}

// Theme returns the printer's theme.
func (p *Printer) Theme() *Theme {
	return p.theme
}

func (p *Printer) rule(ch string, n int) {
	fmt.Fprintln(p.w, p.theme.Accent(strings.Repeat(ch, n)))
}

// Welcome prints the banner.
func (p *Printer) Welcome() {
	fmt.Fprintln(p.w, p.theme.Accent(banner))
	fmt.Fprintf(p.w, "%s\n", p.theme.Bold("欢迎使用 ")+p.theme.Title("霄占 (Fortune Teller)")+p.theme.Bold(" 命理解析系统"))
	fmt.Fprintln(p.w, p.theme.Accent("✨ 古今命理，尽在掌握 ✨"))
	fmt.Fprintln(p.w)
	p.rule("=", 80)
}

// LLMInfo prints the active model and its readiness.
func (p *Printer) LLMInfo(s config.LLMSettings) {
	provider, model := s.Provider, s.Model
	status := p.theme.Good("✓ 大语言模型已连接，系统准备就绪")
	switch s.Provider {
	case config.ProviderMock:
		provider, model = "模拟模式", "测试模型"
		status = p.theme.Tone("⚠️ 当前为测试模式，解读结果不具参考价值", fortune.ToneHighlight)
	case config.ProviderOpenAI:
		provider = "OpenAI"
	case config.ProviderAnthropic:
		provider = "Anthropic"
	case config.ProviderBedrock:
		provider = "AWS Bedrock (" + s.Region + ")"
	case config.ProviderGoogle:
		provider = "Google Gemini"
	case config.ProviderOllama:
		provider = "Ollama"
	}
	fmt.Fprintf(p.w, "🧠 当前使用的大语言模型: %s\n", p.theme.Good(fmt.Sprintf("%s (%s)", provider, model)))
	if len(s.Fallback) > 0 {
		refs := make([]string, len(s.Fallback))
		for i, ref := range s.Fallback {
			refs[i] = ref.String()
		}
		fmt.Fprintf(p.w, "🔁 备用模型: %s\n", strings.Join(refs, " → "))
	}
	fmt.Fprintf(p.w, "📡 连接状态: %s\n", status)
	p.rule("=", 80)
}

// Systems prints the numbered list of systems.
func (p *Printer) Systems(systems []fortune.Descriptor) {
	fmt.Fprintf(p.w, "\n%s\n", p.theme.Title("✨ 可用的占卜系统 ✨"))
	p.rule("-", 60)
	for i, s := range systems {
		icon, ok := systemIcons[s.Name]
		if !ok {
			icon = "📜"
		}
		fmt.Fprintf(p.w, "%s %s (%s)\n", p.theme.Good(fmt.Sprintf("%d.", i+1)), p.theme.Bold(icon+" "+s.DisplayName), s.Name)
		fmt.Fprintf(p.w, "   %s %s\n", p.theme.Accent("描述:"), s.Description)
		p.rule("-", 40)
	}
}

// Display prints a system's computed data.
func (p *Printer) Display(d fortune.Display) {
	fmt.Fprintf(p.w, "\n%s\n", p.theme.Title("✨ "+d.Title+" ✨"))
	p.rule("=", 60)
	for _, g := range d.Groups {
		fmt.Fprintf(p.w, "\n%s\n", p.theme.Bold("【"+g.Heading+"】"))
		for _, row := range g.Rows {
			if row.Label == "" {
				fmt.Fprintln(p.w, p.theme.Tone(row.Value, row.Tone))
				continue
			}
			fmt.Fprintf(p.w, "%s: %s\n", row.Label, p.theme.Tone(row.Value, row.Tone))
		}
	}
	fmt.Fprintln(p.w)
	p.rule("-", 60)
}

// Markdown renders sections as a markdown document, one second-level heading each.
func Markdown(sections fortune.Sections) string {
	var b strings.Builder
	for i, s := range sections {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "## %s\n\n%s\n", s.Title, strings.TrimSpace(s.Body))
	}
	return b.String()
}

// Reading prints a reading result. savedTo is shown when non-empty.
func (p *Printer) Reading(res *orchestrator.ReadingResult, savedTo string) error {
	fmt.Fprintf(p.w, "\n%s\n\n", p.theme.Good("✓ 解读生成完成！"))
	if savedTo != "" {
		fmt.Fprintf(p.w, "%s %s\n\n", p.theme.Good("✓ 结果已保存到:"), savedTo)
	}
	fmt.Fprintf(p.w, "\n%s\n", p.theme.Title("✨ 命理解读结果 ✨"))
	p.rule("=", 60)

	out, err := p.markdown.Render(Markdown(res.Content))
	if err != nil {
		return fmt.Errorf("render reading: %w", err)
	}
	fmt.Fprint(p.w, out)
	p.rule("-", 40)
	return nil
}

// Followup prints a follow-up result under its topic.
func (p *Printer) Followup(res *orchestrator.ReadingResult) error {
	topic := orchestrator.CleanLabel(res.Metadata.Topic)
	fmt.Fprintf(p.w, "\n%s\n", p.theme.Title("✨ "+topic+"详解 ✨"))
	p.rule("=", 60)

	body, _ := res.Content.Get(topic)
	out, err := p.markdown.Render(body)
	if err != nil {
		return fmt.Errorf("render follow-up: %w", err)
	}
	fmt.Fprint(p.w, out)
	p.rule("-", 40)
	return nil
}

// TopicMenu prints the follow-up topics numbered from 1, with 0 returning to the main menu.
func (p *Printer) TopicMenu(topics []string) {
	fmt.Fprintf(p.w, "\n%s\n", p.theme.Bold("您想深入了解哪个方面?"))
	p.rule("-", 40)
	for i, t := range topics {
		fmt.Fprintf(p.w, "%s %s\n", p.theme.Good(fmt.Sprintf("%d.", i+1)), t)
	}
	fmt.Fprintf(p.w, "%s 🏠 返回主菜单\n", p.theme.Good("0."))
}

// ChatIntro prints the chat header for a persona name.
func (p *Printer) ChatIntro(name string) {
	fmt.Fprintf(p.w, "\n%s\n", p.theme.Title("✨ 与霄占"+name+"聊天 ✨"))
	p.rule("=", 60)
	fmt.Fprintf(p.w, "您可以向霄占%s询问任何关于命理、运势或生活的问题。\n", name)
	fmt.Fprintf(p.w, "%s将以灵活幽默的方式与您交流，分享智慧与见解。\n", name)
	fmt.Fprintf(p.w, "输入 %s 或 %s 返回主菜单。\n\n", p.theme.Good("exit"), p.theme.Good("退出"))
}

// Say prints one line spoken by the fortune teller.
func (p *Printer) Say(msg string) {
	fmt.Fprintf(p.w, "\n%s%s\n\n", p.theme.Good("霄占: "), msg)
}

// Info prints a plain line.
func (p *Printer) Info(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

// Error prints an error in red.
func (p *Printer) Error(err error) {
	fmt.Fprintf(p.w, "\n%s\n", p.theme.Bad("错误: "+err.Error()))
}
