package fortune

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// Section is one titled block of a formatted reading.
type Section struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Sections is an ordered title→body mapping. Titles are unique.
type Sections []Section

// Get returns the body for title.
func (s Sections) Get(title string) (string, bool) {
	for _, sec := range s {
		if sec.Title == title {
			return sec.Body, true
		}
	}
	return "", false
}

// Titles returns section titles in order.
func (s Sections) Titles() []string {
	titles := make([]string, len(s))
	for i, sec := range s {
		titles[i] = sec.Title
	}
	return titles
}

// Map returns an unordered copy keyed by title.
func (s Sections) Map() map[string]string {
	m := make(map[string]string, len(s))
	for _, sec := range s {
		m[sec.Title] = sec.Body
	}
	return m
}

// set appends a section, or merges the body into an existing one with the same title.
func (s Sections) set(title, body string) Sections {
	for i := range s {
		if s[i].Title == title {
			if s[i].Body == "" {
				s[i].Body = body
			} else if body != "" {
				s[i].Body += "\n\n" + body
			}
			return s
		}
	}
	return append(s, Section{Title: title, Body: body})
}

// MarshalJSON encodes sections as a JSON object preserving order.
func (s Sections) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, sec := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := marshalNoEscape(sec.Title)
		if err != nil {
			return nil, err
		}
		val, err := marshalNoEscape(sec.Body)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping the key order of the document.
func (s *Sections) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return err
	}
	out := Sections{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		title, _ := tok.(string)
		var body string
		if err := dec.Decode(&body); err != nil {
			return err
		}
		out = out.set(title, body)
	}
	*s = out
	return nil
}

func marshalNoEscape(v string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ScanOptions selects which header markers ScanSections recognizes.
type ScanOptions struct {
	// Normalize maps a raw header title to its canonical name. Optional.
	Normalize func(title string) string
	// DefaultTitle names text before the first header and the single-section fallback.
	DefaultTitle string
	// HeaderPrefix is the markdown marker that starts a header line ("#" or "##").
	HeaderPrefix string
	// Brackets treats lines starting with 【title】 as headers; the line stays in the body.
	Brackets bool
	// Rules treats long ---- separator lines as section breaks under the current title.
	Rules bool
}

const minRuleLength = 10

// ScanSections splits model text into titled sections. Scanning is best-effort:
// when at most one section is recognized the whole trimmed text becomes a single
// section under DefaultTitle.
func ScanSections(text string, opts ScanOptions) Sections {
	prefix := opts.HeaderPrefix
	if prefix == "" {
		prefix = "#"
	}

	var (
		out     Sections
		title   = opts.DefaultTitle
		body    []string
		hasBody bool
	)

	flush := func() {
		if !hasBody {
			return
		}
		content := strings.TrimSpace(strings.Join(body, "\n"))
		if content != "" || title != opts.DefaultTitle {
			out = out.set(normalizeTitle(title, opts), content)
		}
		body = nil
		hasBody = false
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, prefix):
			flush()
			title = strings.TrimSpace(strings.Trim(trimmed, "#"))
		case opts.Brackets && strings.HasPrefix(trimmed, "【") && strings.Contains(trimmed, "】"):
			flush()
			inner := strings.TrimPrefix(trimmed, "【")
			title = strings.TrimSpace(inner[:strings.Index(inner, "】")])
			body = append(body, line)
			hasBody = true
		case opts.Rules && strings.Contains(trimmed, "----") && utf8.RuneCountInString(trimmed) > minRuleLength:
			flush()
			body = append(body, line)
			hasBody = true
		default:
			body = append(body, line)
			hasBody = true
		}
	}
	flush()

	if len(out) <= 1 {
		return Sections{{Title: opts.DefaultTitle, Body: strings.TrimSpace(text)}}
	}
	return out
}

func normalizeTitle(title string, opts ScanOptions) string {
	title = strings.TrimSpace(strings.NewReplacer("【", "", "】", "").Replace(title))
	if opts.Normalize != nil {
		title = opts.Normalize(title)
	}
	if title == "" {
		return opts.DefaultTitle
	}
	return title
}
