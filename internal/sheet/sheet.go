// internal/sheet/sheet.go

// Package sheet parses markdown question sheets.
//
// A sheet looks like:
//
//	# Sheet-Name
//
//	```meta
//	max_tokens: 20
//	```
//
//	System prompt shared by every question.
//
//	## Question-Name
//
//	```meta
//	seed: 7
//	```
//
//	Q: What did the early bird get?
//	A:
//
//	### answer
//	The worm
//
// The level-one heading names the sheet and the text below it is the system
// prompt. Each level-two heading starts a question. A question body may also
// be placed under an explicit "### question" heading. Fenced blocks tagged
// "meta" hold YAML key/values; question meta inherits the sheet's.
package sheet

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"go.yaml.in/yaml/v3"
)

const (
	sectionAnswer   = "answer"
	sectionQuestion = "question"
	metaInfo        = "meta"
)

// Sheet is a parsed question sheet.
type Sheet struct {
	Name      string            `json:"name"`
	FileName  string            `json:"sheet_fn,omitempty"`
	Text      *string           `json:"text"`
	Meta      map[string]string `json:"meta"`
	Questions []Question        `json:"questions"`
	Warnings  []string          `json:"parse_warns,omitempty"`
}

// Question is one question of a sheet. TextSys is the sheet's system prompt.
type Question struct {
	Name     string            `json:"name"`
	Meta     map[string]string `json:"meta"`
	TextSys  *string           `json:"text_sys"`
	TextUsr  string            `json:"text_usr"`
	Answer   *string           `json:"answer"`
	Sections map[string]string `json:"sections,omitempty"`
	Warnings []string          `json:"parse_warns,omitempty"`
}

// ParseFile reads and parses a sheet. When the document has no level-one
// heading the file name (without extension) names the sheet.
func ParseFile(path string) (*Sheet, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", path, err)
	}
	s, err := Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse sheet %s: %w", path, err)
	}
	s.FileName = filepath.Base(path)
	if s.Name == "" {
		s.Name = strings.TrimSuffix(s.FileName, filepath.Ext(s.FileName))
	}
	return s, nil
}

// Parse parses sheet markdown.
func Parse(src []byte) (*Sheet, error) {
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))
	lines := splitLines(src)
	marks, err := collectMarks(doc, src, lines)
	if err != nil {
		return nil, err
	}
	return assemble(lines, marks), nil
}

type markKind int

const (
	markHeading markKind = iota
	markMeta
)

// mark is a heading or meta block spanning lines [first, last].
type mark struct {
	kind  markKind
	level int
	title string
	body  string
	first int
	last  int
}

type sourceLines struct {
	text   []string
	starts []int
}

func splitLines(src []byte) sourceLines {
	var sl sourceLines
	offset := 0
	for _, line := range strings.SplitAfter(string(src), "\n") {
		if line == "" {
			continue
		}
		sl.text = append(sl.text, line)
		sl.starts = append(sl.starts, offset)
		offset += len(line)
	}
	return sl
}

// lineOf returns the index of the line containing byte offset off.
func (sl sourceLines) lineOf(off int) int {
	i := sort.Search(len(sl.starts), func(i int) bool { return sl.starts[i] > off })
	return i - 1
}

func isFence(line string) bool {
	t := strings.TrimSpace(line)
	return strings.HasPrefix(t, "```") || strings.HasPrefix(t, "~~~")
}

// collectMarks walks the top-level blocks and records headings and meta
// fences by line. Nested headings (in lists or quotes) stay body text.
func collectMarks(doc ast.Node, src []byte, sl sourceLines) ([]mark, error) {
	var marks []mark
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			segs := node.Lines()
			if segs.Len() == 0 {
				continue
			}
			first := sl.lineOf(segs.At(0).Start)
			last := sl.lineOf(segs.At(segs.Len() - 1).Start)
			if !strings.HasPrefix(strings.TrimSpace(sl.text[first]), "#") && last+1 < len(sl.text) {
				last++ // setext underline
			}
			var title strings.Builder
			for i := 0; i < segs.Len(); i++ {
				seg := segs.At(i)
				title.Write(seg.Value(src))
			}
			marks = append(marks, mark{
				kind:  markHeading,
				level: node.Level,
				title: strings.TrimSpace(title.String()),
				first: first,
				last:  last,
			})
		case *ast.FencedCodeBlock:
			if node.Info == nil || strings.TrimSpace(string(node.Language(src))) != metaInfo {
				continue
			}
			first := sl.lineOf(node.Info.Segment.Start)
			var body strings.Builder
			last := first
			segs := node.Lines()
			for i := 0; i < segs.Len(); i++ {
				seg := segs.At(i)
				body.Write(seg.Value(src))
				last = sl.lineOf(seg.Start)
			}
			if last+1 < len(sl.text) && isFence(sl.text[last+1]) {
				last++
			}
			marks = append(marks, mark{kind: markMeta, body: body.String(), first: first, last: last})
		}
	}
	return marks, nil
}

// builder accumulates one question while lines are assigned.
type builder struct {
	q        Question
	body     strings.Builder
	explicit *strings.Builder
	sections map[string]*strings.Builder
	current  *strings.Builder
}

func newBuilder(name string) *builder {
	b := &builder{q: Question{Name: name}, sections: map[string]*strings.Builder{}}
	b.current = &b.body
	return b
}

func assemble(sl sourceLines, marks []mark) *Sheet {
	s := &Sheet{Meta: map[string]string{}}
	var (
		header    strings.Builder
		inSheet   bool
		questions []*builder
		cur       *builder
	)
	markAt := make(map[int]mark, len(marks))
	for _, m := range marks {
		markAt[m.first] = m
	}

	for i := 0; i < len(sl.text); i++ {
		if m, ok := markAt[i]; ok {
			i = m.last
			switch {
			case m.kind == markMeta:
				meta, err := parseMeta(m.body)
				if err != nil {
					warn := fmt.Sprintf("meta block is not valid yaml: %v", err)
					if cur != nil {
						cur.q.Warnings = append(cur.q.Warnings, warn)
					} else {
						s.Warnings = append(s.Warnings, warn)
					}
				}
				switch {
				case cur != nil:
					if cur.q.Meta == nil {
						cur.q.Meta = map[string]string{}
					}
					for k, v := range meta {
						cur.q.Meta[k] = v
					}
				case inSheet:
					for k, v := range meta {
						s.Meta[k] = v
					}
				}
			case m.level == 1:
				if inSheet {
					s.Warnings = append(s.Warnings, fmt.Sprintf("extra sheet heading `%s` ignored", m.title))
					continue
				}
				inSheet = true
				s.Name = m.title
			case m.level == 2:
				inSheet = true
				cur = newBuilder(m.title)
				questions = append(questions, cur)
			case m.level == 3 && cur != nil:
				name := strings.ToLower(m.title)
				if name == sectionQuestion {
					cur.explicit = &strings.Builder{}
					cur.current = cur.explicit
					continue
				}
				sb, ok := cur.sections[name]
				if !ok {
					sb = &strings.Builder{}
					cur.sections[name] = sb
				}
				cur.current = sb
			default:
				if cur != nil {
					writeLines(cur.current, sl.text[m.first:m.last+1])
				} else if inSheet {
					writeLines(&header, sl.text[m.first:m.last+1])
				}
			}
			continue
		}
		switch {
		case cur != nil:
			cur.current.WriteString(sl.text[i])
		case inSheet:
			header.WriteString(sl.text[i])
		}
	}

	if sys := trimBlock(header.String()); sys != "" {
		sys += "\n"
		s.Text = &sys
	}
	seen := map[string]int{}
	for _, b := range questions {
		s.Questions = append(s.Questions, b.finish(s, seen))
	}
	return s
}

func writeLines(sb *strings.Builder, lines []string) {
	for _, l := range lines {
		sb.WriteString(l)
	}
}

func (b *builder) finish(s *Sheet, seen map[string]int) Question {
	q := b.q

	if n, dup := seen[q.Name]; dup {
		q.Warnings = append([]string{fmt.Sprintf("question name `%s` is not unique", q.Name)}, q.Warnings...)
		base := q.Name
		for {
			n++
			candidate := fmt.Sprintf("%s_%d", base, n)
			if _, taken := seen[candidate]; !taken {
				seen[base] = n
				q.Name = candidate
				break
			}
		}
	}
	seen[q.Name] = 0

	meta := make(map[string]string, len(s.Meta)+len(q.Meta))
	for k, v := range s.Meta {
		meta[k] = v
	}
	for k, v := range q.Meta {
		meta[k] = v
	}
	q.Meta = meta
	q.TextSys = s.Text

	src := b.body.String()
	if b.explicit != nil {
		src = b.explicit.String()
	}
	q.TextUsr = trimBlock(src)
	if strings.TrimSpace(q.TextUsr) == "" {
		q.TextUsr = ""
		q.Warnings = append(q.Warnings, "text_usr is None")
	}

	for name, sb := range b.sections {
		content := trimBlock(sb.String())
		if name == sectionAnswer {
			answer := strings.TrimSpace(content)
			q.Answer = &answer
			continue
		}
		if q.Sections == nil {
			q.Sections = map[string]string{}
		}
		q.Sections[name] = content
	}
	return q
}

// trimBlock drops leading blank lines and trailing blank lines, and the
// final line break. Trailing spaces on the last line are kept so prompts
// such as "A: " survive.
func trimBlock(s string) string {
	lines := strings.SplitAfter(s, "\n")
	start := 0
	for start < len(lines) && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	end := len(lines)
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	out := strings.Join(lines[start:end], "")
	return strings.TrimRight(out, "\r\n")
}

func parseMeta(body string) (map[string]string, error) {
	raw := map[string]any{}
	if err := yaml.Unmarshal([]byte(body), &raw); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out, nil
}
