package goldmark

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fwojciec/synapse"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Render returns markdown source as ANSI-styled terminal text wrapped to
// width. Fenced blocks are shown behind a gutter without reflow; a json
// fence is labelled as a tool request since that is how the marker
// convention asks for tools.
func Render(source string, width int, theme synapse.Theme) string {
	if source == "" {
		return ""
	}
	if width <= 0 {
		width = 80
	}
	r := renderer{
		width:  width,
		bold:   lipgloss.NewStyle().Bold(true),
		italic: lipgloss.NewStyle().Italic(true),
		accent: lipgloss.NewStyle().Foreground(ansiColor(theme.Accent)).Bold(true),
		muted:  lipgloss.NewStyle().Foreground(ansiColor(theme.Muted)).Faint(true),
		tool:   lipgloss.NewStyle().Foreground(ansiColor(theme.ToolCall)),
	}
	src := []byte(source)
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))

	var blocks []string
	for c := doc.FirstChild(); c != nil; c = c.NextSibling() {
		if s := r.block(c, src); s != "" {
			blocks = append(blocks, s)
		}
	}
	return strings.Join(blocks, "\n\n")
}

func ansiColor(index int) lipgloss.TerminalColor {
	if index < 0 {
		return lipgloss.NoColor{}
	}
	return lipgloss.Color(strconv.Itoa(index))
}

type renderer struct {
	width  int
	bold   lipgloss.Style
	italic lipgloss.Style
	accent lipgloss.Style
	muted  lipgloss.Style
	tool   lipgloss.Style
}

func (r renderer) wrap(s string, width int) string {
	return lipgloss.NewStyle().Width(width).Render(s)
}

func (r renderer) block(n ast.Node, src []byte) string {
	switch n := n.(type) {
	case *ast.Paragraph, *ast.TextBlock:
		return r.wrap(r.inline(n, src), r.width)
	case *ast.Heading:
		return r.wrap(r.accent.Render(r.inline(n, src)), r.width)
	case *ast.FencedCodeBlock:
		label := string(n.Language(src))
		if label == "json" {
			label = r.tool.Render("tool request")
		} else if label != "" {
			label = r.muted.Render(label)
		}
		return r.code(label, n.Lines(), src)
	case *ast.CodeBlock:
		return r.code("", n.Lines(), src)
	case *ast.List:
		return r.list(n, src, 0)
	case *ast.ThematicBreak:
		return "---"
	default:
		var parts []string
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if s := r.block(c, src); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n\n")
	}
}

func (r renderer) code(label string, lines *text.Segments, src []byte) string {
	var b strings.Builder
	if label != "" {
		b.WriteString(label)
		b.WriteString("\n")
	}
	gutter := r.muted.Render("│") + " "
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.WriteString(gutter)
		b.WriteString(strings.TrimRight(string(seg.Value(src)), "\n"))
		if i < lines.Len()-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (r renderer) list(n *ast.List, src []byte, depth int) string {
	var out []string
	num := n.Start
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		marker := "- "
		if n.IsOrdered() {
			marker = fmt.Sprintf("%d. ", num)
			num++
		}
		prefix := strings.Repeat("  ", depth) + marker
		indent := strings.Repeat(" ", len(prefix))
		for ic := c.FirstChild(); ic != nil; ic = ic.NextSibling() {
			if sub, ok := ic.(*ast.List); ok {
				out = append(out, r.list(sub, src, depth+1))
				continue
			}
			w := r.width - len(prefix)
			if w < 10 {
				w = 10
			}
			for i, line := range strings.Split(r.wrap(r.inline(ic, src), w), "\n") {
				if i == 0 {
					out = append(out, prefix+line)
				} else {
					out = append(out, indent+line)
				}
			}
			prefix = indent
		}
	}
	return strings.Join(out, "\n")
}

func (r renderer) inline(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch c := c.(type) {
		case *ast.Text:
			buf.Write(c.Segment.Value(src))
			if c.SoftLineBreak() {
				buf.WriteByte(' ')
			}
			if c.HardLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.String:
			buf.Write(c.Value)
		case *ast.Emphasis:
			if c.Level == 1 {
				buf.WriteString(r.italic.Render(r.inline(c, src)))
			} else {
				buf.WriteString(r.bold.Render(r.inline(c, src)))
			}
		case *ast.CodeSpan:
			buf.WriteString(r.bold.Render(r.inline(c, src)))
		case *ast.Link:
			buf.WriteString(r.inline(c, src))
			buf.WriteString(" ")
			buf.WriteString(r.muted.Render("(" + string(c.Destination) + ")"))
		default:
			buf.WriteString(r.inline(c, src))
		}
	}
	return buf.String()
}
