// Package goldmark reads model replies as markdown using goldmark. It
// extracts embedded tool-call markers and renders replies for the terminal.
package goldmark

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/fwojciec/synapse"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkerExtractor implements the embedded-marker calling convention: a
// reply requests a tool by containing a fenced json block of the form
// {"name": "...", "args": {...}}. Only the first such block counts.
type MarkerExtractor struct{}

var _ synapse.Extractor = MarkerExtractor{}

// Convention returns ConventionMarker.
func (MarkerExtractor) Convention() synapse.Convention { return synapse.ConventionMarker }

// Extract returns at most one tool call. Calls carry no id.
func (MarkerExtractor) Extract(msg synapse.AssistantMessage) ([]synapse.ToolCallBlock, error) {
	body, ok := firstJSONFence([]byte(msg.Text()))
	if !ok {
		return nil, nil
	}
	var marker struct {
		Name any             `json:"name"`
		Args json.RawMessage `json:"args"`
	}
	if err := json.Unmarshal(body, &marker); err != nil {
		return nil, fmt.Errorf("%w: %v", synapse.ErrDecode, err)
	}
	name, _ := marker.Name.(string)
	if name == "" {
		return nil, fmt.Errorf("%w: missing tool name", synapse.ErrDecode)
	}
	args := marker.Args
	if len(bytes.TrimSpace(args)) == 0 || string(args) == "null" {
		args = json.RawMessage(`{}`)
	}
	return []synapse.ToolCallBlock{{Name: name, Arguments: args}}, nil
}

// inlineFence matches a json fence anywhere in the text, including one
// opened mid-sentence or closed on the same line, which CommonMark reads
// as a code span.
var inlineFence = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

// firstJSONFence returns the body of the first closed fenced code block
// whose info string is json, falling back to inlineFence when the markdown
// holds no such block.
func firstJSONFence(source []byte) ([]byte, bool) {
	if !bytes.Contains(source, []byte("```")) {
		return nil, false
	}
	if body, ok := firstClosedFence(source); ok {
		return body, true
	}
	m := inlineFence.FindSubmatch(source)
	if m == nil {
		return nil, false
	}
	return m[1], true
}

func firstClosedFence(source []byte) ([]byte, bool) {
	doc := goldmark.DefaultParser().Parse(text.NewReader(source))

	var body []byte
	found := false
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fence, ok := n.(*ast.FencedCodeBlock)
		if !ok || string(fence.Language(source)) != "json" {
			return ast.WalkContinue, nil
		}
		var buf bytes.Buffer
		end := 0
		if fence.Info != nil {
			end = fence.Info.Segment.Stop
		}
		lines := fence.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(source))
			end = seg.Stop
		}
		if !closedAt(source, end) {
			return ast.WalkContinue, nil
		}
		body = buf.Bytes()
		found = true
		return ast.WalkStop, nil
	})
	return body, found
}

// closedAt reports whether the line after offset is a closing fence.
func closedAt(source []byte, offset int) bool {
	rest := source[offset:]
	if i := bytes.IndexByte(rest, '\n'); i >= 0 && offset > 0 && source[offset-1] != '\n' {
		rest = rest[i+1:]
	}
	if i := bytes.IndexByte(rest, '\n'); i >= 0 {
		rest = rest[:i]
	}
	return bytes.HasPrefix(bytes.TrimLeft(rest, " \t>"), []byte("```"))
}
