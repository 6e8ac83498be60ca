package agent

import (
	"fmt"
	"strings"

	"github.com/fwojciec/synapse"
)

// MarkerPrompt describes the tools and the fenced-json request format to a
// model that has no native tool support.
func MarkerPrompt(tools []synapse.ToolSpec) string {
	if len(tools) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("You have access to these tools:\n")
	for i, t := range tools {
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, t.Name, t.Description)
		fmt.Fprintf(&b, "   Signature: {\"name\": %q, \"args\": {%s}}\n", t.Name, signatureArgs(t.Parameters))
	}
	b.WriteString("\nWhen you need one of these tools, respond ONLY with a JSON block inside ")
	b.WriteString("triple-backtick fences (```json ... ```). The JSON must have the keys \"name\" and \"args\". ")
	b.WriteString("Request one tool per reply. After you receive the <tool_result>, decide whether another ")
	b.WriteString("tool call is needed or respond normally to the trader.")
	return b.String()
}

func signatureArgs(params []synapse.Parameter) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		opt := ""
		if !p.Required {
			opt = ", optional"
		}
		parts = append(parts, fmt.Sprintf("%q: <%s%s>", p.Name, p.Type, opt))
	}
	return strings.Join(parts, ", ")
}

func joinPrompt(base, extra string) string {
	switch {
	case extra == "":
		return base
	case base == "":
		return extra
	}
	return base + "\n\n" + extra
}
