package synapse

import "fmt"

// Convention is the format a model reply uses to request tools.
type Convention string

const (
	// ConventionNative uses provider tool-call blocks with call ids.
	ConventionNative Convention = "native"
	// ConventionMarker uses a fenced json block embedded in reply text.
	ConventionMarker Convention = "marker"
)

// ParseConvention maps a config value to a Convention.
func ParseConvention(s string) (Convention, error) {
	switch Convention(s) {
	case ConventionNative, "":
		return ConventionNative, nil
	case ConventionMarker:
		return ConventionMarker, nil
	}
	return "", fmt.Errorf("unknown calling convention %q: %w", s, ErrValidation)
}

// Extractor decides whether a reply requests tools. A returned error
// wraps ErrDecode and means a request was present but unreadable.
type Extractor interface {
	Convention() Convention
	Extract(msg AssistantMessage) ([]ToolCallBlock, error)
}

// NativeExtractor returns the tool-call blocks of a reply in order.
type NativeExtractor struct{}

// Convention returns ConventionNative.
func (NativeExtractor) Convention() Convention { return ConventionNative }

// Extract returns every ToolCallBlock in msg.
func (NativeExtractor) Extract(msg AssistantMessage) ([]ToolCallBlock, error) {
	var calls []ToolCallBlock
	for _, block := range msg.Content {
		if tc, ok := block.(ToolCallBlock); ok {
			calls = append(calls, tc)
		}
	}
	return calls, nil
}

var _ Extractor = NativeExtractor{}
