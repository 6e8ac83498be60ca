// Package gemini implements [synapse.Provider] for the Google Gemini API on
// top of the google.golang.org/genai SDK.
package gemini

const (
	defaultModel     = "gemini-2.5-flash"
	defaultMaxTokens = 8192
)
