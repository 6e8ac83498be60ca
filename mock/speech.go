package mock

import (
	"context"

	"github.com/fwojciec/synapse"
)

// Interface compliance checks.
var (
	_ synapse.SpeechToText = (*SpeechToText)(nil)
	_ synapse.TextToSpeech = (*TextToSpeech)(nil)
)

// SpeechToText is a test double for synapse.SpeechToText.
type SpeechToText struct {
	SpeechToTextFn func(ctx context.Context, audio []byte) (string, error)
}

// SpeechToText delegates to SpeechToTextFn.
func (s *SpeechToText) SpeechToText(ctx context.Context, audio []byte) (string, error) {
	return s.SpeechToTextFn(ctx, audio)
}

// TextToSpeech is a test double for synapse.TextToSpeech.
type TextToSpeech struct {
	TextToSpeechFn func(ctx context.Context, text string) ([]byte, error)
}

// TextToSpeech delegates to TextToSpeechFn.
func (s *TextToSpeech) TextToSpeech(ctx context.Context, text string) ([]byte, error) {
	return s.TextToSpeechFn(ctx, text)
}
