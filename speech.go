package synapse

import "context"

// SpeechToText transcribes audio to text.
type SpeechToText interface {
	SpeechToText(ctx context.Context, audio []byte) (string, error)
}

// TextToSpeech synthesizes speech audio from text.
type TextToSpeech interface {
	TextToSpeech(ctx context.Context, text string) ([]byte, error)
}
