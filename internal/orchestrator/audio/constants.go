// Package audio turns microphone capture into a live transcription provider.
package audio

// Audio processing constants
const (
	// Bytes per sample sent to the transcription service (16-bit PCM)
	PCM16ByteSize = 2

	// RMS level below which leading audio counts as silence
	DefaultSilenceRMS = 0.01

	// Transcripts buffered per subscription before the oldest is dropped
	TranscriptBuffer = 8
)
