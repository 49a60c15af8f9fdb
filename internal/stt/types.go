package stt

// TranscriptionResult represents one event from the streaming recognizer
type TranscriptionResult struct {
	// Text is the transcribed text; empty for activity events
	Text string

	// IsFinal indicates if this is a final transcription (true) or interim (false)
	IsFinal bool

	// SpeechStarted marks a voice activity event with no text
	SpeechStarted bool

	// Confidence is the confidence score (0.0 to 1.0) if available
	Confidence float64

	// StartTime is the start time of the utterance in seconds
	StartTime float64

	// Duration is the duration of the utterance in seconds
	Duration float64
}

// Transcriber is the interface for streaming speech-to-text clients
type Transcriber interface {
	// Start opens a transcription session
	Start() error

	// SendAudio sends a linear16 audio chunk to the STT service
	SendAudio(audioData []byte) error

	// Results returns the channel of transcription events
	Results() <-chan *TranscriptionResult

	// Stop finishes the transcription session
	Stop() error

	// Close closes the client and cleans up resources
	Close() error
}
