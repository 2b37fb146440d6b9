package speech

import "context"

// Transcriber is the speech-to-text collaborator.
type Transcriber interface {
	Transcribe(ctx context.Context, req TranscribeRequest) (*TranscribeResponse, error)
}

type TranscribeRequest struct {
	// FilePath points at the staged audio file. Its extension tells the
	// collaborator which container it holds.
	FilePath string
	Format   string
	Language string
}

type TranscribeResponse struct {
	Text     string
	Language string
	Duration float64
}

// Source records where the effective utterance came from.
type Source string

const (
	SourceText          Source = "text"
	SourceTranscription Source = "transcription"
	SourceDefault       Source = "default"
)

// Utterance is the resolved user request. Degraded carries the reason a
// transcription attempt was abandoned, if any.
type Utterance struct {
	Text     string
	Source   Source
	Degraded error
}
