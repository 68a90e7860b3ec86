package orchestrator

import "fmt"

// Pipeline stages, in the order they run.
const (
	StageTranscribe = "transcribe"
	StageChat       = "chat"
	StageSynthesize = "synthesize"
	StageStore      = "store"
)

// ConfigError reports a setting the pipeline cannot run without.
type ConfigError struct {
	Key     string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s %s", e.Key, e.Message)
}

// ErrMissingAPIKey is returned before any chat call when no chat API key is set.
var ErrMissingAPIKey = &ConfigError{Key: "GROQ_API_KEY", Message: "is not set"}

// StageError wraps the failure of one pipeline stage. Transcript is set when
// the failure happened after speech recognition succeeded.
type StageError struct {
	Stage      string
	Transcript string
	Err        error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
