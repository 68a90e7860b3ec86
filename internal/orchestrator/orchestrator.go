package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-reply/internal/config"
	"github.com/lexiqai/voice-reply/internal/llm"
	"github.com/lexiqai/voice-reply/internal/observability"
	"github.com/lexiqai/voice-reply/internal/resilience"
	"github.com/lexiqai/voice-reply/internal/storage"
	"github.com/lexiqai/voice-reply/internal/stt"
	"github.com/lexiqai/voice-reply/internal/tts"
)

// ReplyLanguage is the language code every reply is spoken in.
const ReplyLanguage = "en"

// Result is the outcome of one successful pipeline run.
type Result struct {
	Transcript string `json:"transcript"`
	Reply      string `json:"reply"`
	AudioPath  string `json:"audio_path"`
	AudioURL   string `json:"audio_url,omitempty"`
}

// Store persists synthesized audio.
type Store interface {
	Save(ctx context.Context, data []byte) (storage.Artifact, error)
}

// Mirror copies a stored artifact elsewhere and returns where it can be fetched.
type Mirror interface {
	Upload(ctx context.Context, a storage.Artifact) (string, error)
}

// Deps are the collaborators a pipeline runs against. Guards and Mirror are
// optional; a nil guard calls the collaborator directly.
type Deps struct {
	Transcriber stt.Transcriber
	Chat        llm.ChatCompleter
	Synthesizer tts.Synthesizer
	Store       Store
	Mirror      Mirror

	STTGuard  *resilience.Guard
	ChatGuard *resilience.Guard
	TTSGuard  *resilience.Guard

	Logger zerolog.Logger
}

// Orchestrator turns a recorded question into a spoken reply.
// It holds no mutable state and is safe for concurrent use.
type Orchestrator struct {
	apiKey string
	model  string
	deps   Deps
}

// New creates an orchestrator from startup configuration and collaborators.
func New(cfg *config.Config, deps Deps) *Orchestrator {
	return &Orchestrator{
		apiKey: cfg.ChatAPIKey,
		model:  cfg.ChatModel,
		deps:   deps,
	}
}

// Process transcribes the audio file at audioPath, asks the chat model for a
// reply and stores the spoken reply as an MP3. The first failing stage aborts
// the run and is reported as a *StageError; no partial result is returned.
func (o *Orchestrator) Process(ctx context.Context, audioPath string) (*Result, error) {
	metrics := observability.NewRequestMetrics()
	logger := o.loggerFrom(ctx).With().Str("audio", filepath.Base(audioPath)).Logger()

	result, err := o.process(ctx, metrics, logger, audioPath)
	metrics.RecordRequestEnd(err == nil)
	if err != nil {
		var stageErr *StageError
		if errors.As(err, &stageErr) {
			metrics.RecordError(errorType(stageErr.Err), stageErr.Stage)
		}
		return nil, err
	}

	logger.Info().
		Int("transcript_chars", len(result.Transcript)).
		Int("reply_chars", len(result.Reply)).
		Str("artifact", filepath.Base(result.AudioPath)).
		Msg("Voice reply generated")

	return result, nil
}

func (o *Orchestrator) process(ctx context.Context, metrics *observability.Metrics, logger zerolog.Logger, audioPath string) (*Result, error) {
	// Step 1: speech to text
	var transcript string
	err := o.stage(ctx, metrics, StageTranscribe, o.deps.STTGuard, func(ctx context.Context) error {
		var err error
		transcript, err = o.deps.Transcriber.Transcribe(ctx, audioPath)
		return err
	})
	if err != nil {
		return nil, &StageError{Stage: StageTranscribe, Err: fmt.Errorf("%s: %w", o.deps.Transcriber.Name(), err)}
	}
	logger.Debug().Str("transcript", transcript).Msg("Transcribed audio")

	// Step 2: chat completion
	if o.apiKey == "" {
		return nil, &StageError{Stage: StageChat, Transcript: transcript, Err: ErrMissingAPIKey}
	}

	messages := []llm.Message{{Role: llm.RoleUser, Content: transcript}}
	var reply string
	err = o.stage(ctx, metrics, StageChat, o.deps.ChatGuard, func(ctx context.Context) error {
		var err error
		reply, err = o.deps.Chat.Complete(ctx, o.model, messages)
		return err
	})
	if err != nil {
		return nil, &StageError{Stage: StageChat, Transcript: transcript, Err: err}
	}
	logger.Debug().Str("reply", reply).Msg("Chat completion received")

	// Step 3: text to speech
	var speech []byte
	err = o.stage(ctx, metrics, StageSynthesize, o.deps.TTSGuard, func(ctx context.Context) error {
		var err error
		speech, err = o.deps.Synthesizer.Synthesize(ctx, reply, ReplyLanguage)
		if err == nil && len(speech) == 0 {
			err = fmt.Errorf("synthesizer returned no audio")
		}
		return err
	})
	if err != nil {
		return nil, &StageError{Stage: StageSynthesize, Transcript: transcript, Err: fmt.Errorf("%s: %w", o.deps.Synthesizer.Name(), err)}
	}
	metrics.RecordAudioBytes("output", int64(len(speech)))

	var artifact storage.Artifact
	err = o.stage(ctx, metrics, StageStore, nil, func(ctx context.Context) error {
		var err error
		artifact, err = o.deps.Store.Save(ctx, speech)
		return err
	})
	if err != nil {
		return nil, &StageError{Stage: StageStore, Transcript: transcript, Err: err}
	}

	result := &Result{
		Transcript: transcript,
		Reply:      reply,
		AudioPath:  artifact.Path,
	}

	if o.deps.Mirror != nil {
		url, err := o.deps.Mirror.Upload(ctx, artifact)
		if err != nil {
			// The local file is authoritative
			metrics.RecordError("mirror", StageStore)
			logger.Warn().Err(err).Str("artifact", artifact.Name).Msg("Failed to mirror reply audio")
		} else {
			result.AudioURL = url
		}
	}

	return result, nil
}

func (o *Orchestrator) stage(ctx context.Context, metrics *observability.Metrics, name string, guard *resilience.Guard, fn func(ctx context.Context) error) error {
	done := metrics.StartStage(name)

	var err error
	if guard != nil {
		err = guard.Do(ctx, fn)
	} else {
		err = fn(ctx)
	}

	done(err == nil)
	return err
}

// loggerFrom prefers the request-scoped logger carried by ctx.
func (o *Orchestrator) loggerFrom(ctx context.Context) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return *l
	}
	return o.deps.Logger
}

func errorType(err error) string {
	var cfgErr *ConfigError
	switch {
	case errors.As(err, &cfgErr):
		return "config"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "circuit_open"
	}
	return "collaborator"
}
