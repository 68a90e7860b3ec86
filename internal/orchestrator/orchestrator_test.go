package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-reply/internal/config"
	"github.com/lexiqai/voice-reply/internal/llm"
	"github.com/lexiqai/voice-reply/internal/resilience"
	"github.com/lexiqai/voice-reply/internal/storage"
	"github.com/lexiqai/voice-reply/internal/stt"
)

var artifactPath = regexp.MustCompile(`^[0-9a-f]{32}_response\.mp3$`)

type stubTranscriber struct {
	text  string
	err   error
	calls int
	mu    sync.Mutex
}

func (s *stubTranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.text, s.err
}

func (s *stubTranscriber) Ping(ctx context.Context) error { return nil }
func (s *stubTranscriber) Name() string                   { return "stub-stt" }

type stubChat struct {
	reply    string
	errs     []error
	mu       sync.Mutex
	calls    int
	model    string
	messages []llm.Message
}

func (s *stubChat) Complete(ctx context.Context, model string, messages []llm.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.model = model
	s.messages = messages
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return "", err
	}
	return s.reply, nil
}

func (s *stubChat) Ping(ctx context.Context) error { return nil }

type stubSynthesizer struct {
	audio []byte
	err   error
	mu    sync.Mutex
	calls int
	text  string
	lang  string
}

func (s *stubSynthesizer) Synthesize(ctx context.Context, text, lang string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.text = text
	s.lang = lang
	return s.audio, s.err
}

func (s *stubSynthesizer) Name() string { return "stub-tts" }

type stubMirror struct {
	url string
	err error
}

func (s *stubMirror) Upload(ctx context.Context, a storage.Artifact) (string, error) {
	return s.url, s.err
}

type fixture struct {
	stt   *stubTranscriber
	chat  *stubChat
	tts   *stubSynthesizer
	store *storage.FileStore
	cfg   *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	return &fixture{
		stt:   &stubTranscriber{text: "What is the weather?"},
		chat:  &stubChat{reply: "It is sunny."},
		tts:   &stubSynthesizer{audio: []byte("ID3-mp3")},
		store: store,
		cfg: &config.Config{
			ChatAPIKey: "gsk-test",
			ChatModel:  "llama3-70b-8192",
		},
	}
}

func (f *fixture) deps() Deps {
	return Deps{
		Transcriber: f.stt,
		Chat:        f.chat,
		Synthesizer: f.tts,
		Store:       f.store,
		Logger:      zerolog.Nop(),
	}
}

func (f *fixture) artifacts(t *testing.T) []storage.Artifact {
	t.Helper()
	list, err := f.store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	return list
}

func TestProcess_HappyPath(t *testing.T) {
	f := newFixture(t)
	o := New(f.cfg, f.deps())

	result, err := o.Process(context.Background(), "/tmp/question.wav")
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if result.Transcript != "What is the weather?" {
		t.Errorf("Expected transcript, got %q", result.Transcript)
	}
	if result.Reply != "It is sunny." {
		t.Errorf("Expected reply, got %q", result.Reply)
	}
	if !artifactPath.MatchString(filepath.Base(result.AudioPath)) {
		t.Errorf("Unexpected audio file name %q", result.AudioPath)
	}
	if filepath.Dir(result.AudioPath) != f.store.Dir() {
		t.Errorf("Expected file in %s, got %s", f.store.Dir(), result.AudioPath)
	}

	data, err := os.ReadFile(result.AudioPath)
	if err != nil {
		t.Fatalf("Expected audio file to exist: %v", err)
	}
	if string(data) != "ID3-mp3" {
		t.Errorf("Unexpected audio contents %q", data)
	}
	if result.AudioURL != "" {
		t.Errorf("Expected no URL without a mirror, got %q", result.AudioURL)
	}
}

func TestProcess_ChatReceivesSingleUserMessage(t *testing.T) {
	f := newFixture(t)
	o := New(f.cfg, f.deps())

	if _, err := o.Process(context.Background(), "q.wav"); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if f.chat.model != "llama3-70b-8192" {
		t.Errorf("Expected fixed model, got %q", f.chat.model)
	}
	if len(f.chat.messages) != 1 {
		t.Fatalf("Expected exactly 1 message, got %d", len(f.chat.messages))
	}
	if m := f.chat.messages[0]; m.Role != llm.RoleUser || m.Content != "What is the weather?" {
		t.Errorf("Unexpected message %+v", m)
	}
}

func TestProcess_SynthesizerReceivesReplyInEnglish(t *testing.T) {
	f := newFixture(t)
	o := New(f.cfg, f.deps())

	if _, err := o.Process(context.Background(), "q.wav"); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if f.tts.text != "It is sunny." {
		t.Errorf("Expected synthesizer to receive the reply, got %q", f.tts.text)
	}
	if f.tts.lang != "en" {
		t.Errorf("Expected language en, got %q", f.tts.lang)
	}
}

func TestProcess_MissingAPIKey(t *testing.T) {
	f := newFixture(t)
	f.cfg.ChatAPIKey = ""
	o := New(f.cfg, f.deps())

	result, err := o.Process(context.Background(), "q.wav")
	if result != nil {
		t.Errorf("Expected nil result, got %+v", result)
	}
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("Expected ErrMissingAPIKey, got %v", err)
	}

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Key != "GROQ_API_KEY" {
		t.Errorf("Expected ConfigError for GROQ_API_KEY, got %v", err)
	}

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageChat || stageErr.Transcript != "What is the weather?" {
		t.Errorf("Unexpected stage error %+v", stageErr)
	}

	if f.chat.calls != 0 {
		t.Errorf("Expected chat not to be called, got %d calls", f.chat.calls)
	}
	if f.tts.calls != 0 {
		t.Errorf("Expected synthesizer not to be called, got %d calls", f.tts.calls)
	}
	if n := len(f.artifacts(t)); n != 0 {
		t.Errorf("Expected no audio files, got %d", n)
	}
}

func TestProcess_ConcurrentCallsUseDistinctFiles(t *testing.T) {
	f := newFixture(t)
	o := New(f.cfg, f.deps())

	const n = 10
	var wg sync.WaitGroup
	paths := make(chan string, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := o.Process(context.Background(), "q.wav")
			if err != nil {
				t.Errorf("Process failed: %v", err)
				return
			}
			paths <- result.AudioPath
		}()
	}
	wg.Wait()
	close(paths)

	seen := make(map[string]bool)
	for p := range paths {
		if seen[p] {
			t.Errorf("Duplicate output path %s", p)
		}
		seen[p] = true
	}
	if len(seen) != n {
		t.Errorf("Expected %d distinct files, got %d", n, len(seen))
	}
	if got := len(f.artifacts(t)); got != n {
		t.Errorf("Expected %d files on disk, got %d", n, got)
	}
}

func TestProcess_SynthesisFailure(t *testing.T) {
	f := newFixture(t)
	f.tts.err = errors.New("endpoint unreachable")
	o := New(f.cfg, f.deps())

	result, err := o.Process(context.Background(), "q.wav")
	if result != nil {
		t.Errorf("Expected nil result, got %+v", result)
	}

	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("Expected StageError, got %v", err)
	}
	if stageErr.Stage != StageSynthesize {
		t.Errorf("Expected synthesize stage, got %s", stageErr.Stage)
	}
	if stageErr.Transcript != "What is the weather?" {
		t.Errorf("Expected transcript on error, got %q", stageErr.Transcript)
	}
	if !errors.Is(err, f.tts.err) {
		t.Errorf("Expected underlying error to be wrapped, got %v", err)
	}
	if n := len(f.artifacts(t)); n != 0 {
		t.Errorf("Expected no audio files, got %d", n)
	}

	entries, _ := os.ReadDir(f.store.Dir())
	if len(entries) != 0 {
		t.Errorf("Expected empty output dir, found %d entries", len(entries))
	}
}

func TestProcess_EmptyAudioIsSynthesisFailure(t *testing.T) {
	f := newFixture(t)
	f.tts.audio = nil
	o := New(f.cfg, f.deps())

	_, err := o.Process(context.Background(), "q.wav")

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageSynthesize {
		t.Errorf("Expected synthesize StageError, got %v", err)
	}
}

func TestProcess_TranscriptionFailure(t *testing.T) {
	f := newFixture(t)
	f.stt.err = errors.New("model crashed")
	o := New(f.cfg, f.deps())

	_, err := o.Process(context.Background(), "q.wav")

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageTranscribe {
		t.Fatalf("Expected transcribe StageError, got %v", err)
	}
	if stageErr.Transcript != "" {
		t.Errorf("Expected no transcript, got %q", stageErr.Transcript)
	}
	if f.chat.calls != 0 || f.tts.calls != 0 {
		t.Errorf("Expected later stages to be skipped, chat=%d tts=%d", f.chat.calls, f.tts.calls)
	}
}

func TestProcess_ChatFailure(t *testing.T) {
	f := newFixture(t)
	f.chat.errs = []error{llm.ErrNoChoices}
	o := New(f.cfg, f.deps())

	_, err := o.Process(context.Background(), "q.wav")
	if !errors.Is(err, llm.ErrNoChoices) {
		t.Fatalf("Expected ErrNoChoices, got %v", err)
	}
	if f.tts.calls != 0 {
		t.Errorf("Expected synthesizer not to be called, got %d calls", f.tts.calls)
	}
}

func TestProcess_ChatGuardRetriesTransientErrors(t *testing.T) {
	f := newFixture(t)
	f.chat.errs = []error{resilience.NewRetryableError(errors.New("502 bad gateway"))}

	deps := f.deps()
	deps.ChatGuard = resilience.NewGuard(
		resilience.NewCircuitBreaker("chat", 5, time.Minute),
		&resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiplier: 1},
		time.Second,
	)
	o := New(f.cfg, deps)

	result, err := o.Process(context.Background(), "q.wav")
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if f.chat.calls != 2 {
		t.Errorf("Expected 2 chat attempts, got %d", f.chat.calls)
	}
	if result.Reply != "It is sunny." {
		t.Errorf("Unexpected reply %q", result.Reply)
	}
}

func TestProcess_RejectedInputDoesNotOpenSharedBreakers(t *testing.T) {
	f := newFixture(t)
	f.stt.err = stt.ErrEmptyTranscript

	deps := f.deps()
	deps.STTGuard = resilience.NewGuard(resilience.NewCircuitBreaker("stt", 5, time.Minute), nil, time.Second)
	deps.ChatGuard = resilience.NewGuard(resilience.NewCircuitBreaker("chat", 5, time.Minute), nil, time.Second)
	o := New(f.cfg, deps)

	for i := 0; i < 10; i++ {
		if _, err := o.Process(context.Background(), "silent.wav"); !errors.Is(err, stt.ErrEmptyTranscript) {
			t.Fatalf("Expected ErrEmptyTranscript on call %d, got %v", i, err)
		}
	}

	f.stt.err = nil
	f.chat.errs = make([]error, 10)
	for i := range f.chat.errs {
		f.chat.errs[i] = context.Canceled
	}
	for i := 0; i < 10; i++ {
		if _, err := o.Process(context.Background(), "q.wav"); !errors.Is(err, context.Canceled) {
			t.Fatalf("Expected context.Canceled on call %d, got %v", i, err)
		}
	}

	result, err := o.Process(context.Background(), "q.wav")
	if err != nil {
		t.Fatalf("Expected a valid request to succeed, got %v", err)
	}
	if result.Transcript != "What is the weather?" {
		t.Errorf("Unexpected transcript %q", result.Transcript)
	}
}

func TestProcess_Mirror(t *testing.T) {
	f := newFixture(t)
	deps := f.deps()
	deps.Mirror = &stubMirror{url: "https://s3.example.com/replies/x_response.mp3"}
	o := New(f.cfg, deps)

	result, err := o.Process(context.Background(), "q.wav")
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if result.AudioURL != "https://s3.example.com/replies/x_response.mp3" {
		t.Errorf("Unexpected URL %q", result.AudioURL)
	}
}

func TestProcess_MirrorFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	deps := f.deps()
	deps.Mirror = &stubMirror{err: errors.New("bucket gone")}
	o := New(f.cfg, deps)

	result, err := o.Process(context.Background(), "q.wav")
	if err != nil {
		t.Fatalf("Expected mirror failure to be ignored, got %v", err)
	}
	if result.AudioURL != "" {
		t.Errorf("Expected empty URL, got %q", result.AudioURL)
	}
	if _, err := os.Stat(result.AudioPath); err != nil {
		t.Errorf("Expected local file to exist: %v", err)
	}
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrMissingAPIKey, "config"},
		{context.DeadlineExceeded, "timeout"},
		{context.Canceled, "canceled"},
		{resilience.ErrCircuitOpen, "circuit_open"},
		{errors.New("boom"), "collaborator"},
	}

	for _, tt := range tests {
		if got := errorType(tt.err); got != tt.want {
			t.Errorf("errorType(%v): expected %s, got %s", tt.err, tt.want, got)
		}
	}
}
