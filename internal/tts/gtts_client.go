package tts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/lexiqai/voice-reply/internal/config"
	"github.com/lexiqai/voice-reply/internal/resilience"
)

const gttsUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// GoogleTranslateClient implements Synthesizer with the Google Translate
// text-to-speech endpoint. Long text is fetched chunk by chunk and the MP3
// responses are concatenated in order.
type GoogleTranslateClient struct {
	host       string
	httpClient *http.Client
}

// NewGoogleTranslateClient creates a new Google Translate TTS client
func NewGoogleTranslateClient(cfg *config.Config, httpClient *http.Client) *GoogleTranslateClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &GoogleTranslateClient{
		host:       strings.TrimRight(cfg.GTTSHost, "/"),
		httpClient: httpClient,
	}
}

// Synthesize converts text to MP3 audio.
func (g *GoogleTranslateClient) Synthesize(ctx context.Context, text, lang string) ([]byte, error) {
	chunks := Tokenize(text)
	if len(chunks) == 0 {
		return nil, ErrNoText
	}

	var audio []byte
	for i, chunk := range chunks {
		data, err := g.fetch(ctx, chunk, lang, i, len(chunks))
		if err != nil {
			return nil, fmt.Errorf("tts chunk %d/%d: %w", i+1, len(chunks), err)
		}
		audio = append(audio, data...)
	}

	return audio, nil
}

func (g *GoogleTranslateClient) fetch(ctx context.Context, chunk, lang string, idx, total int) ([]byte, error) {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("q", chunk)
	q.Set("tl", lang)
	q.Set("total", strconv.Itoa(total))
	q.Set("idx", strconv.Itoa(idx))
	q.Set("textlen", strconv.Itoa(utf8.RuneCountInString(chunk)))
	q.Set("client", "tw-ob")
	q.Set("ttsspeed", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.host+"/translate_tts?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", gttsUserAgent)
	req.Header.Set("Referer", g.host+"/")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		if resilience.IsRetryableStatus(resp.StatusCode) {
			return nil, resilience.NewRetryableError(statusErr)
		}
		return nil, statusErr
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("tts endpoint returned empty audio")
	}

	return data, nil
}

func (g *GoogleTranslateClient) Name() string { return "gtts" }
