package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-reply/internal/audio"
	"github.com/lexiqai/voice-reply/internal/observability"
)

const (
	formField = "audio"

	// RMS below this over the first seconds of a 16-bit recording is
	// effectively silence.
	silenceThreshold = 100.0
	levelSamples     = 16000 * 5
)

// uploadError is a client-side problem with the submitted audio.
type uploadError struct {
	status int
	msg    string
}

func (e *uploadError) Error() string { return e.msg }

var errEmptyUpload = &uploadError{status: http.StatusBadRequest, msg: "uploaded audio is empty"}

// upload is a recording spooled to a temporary file.
type upload struct {
	Path   string
	Format audio.Format
	Size   int64
}

func (u *upload) Remove() {
	os.Remove(u.Path)
}

// receiveForm reads the audio field of a multipart form into a temp file.
func (h *Handler) receiveForm(w http.ResponseWriter, r *http.Request) (*upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	file, _, err := r.FormFile(formField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, tooLarge(h.maxUpload)
		}
		return nil, &uploadError{status: http.StatusBadRequest, msg: fmt.Sprintf("missing %q file field", formField)}
	}
	defer file.Close()

	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	return spool(file, h.maxUpload, zerolog.Ctx(r.Context()))
}

func tooLarge(limit int64) error {
	return &uploadError{
		status: http.StatusRequestEntityTooLarge,
		msg:    fmt.Sprintf("audio exceeds %d bytes", limit),
	}
}

// spool copies r into a temp file named after its sniffed format.
// Collaborators pick the decoder from the extension.
func spool(r io.Reader, limit int64, logger *zerolog.Logger) (*upload, error) {
	header := make([]byte, audio.SniffLen)
	n, err := io.ReadFull(r, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if n == 0 {
		return nil, errEmptyUpload
	}
	header = header[:n]
	format := audio.Sniff(header)

	f, err := os.CreateTemp("", "voice-upload-*"+format.Ext())
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	u := &upload{Path: f.Name(), Format: format}

	if _, err := f.Write(header); err != nil {
		f.Close()
		u.Remove()
		return nil, fmt.Errorf("failed to write upload: %w", err)
	}
	copied, err := io.Copy(f, io.LimitReader(r, limit-int64(n)+1))
	if err != nil {
		f.Close()
		u.Remove()
		return nil, fmt.Errorf("failed to write upload: %w", err)
	}
	u.Size = int64(n) + copied
	if u.Size > limit {
		f.Close()
		u.Remove()
		return nil, tooLarge(limit)
	}

	if format == audio.FormatWAV {
		inspectWAV(f, u.Size, logger)
	}
	if err := f.Close(); err != nil {
		u.Remove()
		return nil, fmt.Errorf("failed to write upload: %w", err)
	}

	observability.RecordUploadBytes(u.Size)
	logger.Debug().
		Str("format", string(format)).
		Str("content_type", format.ContentType()).
		Int64("bytes", u.Size).
		Msg("Upload received")

	return u, nil
}

// inspectWAV records the recording length and warns about silent uploads.
// Nothing here rejects the upload.
func inspectWAV(f *os.File, size int64, logger *zerolog.Logger) {
	info, err := audio.ParseWAV(f, size)
	if err != nil {
		logger.Debug().Err(err).Msg("Could not parse WAV header")
		return
	}
	observability.RecordInputDuration(info.Duration())

	if !info.IsPCM16() {
		return
	}
	level, err := audio.WAVLevel(f, info, levelSamples)
	if err == nil && audio.DetectSilence(level, silenceThreshold) {
		logger.Warn().
			Float64("rms", level).
			Dur("duration", info.Duration()).
			Msg("Uploaded recording appears silent")
	}
}
