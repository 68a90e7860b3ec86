package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

// ErrNotWAV is returned when the input has no RIFF/WAVE header.
var ErrNotWAV = errors.New("not a WAV file")

const wavFormatPCM = 1

// WAVInfo holds the parts of a WAV header needed to measure the recording.
type WAVInfo struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BitsPerSample uint16
	DataOffset    int64
	DataSize      int64
}

// Duration returns the playback length of the data chunk.
func (w WAVInfo) Duration() time.Duration {
	if w.ByteRate == 0 {
		return 0
	}
	return time.Duration(float64(w.DataSize) / float64(w.ByteRate) * float64(time.Second))
}

// IsPCM16 reports whether samples are 16-bit linear PCM.
func (w WAVInfo) IsPCM16() bool {
	return w.AudioFormat == wavFormatPCM && w.BitsPerSample == 16
}

// ParseWAV walks the RIFF chunks of a file of the given size until it has
// seen both the fmt and data chunks.
func ParseWAV(r io.ReaderAt, size int64) (WAVInfo, error) {
	var info WAVInfo

	header := make([]byte, 12)
	if _, err := r.ReadAt(header, 0); err != nil {
		return info, ErrNotWAV
	}
	if Sniff(header) != FormatWAV {
		return info, ErrNotWAV
	}

	var haveFmt, haveData bool
	offset := int64(12)
	chunk := make([]byte, 8)

	for offset+8 <= size && !(haveFmt && haveData) {
		if _, err := r.ReadAt(chunk, offset); err != nil {
			return info, fmt.Errorf("failed to read chunk header: %w", err)
		}
		id := string(chunk[0:4])
		chunkSize := int64(binary.LittleEndian.Uint32(chunk[4:8]))
		body := offset + 8

		switch id {
		case "fmt ":
			if chunkSize < 16 {
				return info, fmt.Errorf("fmt chunk too short: %d bytes", chunkSize)
			}
			f := make([]byte, 16)
			if _, err := r.ReadAt(f, body); err != nil {
				return info, fmt.Errorf("failed to read fmt chunk: %w", err)
			}
			info.AudioFormat = binary.LittleEndian.Uint16(f[0:2])
			info.Channels = binary.LittleEndian.Uint16(f[2:4])
			info.SampleRate = binary.LittleEndian.Uint32(f[4:8])
			info.ByteRate = binary.LittleEndian.Uint32(f[8:12])
			info.BitsPerSample = binary.LittleEndian.Uint16(f[14:16])
			haveFmt = true
		case "data":
			info.DataOffset = body
			// Streaming recorders leave the size at 0 or 0xFFFFFFFF.
			if chunkSize == 0 || body+chunkSize > size {
				chunkSize = size - body
			}
			info.DataSize = chunkSize
			haveData = true
		}

		// Chunks are word aligned
		offset = body + chunkSize + chunkSize%2
	}

	if !haveFmt || !haveData {
		return info, fmt.Errorf("incomplete WAV header")
	}
	return info, nil
}

// WAVLevel returns the RMS level of up to maxSamples 16-bit samples from
// the start of the data chunk. Only 16-bit PCM is measured.
func WAVLevel(r io.ReaderAt, info WAVInfo, maxSamples int) (float64, error) {
	if !info.IsPCM16() {
		return 0, fmt.Errorf("unsupported sample format %d/%d-bit", info.AudioFormat, info.BitsPerSample)
	}

	n := info.DataSize
	if limit := int64(maxSamples) * 2; maxSamples > 0 && n > limit {
		n = limit
	}
	n -= n % 2

	buf := make([]byte, n)
	read, err := r.ReadAt(buf, info.DataOffset)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("failed to read samples: %w", err)
	}
	buf = buf[:read-read%2]

	samples := make([]int16, len(buf)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
	}
	return CalculateRMS(samples), nil
}

// CalculateRMS calculates the root mean square of audio samples
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}

	return math.Sqrt(sum / float64(len(samples)))
}

// DetectSilence reports whether an RMS level is below threshold
func DetectSilence(level, threshold float64) bool {
	return level < threshold
}

// WAVDuration returns the playback length of a RIFF/WAVE file.
func WAVDuration(r io.ReaderAt, size int64) (time.Duration, error) {
	info, err := ParseWAV(r, size)
	if err != nil {
		return 0, err
	}
	return info.Duration(), nil
}
