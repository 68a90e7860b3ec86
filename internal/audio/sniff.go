package audio

import "bytes"

// Format identifies an uploaded recording's container by its magic bytes.
type Format string

const (
	FormatWAV     Format = "wav"
	FormatMP3     Format = "mp3"
	FormatOGG     Format = "ogg"
	FormatFLAC    Format = "flac"
	FormatWebM    Format = "webm"
	FormatM4A     Format = "m4a"
	FormatUnknown Format = "bin"
)

// SniffLen is the number of header bytes Sniff needs.
const SniffLen = 12

// Sniff detects the container format from the first bytes of a file.
// Browsers record webm or ogg, phones usually m4a, so the extension a
// client sends is not trusted.
func Sniff(header []byte) Format {
	switch {
	case len(header) >= 12 && bytes.Equal(header[0:4], []byte("RIFF")) && bytes.Equal(header[8:12], []byte("WAVE")):
		return FormatWAV
	case bytes.HasPrefix(header, []byte("ID3")):
		return FormatMP3
	case len(header) >= 2 && header[0] == 0xFF && header[1]&0xE0 == 0xE0:
		// MPEG audio frame sync
		return FormatMP3
	case bytes.HasPrefix(header, []byte("OggS")):
		return FormatOGG
	case bytes.HasPrefix(header, []byte("fLaC")):
		return FormatFLAC
	case bytes.HasPrefix(header, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return FormatWebM
	case len(header) >= 8 && bytes.Equal(header[4:8], []byte("ftyp")):
		return FormatM4A
	}
	return FormatUnknown
}

// Ext returns the file extension, including the dot, for the format.
func (f Format) Ext() string {
	return "." + string(f)
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatWAV:
		return "audio/wav"
	case FormatMP3:
		return "audio/mpeg"
	case FormatOGG:
		return "audio/ogg"
	case FormatFLAC:
		return "audio/flac"
	case FormatWebM:
		return "audio/webm"
	case FormatM4A:
		return "audio/mp4"
	}
	return "application/octet-stream"
}
