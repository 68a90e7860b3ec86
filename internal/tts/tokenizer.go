package tts

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxChunkChars is the longest text the translate endpoint accepts per request.
const MaxChunkChars = 100

const sentenceEnds = ".!?;:\n…。！？"

// Tokenize splits text into chunks of at most MaxChunkChars runes. It cuts
// after sentence punctuation first, then at the last space that fits, and
// hard-cuts words longer than the limit. Neighbouring sentences are packed
// into one chunk while they fit. Chunks made only of punctuation or spaces
// are dropped.
func Tokenize(text string) []string {
	var chunks []string
	var current string

	flush := func() {
		if speakable(current) {
			chunks = append(chunks, current)
		}
		current = ""
	}

	for _, sentence := range splitSentences(text) {
		for _, piece := range minimize(sentence, MaxChunkChars) {
			switch {
			case current == "":
				current = piece
			case utf8.RuneCountInString(current)+1+utf8.RuneCountInString(piece) <= MaxChunkChars:
				current += " " + piece
			default:
				flush()
				current = piece
			}
		}
	}
	flush()

	return chunks
}

func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder

	for _, r := range text {
		b.WriteRune(r)
		if strings.ContainsRune(sentenceEnds, r) {
			if s := strings.TrimSpace(b.String()); s != "" {
				sentences = append(sentences, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}

// minimize cuts s into pieces of at most max runes, preferring spaces.
func minimize(s string, max int) []string {
	var pieces []string

	for {
		s = strings.TrimSpace(s)
		runes := []rune(s)
		if len(runes) <= max {
			if s != "" {
				pieces = append(pieces, s)
			}
			return pieces
		}

		cut := max
		for i := max; i > 0; i-- {
			if unicode.IsSpace(runes[i]) {
				cut = i
				break
			}
		}

		pieces = append(pieces, strings.TrimSpace(string(runes[:cut])))
		s = string(runes[cut:])
	}
}

func speakable(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
