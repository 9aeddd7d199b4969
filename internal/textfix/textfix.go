// Package textfix repairs text that was decoded with the wrong character
// encoding, the classic "cafÃ©" for "café" mojibake.
package textfix

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Single-byte encodings UTF-8 text is most often mis-decoded as, tried in order.
var suspects = []*charmap.Charmap{
	charmap.Windows1252,
	charmap.ISO8859_1,
}

// Normalize returns raw with mis-decoded UTF-8 sequences repaired.
// Text that needs no repair, or cannot be repaired, is returned unchanged.
// The result is a fixed point: Normalize(Normalize(s)) == Normalize(s).
func Normalize(raw string) string {
	if !utf8.ValidString(raw) {
		return raw
	}

	text := raw
	for {
		fixed, ok := repairOnce(text)
		if !ok {
			return text
		}
		text = fixed
	}
}

// repairOnce undoes one layer of mis-decoding. Every repair folds two or more
// runes into one, so the loop in Normalize terminates.
func repairOnce(text string) (string, bool) {
	if isASCII(text) {
		return "", false
	}

	for _, cm := range suspects {
		if candidate, ok := reinterpret(cm, text); ok {
			return candidate, true
		}
	}
	return "", false
}

// reinterpret maps every rune back to the byte cm would have decoded it from
// and replaces each run of those bytes that forms a multi-byte UTF-8 sequence
// with the rune it encodes. Runes outside cm, and runes that do not start such
// a sequence, are kept, so correct text next to mojibake survives.
func reinterpret(cm *charmap.Charmap, text string) (string, bool) {
	runes := []rune(text)
	raw := make([]byte, len(runes))
	mapped := make([]bool, len(runes))
	for i, r := range runes {
		raw[i], mapped[i] = cm.EncodeRune(r)
	}

	var b strings.Builder
	b.Grow(len(text))
	changed := false
	for i := 0; i < len(runes); {
		if n := sequenceAt(raw, mapped, i); n > 0 {
			r, _ := utf8.DecodeRune(raw[i : i+n])
			b.WriteRune(r)
			i += n
			changed = true
			continue
		}
		b.WriteRune(runes[i])
		i++
	}

	if !changed {
		return "", false
	}
	return b.String(), true
}

// sequenceAt returns the length of the multi-byte UTF-8 sequence starting at
// raw[i], or 0. Only bytes of mapped runes may take part.
func sequenceAt(raw []byte, mapped []bool, i int) int {
	if !mapped[i] || raw[i] < 0xC2 {
		return 0
	}

	end := i + utf8.UTFMax
	if end > len(raw) {
		end = len(raw)
	}
	for j := i + 1; j < end; j++ {
		if !mapped[j] {
			end = j
			break
		}
	}

	r, size := utf8.DecodeRune(raw[i:end])
	if r == utf8.RuneError || size < 2 {
		return 0
	}
	return size
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
