package textfix

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"ascii untouched", "hello world", "hello world"},
		{"empty", "", ""},
		{"correct accents untouched", "café naïve", "café naïve"},
		{"latin1 mojibake", "cafÃ©", "café"},
		{"cp1252 quote mojibake", "itâ€™s fine", "it’s fine"},
		{"double mojibake", "cafÃƒÂ©", "café"},
		{"emoji untouched", "to the moon 🚀", "to the moon 🚀"},
		{"accent next to mojibake", "café itâ€™s", "café it’s"},
		{"emoji next to mojibake", "🚀 itâ€™s cafÃ©", "🚀 it’s café"},
		{"cjk next to mojibake", "日本語 cafÃ©", "日本語 café"},
		{"double mojibake next to accent", "naïve cafÃƒÂ©", "naïve café"},
		{"lone lead byte kept", "Ã and Ã©", "Ã and é"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"plain",
		"cafÃ©",
		"itâ€™s",
		"café itâ€™s",
		"🚀 cafÃƒÂ©",
		"Ã",
		"日本語",
		string([]byte{0xff, 0xfe, 0x41}),
		string([]byte{0xc3}),
	}

	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestNormalize_InvalidUTF8ReturnedUnchanged(t *testing.T) {
	raw := string([]byte{0x80, 0x81, 'a', 0xfe})
	assert.NotPanics(t, func() { Normalize(raw) })
	assert.Equal(t, raw, Normalize(raw))
}
