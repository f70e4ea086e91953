package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripDiacritics(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"Nicolás Maduro", "Nicolas Maduro"},
		{"Pérez", "Perez"},
		{"Muñoz", "Munoz"},
		{"São Paulo", "Sao Paulo"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, StripDiacritics(tt.in))
		})
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "nicolas maduro", Key("  Nicolás\n  MADURO "))
	assert.Equal(t, "", Key("   "))
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"petroleos", "de", "venezuela", "s", "a"}, Tokens("Petróleos de Venezuela, S.A."))
	assert.Empty(t, Tokens(""))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Juan Pérez", DisplayName(" Juan\n  Pérez "))
}
