package extract

import (
	"reflect"
	"testing"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "two sentences",
			text: "Primera frase. Segunda frase.",
			want: []string{"Primera frase.", "Segunda frase."},
		},
		{
			name: "exclamation and question",
			text: "¡Qué escándalo! ¿Quién pagó? Nadie sabe.",
			want: []string{"¡Qué escándalo!", "¿Quién pagó?", "Nadie sabe."},
		},
		{
			name: "abbreviation",
			text: "Lo dijo el Sr. Pérez. Luego salió.",
			want: []string{"Lo dijo el Sr. Pérez.", "Luego salió."},
		},
		{
			name: "legal suffix",
			text: "Derwick Associates S.A. firmó. Fin.",
			want: []string{"Derwick Associates S.A. firmó.", "Fin."},
		},
		{
			name: "numeric listing",
			text: "Punto 3. Y sigue",
			want: []string{"Punto 3. Y sigue"},
		},
		{
			name: "lower case continuation",
			text: "Pagó 3.5 millones. en efectivo",
			want: []string{"Pagó 3.5 millones. en efectivo"},
		},
		{
			name: "closing quote",
			text: `Dijo "basta." Y se fue.`,
			want: []string{`Dijo "basta."`, "Y se fue."},
		},
		{
			name: "blank line",
			text: "Párrafo uno\n\nPárrafo dos",
			want: []string{"Párrafo uno", "Párrafo dos"},
		},
		{
			name: "empty",
			text: "   ",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, s := range splitSentences(tt.text) {
				got = append(got, tt.text[s.start:s.end])
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitSentences(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}
