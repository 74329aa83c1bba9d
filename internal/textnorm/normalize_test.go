package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "whitespace only", input: "   \t\n ", want: ""},
		{name: "accents", input: "Manguera Sintética", want: "manguera sintetica"},
		{name: "punctuation", input: "MANGUERA C/SELLO 45Kg. 38.1mm", want: "manguera c sello 45kg 38 1mm"},
		{name: "fractions", input: `Lanza 1 1/2"`, want: "lanza 1 1 2"},
		{name: "enye", input: "Caño de Acero", want: "cano de acero"},
		{name: "collapse spaces", input: "  a   b\t\tc  ", want: "a b c"},
		{name: "underscore", input: "VALVULA_TIPO_TEATRO", want: "valvula tipo teatro"},
		{name: "symbols only", input: "$#@!", want: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.input))
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{
		"Manguera CON SELLO IRAM 1 1/2″ (≈ 38.1 mm)",
		"Extintor Polvo ABC 5 Kg.",
		"Ærø Straße – Ñandú",
		"GABINETE P/ MATAFUEGO 10KG",
		"   ",
	}
	for _, input := range inputs {
		once := Normalize(input)
		assert.Equal(t, once, Normalize(once), "input %q", input)
	}
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"boquilla", "niebla", "r1"}, Tokens("Boquilla  NIEBLA R1"))
	assert.Nil(t, Tokens(" - "))
}
