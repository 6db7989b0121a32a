package profanity

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	f := Default()

	tests := []struct {
		name    string
		text    string
		blocked bool
	}{
		{"empty", "", false},
		{"clean", "Found a blue umbrella near the library", false},
		{"verbatim", "this is shit", true},
		{"uppercase", "THIS IS SHIT", true},
		{"punctuation inside", "s.h.i.t happens", true},
		{"spaces inside", "f u c k", true},
		{"leet a", "you b4st4rd", true},
		{"leet at sign", "b@st@rd", true},
		{"leet s dollar", "a$$", true},
		{"leet i bang", "sh!t", true},
		{"leet o zero", "wh0re", true},
		{"leet t seven", "bas7ard", true},
		{"mixed classes not detected", "b4$tard", false},
		{"substring false positive", "hello there", true},
		{"topic word kept", "gay pride flag found", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.blocked, f.Classify(tt.text).Blocked)
		})
	}
}

func TestClassify_ReportsTerm(t *testing.T) {
	v := Default().Classify("what the dickhead")
	assert.True(t, v.Blocked)
	assert.Equal(t, "dick", v.Term)
}

func TestClassify_EveryTermVerbatim(t *testing.T) {
	f := Default()
	for _, w := range DefaultTerms {
		assert.True(t, f.Contains("prefix "+w+" suffix"), w)
		assert.True(t, f.Contains(strings.ToUpper(w)), w)
	}
}

func TestClassify_EverySingleClassVariant(t *testing.T) {
	f := Default()
	for _, w := range DefaultTerms {
		for _, v := range variants(w) {
			assert.True(t, f.Contains("x "+v+" x"), "%s via %s", w, v)
		}
	}
}

func TestVariants(t *testing.T) {
	assert.Equal(t, []string{"ass", "ass", "4ss", "@ss", "ass", "a55", "a$$"}, variants("ass"))
	assert.Equal(t, []string{"crap", "crap", "cr4p", "cr@p"}, variants("crap"))
}

func TestRedact(t *testing.T) {
	f := Default()

	assert.Equal(t, "", f.Redact(""))
	assert.Equal(t, "this is ****", f.Redact("this is shit"))
	assert.Equal(t, "**** and ****", f.Redact("Shit and CRAP"))
	assert.Equal(t, "****o", f.Redact("hello"))
	assert.Equal(t, "sh!t stays", f.Redact("sh!t stays"), "variants are not redacted")
}

func TestRedact_OnlySimpleCase(t *testing.T) {
	f := Default()

	assert.Equal(t, "***", f.Redact("ASS"))
	assert.Equal(t, "***", f.Redact("aSs"))
	// U+017F folds to "s" under (?i) but is not an "s"
	assert.Equal(t, "a\u017f\u017f", f.Redact("a\u017f\u017f"))
	assert.Equal(t, "\u212aill", New("kill").Redact("\u212aill"))
	assert.Equal(t, "****", New("kill").Redact("KILL"))
}

func TestRedact_PreservesLength(t *testing.T) {
	f := Default()
	for _, in := range []string{"this is shit", "FUCKING hell", "bastards everywhere", "a lesbian café"} {
		out := f.Redact(in)
		assert.Equal(t, utf8.RuneCountInString(in), utf8.RuneCountInString(out), in)
		assert.NotEqual(t, in, out)
	}
}

func TestWithMask(t *testing.T) {
	f := Default().WithMask('#')
	assert.Equal(t, "####", f.Redact("damn"))
	assert.Equal(t, "****", Default().Redact("damn"))
}

func TestNew_SkipsBlankTerms(t *testing.T) {
	f := New("  ", "Foo")
	assert.True(t, f.Contains("fOo"))
	assert.False(t, f.Contains("bar"))
	assert.NotEmpty(t, f.Message())
}
