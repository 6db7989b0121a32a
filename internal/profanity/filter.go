// Package profanity implements the best-effort text filter applied to post
// text before it is accepted. Matching is substring based over a static term
// list; it is a heuristic, not a security boundary.
package profanity

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultTerms is the disallowed term list. It intentionally includes some
// topic words that are not profanity; changing that is an operator decision.
var DefaultTerms = []string{
	"fuck", "fucking", "fucked", "fucker", "fuckers",
	"shit", "shitting", "shitted", "shitter",
	"damn", "damned", "dammit",
	"hell", "hells",
	"ass", "asses", "asshole", "assholes",
	"bitch", "bitches", "bitching",
	"bastard", "bastards",
	"crap", "crappy",
	"piss", "pissing", "pissed",
	"dick", "dicks", "dickhead",
	"cock", "cocks",
	"pussy", "pussies",
	"slut", "sluts", "slutty",
	"whore", "whores",
	"nigger", "niggers", "nigga", "niggas",
	"retard", "retarded", "retards",
	"gay", "gays",
	"lesbian", "lesbians",
	"homo", "homos",
}

const rejectionMessage = "Your post contains inappropriate language. Please revise your message."

// substitution is one leet-speak character class. Classes are applied one at
// a time; mixed substitutions inside a single occurrence are not generated.
type substitution struct {
	letter string
	with   []string
}

var leet = []substitution{
	{"a", []string{"a", "4", "@"}},
	{"e", []string{"e", "3"}},
	{"i", []string{"i", "1", "!"}},
	{"o", []string{"o", "0"}},
	{"s", []string{"s", "5", "$"}},
	{"t", []string{"t", "7"}},
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]`)

// Verdict is the result of classifying a piece of text.
type Verdict struct {
	Blocked bool
	// Term is the list entry that matched, empty when not blocked.
	Term string
}

type term struct {
	word     string
	variants []string
	literal  *regexp.Regexp
}

// Filter is immutable after construction and safe for concurrent use.
type Filter struct {
	terms []term
	mask  rune
}

// New builds a filter over the given terms. Terms are lowercased.
func New(terms ...string) *Filter {
	f := &Filter{mask: '*'}
	for _, w := range terms {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		f.terms = append(f.terms, term{
			word:     w,
			variants: variants(w),
			literal:  literalPattern(w),
		})
	}
	return f
}

// literalPattern matches w with each letter in either its lower or upper
// form. Unlike (?i), it does not pull in Unicode fold equivalents such as
// U+017F for "s" or U+212A for "k".
func literalPattern(w string) *regexp.Regexp {
	var b strings.Builder
	for _, r := range w {
		up := unicode.ToUpper(r)
		if up == r {
			b.WriteString(regexp.QuoteMeta(string(r)))
			continue
		}
		b.WriteString("[" + string(r) + string(up) + "]")
	}
	return regexp.MustCompile(b.String())
}

// Default returns a filter over DefaultTerms.
func Default() *Filter {
	return New(DefaultTerms...)
}

// WithMask returns a copy of f that redacts with r instead of '*'.
func (f *Filter) WithMask(r rune) *Filter {
	cp := *f
	cp.mask = r
	return &cp
}

func variants(word string) []string {
	out := []string{word}
	for _, sub := range leet {
		if !strings.Contains(word, sub.letter) {
			continue
		}
		for _, r := range sub.with {
			out = append(out, strings.ReplaceAll(word, sub.letter, r))
		}
	}
	return out
}

// Classify reports whether text contains a disallowed term, either
// verbatim, with non-alphanumerics removed, or as a single-class leet
// variant.
func (f *Filter) Classify(text string) Verdict {
	if text == "" {
		return Verdict{}
	}
	lower := strings.ToLower(text)
	stripped := nonAlnum.ReplaceAllString(lower, "")

	for _, t := range f.terms {
		for _, v := range t.variants {
			if strings.Contains(lower, v) || strings.Contains(stripped, v) {
				return Verdict{Blocked: true, Term: t.word}
			}
		}
	}
	return Verdict{}
}

// Contains is shorthand for Classify(text).Blocked.
func (f *Filter) Contains(text string) bool {
	return f.Classify(text).Blocked
}

// Redact masks every literal occurrence of a term in upper, lower or mixed
// case. Leet variants and look-alike runes are left untouched.
func (f *Filter) Redact(text string) string {
	if text == "" {
		return text
	}
	mask := string(f.mask)
	out := text
	for _, t := range f.terms {
		out = t.literal.ReplaceAllStringFunc(out, func(m string) string {
			return strings.Repeat(mask, utf8.RuneCountInString(m))
		})
	}
	return out
}

// Message is the user-facing text for a rejected post.
func (f *Filter) Message() string {
	return rejectionMessage
}
