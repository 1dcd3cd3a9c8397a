// Package redact replaces personally identifiable information in transcripts
// with fixed category tokens.
package redact

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	TokenEmail = "<EMAIL>"
	TokenPhone = "<PHONE>"
	TokenCard  = "<CARD>"
	TokenName  = "<NAME>"
)

type detector struct {
	label string
	token string
	re    *regexp.Regexp
	// digitBounded rejects matches that touch a digit on either side, so a
	// phone-shaped slice of a longer digit run is left for the card detector.
	digitBounded bool
}

// detectors run in priority order.
var detectors = []detector{
	{
		label: "email",
		token: TokenEmail,
		re:    regexp.MustCompile(`[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+`),
	},
	{
		label:        "phone",
		token:        TokenPhone,
		re:           regexp.MustCompile(`(?:\+?1\s*[-.]?\s*)?(?:\(\d{3}\)|\d{3})\s*[-.]?\s*\d{3}\s*[-.]?\s*\d{4}`),
		digitBounded: true,
	},
	{
		label:        "card",
		token:        TokenCard,
		re:           regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`),
		digitBounded: true,
	},
	{
		label: "name",
		token: TokenName,
		re:    regexp.MustCompile(`\b(?:Mr\.|Ms\.|Mrs\.|Dr\.)\s+[A-Z][a-z]+\b`),
	},
}

// Entity is one PII span found by a detector.
type Entity struct {
	Label string `json:"label"`
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Redact replaces every detected PII span with its category token and returns
// the redacted text with the number of substitutions.
func Redact(text string) (string, int) {
	out, entities := RedactDetailed(text)
	return out, len(entities)
}

// Detect reports the spans Redact would replace. Offsets of later detectors
// refer to the text after earlier detectors have run.
func Detect(text string) []Entity {
	_, entities := RedactDetailed(text)
	return entities
}

// RedactDetailed redacts text and returns the replaced entities in one pass
// over the detectors.
func RedactDetailed(text string) (string, []Entity) {
	var out []Entity
	for _, d := range detectors {
		spans := d.find(text)
		for _, s := range spans {
			out = append(out, Entity{Label: d.label, Text: text[s[0]:s[1]], Start: s[0], End: s[1]})
		}
		text = d.apply(text, spans)
	}
	return text, out
}

// CountByLabel tallies entities per detector label.
func CountByLabel(entities []Entity) map[string]int {
	counts := make(map[string]int, len(detectors))
	for _, e := range entities {
		counts[e.Label]++
	}
	return counts
}

// apply replaces spans, as returned by find on text, with the detector token.
func (d detector) apply(text string, spans [][2]int) string {
	if len(spans) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, s := range spans {
		b.WriteString(text[last:s[0]])
		b.WriteString(d.token)
		last = s[1]
	}
	b.WriteString(text[last:])
	return b.String()
}

// find scans left to right and returns non-overlapping match spans.
func (d detector) find(text string) [][2]int {
	if !d.digitBounded {
		var spans [][2]int
		for _, loc := range d.re.FindAllStringIndex(text, -1) {
			spans = append(spans, [2]int{loc[0], loc[1]})
		}
		return spans
	}

	var spans [][2]int
	pos := 0
	for pos < len(text) {
		loc := d.re.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if end > start && !digitAt(text, start-1) && !digitAt(text, end) {
			spans = append(spans, [2]int{start, end})
			pos = end
			continue
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		pos = start + size
	}
	return spans
}

func digitAt(text string, i int) bool {
	return i >= 0 && i < len(text) && text[i] >= '0' && text[i] <= '9'
}
