package redact

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedact_EmailAndPhone(t *testing.T) {
	text := "Contact me at jane.doe@example.com or 415-555-1234"

	got, n := Redact(text)

	assert.Equal(t, "Contact me at <EMAIL> or <PHONE>", got)
	assert.Equal(t, 2, n)
	assert.NotContains(t, got, "jane.doe@example.com")
	assert.NotContains(t, got, "415-555-1234")
}

func TestRedact_Detectors(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		want  string
		count int
	}{
		{"phone with parens", "call (415) 555-1234 now", "call <PHONE> now", 1},
		{"phone with country code", "dial +1 415 555 1234 please", "dial <PHONE> please", 1},
		{"dotted phone", "reach 415.555.1234", "reach <PHONE>", 1},
		{"grouped card", "card 4111 1111 1111 1111 on file", "card <CARD> on file", 1},
		{"dashed card", "card 4111-1111-1111-1111.", "card <CARD>.", 1},
		{"ungrouped card", "number 4111111111111111 ok", "number <CARD> ok", 1},
		{"honorific name", "Thanks Mrs. Robinson and Dr. Who", "Thanks <NAME> and <NAME>", 2},
		{"nine digits", "order 123456789 shipped", "order 123456789 shipped", 0},
		{"twelve digits", "ref 123456789012 noted", "ref 123456789012 noted", 0},
		{"lowercase name", "mr. smith called", "mr. smith called", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, n := Redact(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.count, n)
		})
	}
}

func TestRedact_CardNotTakenByPhone(t *testing.T) {
	got, n := Redact("pay with 5500005555555559 today")

	assert.Equal(t, "pay with <CARD> today", got)
	assert.Equal(t, 1, n)
	assert.NotContains(t, got, TokenPhone)
}

func TestRedact_NoPII(t *testing.T) {
	for _, text := range []string{
		"",
		"ok",
		"Thank you for waiting, your refund has been issued.",
		"The ticket number is 42 and the policy is clear.",
	} {
		got, n := Redact(text)
		assert.Equal(t, text, got)
		assert.Zero(t, n)
	}
}

func TestRedact_Idempotent(t *testing.T) {
	samples := []string{
		"Contact me at jane.doe@example.com or 415-555-1234",
		"Mr. Smith paid with 4111 1111 1111 1111, call +1 (415) 555-1234 or mail a.b+c@mail.example.org",
		"digits 1234567890123456789012345 and 415 555 1234",
		strings.Repeat("Dr. House 4155551234 ", 20),
	}
	for _, text := range samples {
		once, _ := Redact(text)
		twice, n := Redact(once)
		assert.Equal(t, once, twice, text)
		assert.Zero(t, n, text)
	}
}

func TestRedact_TokensAreFixed(t *testing.T) {
	short, _ := Redact("a@b.co")
	long, _ := Redact("a.very.long.address+tag@subdomain.example.com")
	assert.Equal(t, short, long)
}

func TestDetect(t *testing.T) {
	entities := Detect("Mr. Smith at jane@example.com")
	require.Len(t, entities, 2)

	assert.Equal(t, "email", entities[0].Label)
	assert.Equal(t, "jane@example.com", entities[0].Text)
	assert.Equal(t, "name", entities[1].Label)
	assert.Equal(t, "Mr. Smith", entities[1].Text)

	counts := CountByLabel(entities)
	assert.Equal(t, 1, counts["email"])
	assert.Equal(t, 1, counts["name"])
	assert.Zero(t, counts["card"])
}

func TestRedactDetailed_MatchesRedactAndDetect(t *testing.T) {
	text := "Mr. Smith paid with 4111 1111 1111 1111, call 415-555-1234 or mail jane@example.com"

	out, entities := RedactDetailed(text)
	want, n := Redact(text)
	assert.Equal(t, want, out)
	assert.Len(t, entities, n)
	assert.Equal(t, Detect(text), entities)
	assert.NotContains(t, out, "jane@example.com")
	assert.NotContains(t, out, "555-1234")

	out, entities = RedactDetailed("nothing to see")
	assert.Equal(t, "nothing to see", out)
	assert.Empty(t, entities)
}
