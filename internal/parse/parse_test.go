package parse

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestResponse(t *testing.T) {
	tests := []struct {
		name          string
		raw           string
		wantReasoning string
		wantAnswer    string
	}{
		{
			name:          "canonical tags",
			raw:           "<reasoning>\n  A \n</reasoning>\n<answer> B </answer>",
			wantReasoning: "A",
			wantAnswer:    "B",
		},
		{
			name:          "tags are case-insensitive and span lines",
			raw:           "<REASONING>step 1\nstep 2</Reasoning><Answer>42</ANSWER>",
			wantReasoning: "step 1\nstep 2",
			wantAnswer:    "42",
		},
		{
			name:          "think block with trailing answer",
			raw:           "<think> T </think>\n R ",
			wantReasoning: "T",
			wantAnswer:    "R",
		},
		{
			name:          "think block strips stray answer tags",
			raw:           "<think>T</think><answer>R",
			wantReasoning: "T",
			wantAnswer:    "R",
		},
		{
			name:          "think block keeps tagged answer",
			raw:           "<think>T</think> ignored <answer>R</answer>",
			wantReasoning: "T",
			wantAnswer:    "R",
		},
		{
			name:          "reasoning tag wins over think",
			raw:           "<think>T</think><reasoning>A</reasoning><answer>B</answer>",
			wantReasoning: "A",
			wantAnswer:    "B",
		},
		{
			name:          "answer only keeps empty reasoning",
			raw:           "some text <answer>B</answer>",
			wantReasoning: "",
			wantAnswer:    "B",
		},
		{
			name:          "final answer marker",
			raw:           "First add 2 and 2.\nFinal Answer: 4",
			wantReasoning: "First add 2 and 2.",
			wantAnswer:    "4",
		},
		{
			name:          "plain answer marker",
			raw:           "think think answer : yes",
			wantReasoning: "think think",
			wantAnswer:    "yes",
		},
		{
			name:          "positional split",
			raw:           "abcdefghij",
			wantReasoning: "abcdefg",
			wantAnswer:    "hij",
		},
		{
			name:          "empty input",
			raw:           "",
			wantReasoning: "",
			wantAnswer:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reasoning, answer := Response(tt.raw)
			assert.Equal(t, tt.wantReasoning, reasoning)
			assert.Equal(t, tt.wantAnswer, answer)
		})
	}
}

func TestResponsePositionalSplitCountsRunes(t *testing.T) {
	// 10 runes, 30 bytes
	raw := "सबसेबड़ात्य"
	raw = string([]rune(raw)[:10])
	reasoning, answer := Response(raw)
	assert.Equal(t, 7, utf8.RuneCountInString(reasoning))
	assert.Equal(t, 3, utf8.RuneCountInString(answer))
	assert.True(t, utf8.ValidString(reasoning))
	assert.True(t, utf8.ValidString(answer))
}

func TestCountWords(t *testing.T) {
	assert.Equal(t, 0, CountWords(""))
	assert.Equal(t, 0, CountWords(" \n\t "))
	assert.Equal(t, 3, CountWords(" one two\nthree "))
}

var genInner = rapid.StringMatching(`[a-zA-Z0-9 .,\n]{1,40}`)

// TestResponse_CanonicalTagsRoundTrip tests that well-formed tags yield the trimmed contents
func TestResponse_CanonicalTagsRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := genInner.Draw(t, "a")
		b := genInner.Draw(t, "b")
		if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
			t.Skip("blank block")
		}

		raw := "<reasoning>" + a + "</reasoning>\n<answer>" + b + "</answer>"
		reasoning, answer := Response(raw)

		if reasoning != strings.TrimSpace(a) || answer != strings.TrimSpace(b) {
			t.Fatalf("Response(%q) = (%q, %q)", raw, reasoning, answer)
		}
	})
}

// TestResponse_PositionalSplitPreservesLength tests that the 70% split loses nothing but the boundary whitespace
func TestResponse_PositionalSplitPreservesLength(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		raw := rapid.StringMatching(`[b-z]{1,200}`).Draw(t, "raw")

		reasoning, answer := Response(raw)

		if len(reasoning)+len(answer) != len(raw) {
			t.Fatalf("lengths %d+%d != %d for %q", len(reasoning), len(answer), len(raw), raw)
		}
		if reasoning+answer != raw {
			t.Fatalf("split changed content of %q", raw)
		}
		if want := int(float64(len(raw)) * 0.7); len(reasoning) != want {
			t.Fatalf("reasoning length %d, want %d", len(reasoning), want)
		}
	})
}
