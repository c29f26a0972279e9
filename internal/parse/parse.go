// Package parse extracts the reasoning and answer blocks from raw model output.
package parse

import (
	"regexp"
	"strings"
)

var (
	reReasoning = regexp.MustCompile(`(?is)<reasoning>(.*?)</reasoning>`)
	reAnswer    = regexp.MustCompile(`(?is)<answer>(.*?)</answer>`)

	// reThink matches the native thinking block of R1-style models
	reThink = regexp.MustCompile(`(?is)<think>(.*?)</think>`)

	reAnswerTag    = regexp.MustCompile(`(?i)</?answer>`)
	reAnswerMarker = regexp.MustCompile(`(?i)(?:final\s+)?answer\s*:`)
)

// positionalSplit is the share of the text treated as reasoning when the
// output carries no structure at all
const positionalSplit = 0.7

// Response splits raw into reasoning and answer. Strategies are tried in
// order and each field keeps the first value found:
//
//  1. <reasoning>...</reasoning> and <answer>...</answer>
//  2. <think>...</think>, with the text after it as the answer
//  3. a "final answer:" / "answer:" marker
//  4. a positional split at 70% of the text
//
// Steps 3 and 4 only run when both fields are still empty.
func Response(raw string) (reasoning, answer string) {
	if m := reReasoning.FindStringSubmatch(raw); m != nil {
		reasoning = strings.TrimSpace(m[1])
	}
	if m := reAnswer.FindStringSubmatch(raw); m != nil {
		answer = strings.TrimSpace(m[1])
	}

	if reasoning == "" {
		if loc := reThink.FindStringSubmatchIndex(raw); loc != nil {
			reasoning = strings.TrimSpace(raw[loc[2]:loc[3]])
			after := strings.TrimSpace(raw[loc[1]:])
			if answer == "" && after != "" {
				answer = strings.TrimSpace(reAnswerTag.ReplaceAllString(after, ""))
			}
		}
	}

	if reasoning == "" && answer == "" {
		reasoning, answer = heuristicSplit(raw)
	}

	return reasoning, answer
}

func heuristicSplit(raw string) (string, string) {
	if loc := reAnswerMarker.FindStringIndex(raw); loc != nil {
		return strings.TrimSpace(raw[:loc[0]]), strings.TrimSpace(raw[loc[1]:])
	}

	runes := []rune(raw)
	split := int(float64(len(runes)) * positionalSplit)
	return strings.TrimSpace(string(runes[:split])), strings.TrimSpace(string(runes[split:]))
}

// CountWords returns the number of whitespace-separated tokens in text
func CountWords(text string) int {
	return len(strings.Fields(text))
}
