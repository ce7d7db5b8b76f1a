package entity

import (
	"strings"

	"github.com/coolbeans/contracta/pkg/document"
)

// DecodeBIO turns per-token BIO tags into candidates. Tags are "O", "B-X" or
// "I-X"; an "I-X" that does not continue an X span starts a new one. Offsets
// are those of the tokens, and tags pair with tokens by index.
func DecodeBIO(tokens []document.Token, tags []string) []Candidate {
	var candidates []Candidate
	var current *Candidate

	flush := func() {
		if current != nil {
			candidates = append(candidates, *current)
			current = nil
		}
	}

	for i, token := range tokens {
		if i >= len(tags) {
			break
		}
		prefix, label := splitTag(tags[i])

		switch {
		case prefix == "I" && current != nil && current.Label == label:
			current.End = token.End()
		case prefix == "B" || prefix == "I":
			flush()
			current = &Candidate{Label: label, Start: token.Start, End: token.End(), Score: 1}
		default:
			flush()
		}
	}
	flush()
	return candidates
}

func splitTag(tag string) (string, string) {
	prefix, label, found := strings.Cut(tag, "-")
	if !found || label == "" {
		return "O", ""
	}
	return strings.ToUpper(prefix), label
}
