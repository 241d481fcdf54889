// Package moderation masks blacklisted terms in message content before
// it reaches the message store. The match is resilient to casing, common
// leet substitutions and inserted separators.
package moderation

import (
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

type Censor struct {
	machine  *goahocorasick.Machine
	maskRune rune
}

// textMapping links the normalized searchable runes back to their
// positions in the original string so masking preserves spacing.
type textMapping struct {
	normalized []rune
	origIdx    []int
}

// NewCensor builds the Aho-Corasick automaton from the blacklist. Terms
// are normalized the same way as incoming content so "b4d-word" still
// matches "badword".
func NewCensor(terms []string, maskRune rune) (*Censor, error) {
	patterns := make([][]rune, 0, len(terms))
	for _, term := range terms {
		if normalized := normalize(term).normalized; len(normalized) > 0 {
			patterns = append(patterns, normalized)
		}
	}

	machine := new(goahocorasick.Machine)
	if err := machine.Build(patterns); err != nil {
		return nil, err
	}
	return &Censor{machine: machine, maskRune: maskRune}, nil
}

// Apply replaces every character of each matched term with the mask rune,
// leaving all other characters untouched.
func (c *Censor) Apply(content string) string {
	mapping := normalize(content)
	if len(mapping.normalized) == 0 {
		return content
	}

	spans := c.machine.MultiPatternSearch(mapping.normalized, false)
	if len(spans) == 0 {
		return content
	}

	runes := []rune(content)
	for _, span := range spans {
		start := span.Pos
		end := start + len(span.Word)
		if start < 0 || end > len(mapping.origIdx) {
			continue
		}
		for i := mapping.origIdx[start]; i <= mapping.origIdx[end-1]; i++ {
			runes[i] = c.maskRune
		}
	}
	return string(runes)
}

func normalize(input string) textMapping {
	origRunes := []rune(input)
	mapping := textMapping{
		normalized: make([]rune, 0, len(origRunes)),
		origIdx:    make([]int, 0, len(origRunes)),
	}
	for i, r := range origRunes {
		plain := unleet(r)
		if unicode.IsPunct(plain) || unicode.IsSpace(plain) || unicode.IsSymbol(plain) {
			continue
		}
		mapping.normalized = append(mapping.normalized, unicode.ToLower(plain))
		mapping.origIdx = append(mapping.origIdx, i)
	}
	return mapping
}

// unleet maps common leet-speak characters back to their alphabet
// counterparts.
func unleet(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}
