package window

import (
	"strings"

	"github.com/torvik-dev/parley/internal/session"
)

// Duplicate suppression drops a message when it repeats its same-role
// neighbor almost verbatim. Thresholds are heuristic: short or templated
// text can misfire, and paraphrases slip through, which is acceptable.
const (
	similarityThreshold = 0.8
	minCompressLength   = 10
)

// Compress applies duplicate suppression: the first message is always
// retained; each later message is dropped when its role matches the
// previously retained message's role, both contents exceed ten characters,
// and their word-set similarity is at least 0.8. Compress is idempotent.
func Compress(msgs []session.Message) []session.Message {
	if len(msgs) == 0 {
		return msgs
	}
	out := make([]session.Message, 0, len(msgs))
	out = append(out, msgs[0])
	for _, m := range msgs[1:] {
		prev := out[len(out)-1]
		if m.Role == prev.Role &&
			len(m.Content) > minCompressLength &&
			len(prev.Content) > minCompressLength &&
			similarity(prev.Content, m.Content) >= similarityThreshold {
			continue
		}
		out = append(out, m)
	}
	return out
}

// similarity is the Jaccard index over case-insensitive word sets:
// |intersection| / |union|.
func similarity(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	inter := 0
	for w := range setA {
		if setB[w] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func wordSet(s string) map[string]bool {
	words := strings.Fields(strings.ToLower(s))
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
