package proposal

import "strings"

// Rule is one row of an ordered classification table.
type Rule[T any] struct {
	Result   T        `yaml:"result" json:"result"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

func (r Rule[T]) matches(lower string) bool {
	return containsAny(lower, r.Keywords)
}

// Classify returns the result of the first rule with a keyword present in text.
// Table order is the tie-break.
func Classify[T any](text string, table []Rule[T], fallback T) T {
	lower := strings.ToLower(text)
	for _, r := range table {
		if r.matches(lower) {
			return r.Result
		}
	}
	return fallback
}

// MatchVocabulary returns the canonical names of every term present in text, in table order.
func MatchVocabulary(text string, vocab []Term) []string {
	lower := strings.ToLower(text)
	out := []string{}
	seen := map[string]bool{}
	for _, t := range vocab {
		if seen[t.Name] {
			continue
		}
		kws := t.Keywords
		if len(kws) == 0 {
			kws = []string{t.Name}
		}
		if containsAny(lower, kws) {
			seen[t.Name] = true
			out = append(out, t.Name)
		}
	}
	return out
}

func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if containsKeyword(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// containsKeyword is a substring test, except that keywords of three characters
// or fewer must stand alone so "ai" does not fire on "email".
func containsKeyword(lower, kw string) bool {
	if kw == "" {
		return false
	}
	if len(kw) > 3 {
		return strings.Contains(lower, kw)
	}
	for from := 0; ; {
		i := strings.Index(lower[from:], kw)
		if i < 0 {
			return false
		}
		i += from
		end := i + len(kw)
		if (i == 0 || !isWordByte(lower[i-1])) && (end == len(lower) || !isWordByte(lower[end])) {
			return true
		}
		from = i + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}
