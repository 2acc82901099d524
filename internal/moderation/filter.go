// Package moderation provides content filtering for chat messages. The
// moderator service runs every relayed message through the filter and
// escalates repeat offenders; the coordination server itself never blocks a
// message on moderation.
package moderation

import "strings"

// defaultTerms is the built-in blocklist. Single words match on token
// boundaries; multi-word entries match as phrases. The list is deliberately
// short — operators extend it per deployment.
var defaultTerms = []string{
	// harassment
	"kill yourself",
	"kys",
	"go die",
	// scams
	"free bitcoin",
	"free crypto",
	"send nudes",
	"wire transfer",
	// doxxing bait
	"home address",
	"social security number",
}

// Filter screens message text against a blocklist of words and phrases,
// with leetspeak normalization, plus the spam pattern checks. A Filter is
// immutable after construction and safe for concurrent use.
type Filter struct {
	words   map[string]struct{} // single-token terms
	phrases []string            // multi-token terms, pre-tokenized form
}

// NewFilter creates a Filter with the built-in blocklist.
func NewFilter() *Filter {
	return NewFilterWithTerms(defaultTerms)
}

// NewFilterWithTerms creates a Filter with a custom blocklist. Empty and
// whitespace-only terms are ignored. Terms containing whitespace are treated
// as phrases, everything else as single words.
func NewFilterWithTerms(terms []string) *Filter {
	f := &Filter{
		words: make(map[string]struct{}),
	}
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		if strings.ContainsAny(term, " \t") {
			f.phrases = append(f.phrases, strings.Join(strings.Fields(term), " "))
		} else {
			f.words[term] = struct{}{}
		}
	}
	return f
}

// Check runs text through the keyword blocklist and then the spam patterns,
// returning a blocking result on the first match. Matching is
// case-insensitive, token-boundary based, and applied both to the raw
// tokens and to their leetspeak-normalized forms.
func (f *Filter) Check(text string) FilterResult {
	lower := strings.ToLower(text)

	// Single-word terms against plain tokens.
	plain := tokenizePlain(lower)
	for _, tok := range plain {
		if _, bad := f.words[tok]; bad {
			return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: tok}
		}
	}

	// Single-word terms against leet-normalized whitespace tokens, so
	// "b@dw0rd" still hits "badword".
	for _, tok := range tokenizeLeet(lower) {
		norm := strings.Join(tokenizePlain(normalizeLeet(tok)), "")
		if norm == "" {
			continue
		}
		if _, bad := f.words[norm]; bad {
			return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: norm}
		}
	}

	// Phrases against the token stream with boundary padding, so
	// "kill yourself" does not match "kill yourselves".
	joined := " " + strings.Join(plain, " ") + " "
	for _, phrase := range f.phrases {
		if strings.Contains(joined, " "+phrase+" ") {
			return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: phrase}
		}
	}

	return f.checkSpamPatterns(text)
}

// normalizeLeet maps common leetspeak substitutions back to letters.
func normalizeLeet(s string) string {
	return leetReplacer.Replace(s)
}

var leetReplacer = strings.NewReplacer(
	"0", "o",
	"1", "i",
	"3", "e",
	"4", "a",
	"5", "s",
	"7", "t",
	"@", "a",
	"$", "s",
	"!", "i",
)

// tokenizePlain lowercase-splits text into alphanumeric tokens; punctuation
// and symbols act as separators.
func tokenizePlain(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z':
			return false
		case r >= 'A' && r <= 'Z':
			return false
		case r >= '0' && r <= '9':
			return false
		}
		return true
	})
}

// tokenizeLeet splits on whitespace only, keeping symbol-laden tokens like
// "b@dw0rd" intact for normalization.
func tokenizeLeet(s string) []string {
	return strings.Fields(s)
}
