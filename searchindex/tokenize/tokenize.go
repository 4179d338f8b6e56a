// Package tokenize implements spec.md §4.3's "language-aware" tokenizer:
// whitespace splitting, a generic word tokenizer, and a small per-language
// stemmer table for the languages the original's nlp::language::stemmer
// names as its top supported set (English, French, German, Spanish),
// supplementing the distilled spec's unnamed "specific language" hint.
package tokenize

import (
	"strings"
	"unicode"
)

// Language selects a tokenizer. None and Unknown are spec.md §4.3's
// verbatim names; the four stemmed languages supplement them.
type Language uint8

const (
	None Language = iota
	Unknown
	English
	French
	German
	Spanish
)

// maxTokenLen is spec.md §4.3's cap ("e.g., 40 code points"); longer
// tokens are discarded rather than truncated, so a query for the exact
// overlong token never matches a truncated index entry.
const maxTokenLen = 40

// Tokenize splits text into index terms for lang. For None it only
// splits on whitespace. For Unknown and the named languages it also
// splits on punctuation (a word tokenizer), and for a named language it
// additionally emits the word's stem alongside the surface form
// ("stemmer emitting both the surface form and stem* forms").
func Tokenize(text string, lang Language) []string {
	var words []string
	if lang == None {
		words = strings.Fields(text)
	} else {
		words = splitWords(text)
	}

	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(w)
		if runeLen(w) == 0 || runeLen(w) > maxTokenLen {
			continue
		}
		out = append(out, w)
		if stem := stemFor(w, lang); stem != "" && stem != w {
			out = append(out, stem)
		}
	}
	return out
}

func splitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func runeLen(s string) int {
	return len([]rune(s))
}

// stemFor applies a minimal suffix-stripping stemmer, one table per
// supported language; unsupported/unknown languages return "" (no
// additional stem form). This is a deliberately small rule set — it
// approximates a Porter-style stemmer for common inflections, not a
// full linguistic stemmer.
func stemFor(word string, lang Language) string {
	switch lang {
	case English:
		return stemSuffixes(word, englishSuffixes)
	case French:
		return stemSuffixes(word, frenchSuffixes)
	case German:
		return stemSuffixes(word, germanSuffixes)
	case Spanish:
		return stemSuffixes(word, spanishSuffixes)
	default:
		return ""
	}
}

const minStemLen = 3

var englishSuffixes = []string{"ing", "edly", "ed", "ies", "es", "s", "ly"}
var frenchSuffixes = []string{"issement", "ement", "ation", "ations", "é", "ée", "ées", "és"}
var germanSuffixes = []string{"ungen", "ung", "lich", "isch", "en", "er", "e"}
var spanishSuffixes = []string{"aciones", "amente", "ando", "iendo", "os", "as", "es"}

func stemSuffixes(word string, suffixes []string) string {
	for _, suf := range suffixes {
		if strings.HasSuffix(word, suf) && runeLen(word)-runeLen(suf) >= minStemLen {
			return word[:len(word)-len(suf)]
		}
	}
	return ""
}
