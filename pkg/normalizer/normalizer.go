// Package normalizer canonicalizes text before it is embedded.
package normalizer

import (
	"regexp"
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Abbreviations expanded as whole words after lower-casing.
var Abbreviations = map[string]string{
	"faq":    "frequently asked questions",
	"faqs":   "frequently asked questions",
	"info":   "information",
	"approx": "approximately",
	"dept":   "department",
	"govt":   "government",
	"mgmt":   "management",
	"qty":    "quantity",
	"acct":   "account",
	"addr":   "address",
	"tel":    "telephone",
	"appt":   "appointment",
	"hrs":    "hours",
	"mins":   "minutes",
	"asap":   "as soon as possible",
	"eta":    "estimated time of arrival",
	"w/":     "with",
	"w/o":    "without",
}

var (
	// 词边界匹配，允许 w/ w/o 这类包含斜杠的缩写
	abbrevPattern = buildAbbrevPattern()
	spacePattern  = regexp.MustCompile(`\s+`)
)

func buildAbbrevPattern() *regexp.Regexp {
	keys := make([]string, 0, len(Abbreviations))
	for k := range Abbreviations {
		keys = append(keys, regexp.QuoteMeta(k))
	}
	// 长的优先，避免 w/ 抢先匹配 w/o
	slices.SortFunc(keys, func(a, b string) int {
		if len(a) != len(b) {
			return len(b) - len(a)
		}
		return strings.Compare(a, b)
	})
	return regexp.MustCompile(`(^|[^\p{L}\p{N}_])(` + strings.Join(keys, "|") + `)($|[^\p{L}\p{N}_/])`)
}

// Normalize returns the canonical form of s: NFKC, lower case, abbreviations
// expanded, repeated punctuation collapsed, whitespace collapsed and trimmed.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	s = norm.NFKC.String(s)
	s = strings.ToLower(s)
	s = expandAbbreviations(s)
	s = collapsePunctuation(s)
	s = spacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func expandAbbreviations(s string) string {
	// 相邻缩写共享分隔符，单次替换会漏掉第二个，循环到稳定为止
	for {
		next := abbrevPattern.ReplaceAllStringFunc(s, func(m string) string {
			sub := abbrevPattern.FindStringSubmatch(m)
			return sub[1] + Abbreviations[sub[2]] + sub[3]
		})
		if next == s {
			return s
		}
		s = next
	}
}

// collapsePunctuation folds runs of the same punctuation rune into one.
func collapsePunctuation(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var prev rune = -1
	for _, r := range s {
		if r == prev && unicode.IsPunct(r) {
			continue
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}
