// Package text normalizes prose before it is sent to voices that read their
// input literally.
package text

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxSpokenNumber is the largest integer spelled out in words. Larger
// numbers are left as digits.
const MaxSpokenNumber = 999_999

const tokenMarker = "\x00"

var (
	urlPattern       = regexp.MustCompile(`https?://\S+`)
	emailPattern     = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	numberPattern    = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)
	groupingPattern  = regexp.MustCompile(`(\d),(\d{3})\b`)
	footnotePattern  = regexp.MustCompile(`\[\d+\]|[¹²³⁴⁵⁶⁷⁸⁹⁰]+`)
	citationPattern  = regexp.MustCompile(`\([^)]*\b\d{4}\b[^)]*\)`)
	repeatedPunct    = regexp.MustCompile(`([!?.,;:])[!?.,;:]+`)
	spaceBeforePunct = regexp.MustCompile(`\s+([!?.,;:])`)
)

var abbreviations = strings.NewReplacer(
	"Mr.", "Mister",
	"Mrs.", "Misses",
	"Ms.", "Miss",
	"Dr.", "Doctor",
	"St.", "Saint",
	"Jr.", "Junior",
	"Co.", "Company",
	"Ltd.", "Limited",
	"Corp.", "Corporation",
	"Inc.", "Incorporated",
	"e.g.", "for example",
	"i.e.", "that is",
	"etc.", "et cetera",
)

var typography = strings.NewReplacer(
	"—", ", ",
	"–", "-",
	"‒", "-",
	"…", ".",
	"“", `"`,
	"”", `"`,
	"‘", "'",
	"’", "'",
	"\u00a0", " ",
)

// Normalizer rewrites text into the form a literal reader pronounces well.
// It is safe for concurrent use.
type Normalizer struct{}

// NewNormalizer returns a Normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize expands abbreviations and numbers, drops footnote markers and
// parenthetical citations, tidies punctuation, and terminates the text with
// sentence punctuation. URLs and email addresses pass through untouched.
func (n *Normalizer) Normalize(input string) string {
	if strings.TrimSpace(input) == "" {
		return ""
	}

	protected, tokens := protect(input)

	out := typography.Replace(protected)
	out = abbreviations.Replace(out)
	out = footnotePattern.ReplaceAllString(out, "")
	out = citationPattern.ReplaceAllString(out, "")
	out = ungroup(out)
	out = numberPattern.ReplaceAllStringFunc(out, spellNumber)
	out = strings.Join(strings.Fields(out), " ")
	out = spaceBeforePunct.ReplaceAllString(out, "$1")
	out = repeatedPunct.ReplaceAllString(out, "$1")

	return terminate(restore(out, tokens))
}

func protect(input string) (string, []string) {
	var tokens []string

	replace := func(match string) string {
		tokens = append(tokens, match)

		return tokenName(len(tokens) - 1)
	}

	out := urlPattern.ReplaceAllStringFunc(input, replace)
	out = emailPattern.ReplaceAllStringFunc(out, replace)

	return out, tokens
}

func restore(input string, tokens []string) string {
	for index := len(tokens) - 1; index >= 0; index-- {
		input = strings.ReplaceAll(input, tokenName(index), tokens[index])
	}

	return input
}

// tokenName spells the index with letters so the number pass leaves it alone.
func tokenName(index int) string {
	letters := strings.Map(func(r rune) rune { return 'a' + (r - '0') }, strconv.Itoa(index))

	return tokenMarker + letters + tokenMarker
}

func ungroup(input string) string {
	for {
		next := groupingPattern.ReplaceAllString(input, "$1$2")
		if next == input {
			return next
		}

		input = next
	}
}

func terminate(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}

	last, _ := utf8.DecodeLastRuneInString(trimmed)

	switch {
	case last == '.' || last == '!' || last == '?':
		return trimmed
	case unicode.IsPunct(last) && last != '"' && last != '\'' && last != ')':
		return strings.TrimRightFunc(trimmed, unicode.IsPunct) + "."
	default:
		return trimmed + "."
	}
}

var (
	ones = []string{
		"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine",
		"ten", "eleven", "twelve", "thirteen", "fourteen", "fifteen", "sixteen",
		"seventeen", "eighteen", "nineteen",
	}
	tens = []string{
		"", "", "twenty", "thirty", "forty", "fifty", "sixty", "seventy", "eighty", "ninety",
	}
)

func spellNumber(match string) string {
	whole, fraction, hasFraction := strings.Cut(match, ".")

	number, err := strconv.Atoi(whole)
	if err != nil || number > MaxSpokenNumber {
		return match
	}

	words := NumberToWords(number)
	if !hasFraction {
		return words
	}

	spoken := make([]string, 0, len(fraction))
	for _, digit := range fraction {
		spoken = append(spoken, ones[digit-'0'])
	}

	return words + " point " + strings.Join(spoken, " ")
}

// NumberToWords spells out 0 <= number <= MaxSpokenNumber in English.
// Other values are returned as digits.
func NumberToWords(number int) string {
	if number < 0 || number > MaxSpokenNumber {
		return strconv.Itoa(number)
	}

	if number < 1000 {
		return underThousand(number)
	}

	words := underThousand(number/1000) + " thousand"
	if rest := number % 1000; rest > 0 {
		words += " " + underThousand(rest)
	}

	return words
}

func underThousand(number int) string {
	if number < 100 {
		return underHundred(number)
	}

	words := ones[number/100] + " hundred"
	if rest := number % 100; rest > 0 {
		words += " " + underHundred(rest)
	}

	return words
}

func underHundred(number int) string {
	if number < len(ones) {
		return ones[number]
	}

	words := tens[number/10]
	if unit := number % 10; unit > 0 {
		words += "-" + ones[unit]
	}

	return words
}
