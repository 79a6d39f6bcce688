package match

import (
	"strings"
	"unicode"
)

// Hangul syllable block and jamo tables used for decomposition. Using
// compatibility jamo for both leads and tails keeps equal consonants
// comparable regardless of their position in the syllable.
const (
	hangulBase = 0xAC00
	hangulLast = 0xD7A3
)

var (
	leadJamo  = []rune("ㄱㄲㄴㄷㄸㄹㅁㅂㅃㅅㅆㅇㅈㅉㅊㅋㅌㅍㅎ")
	vowelJamo = []rune("ㅏㅐㅑㅒㅓㅔㅕㅖㅗㅘㅙㅚㅛㅜㅝㅞㅟㅠㅡㅢㅣ")
	tailJamo  = []rune{
		0,
		'ㄱ', 'ㄲ', 'ㄳ', 'ㄴ', 'ㄵ', 'ㄶ', 'ㄷ', 'ㄹ', 'ㄺ',
		'ㄻ', 'ㄼ', 'ㄽ', 'ㄾ', 'ㄿ', 'ㅀ', 'ㅁ', 'ㅂ', 'ㅄ', 'ㅅ',
		'ㅆ', 'ㅇ', 'ㅈ', 'ㅊ', 'ㅋ', 'ㅌ', 'ㅍ', 'ㅎ',
	}
)

type runePair struct {
	a, b rune
}

func pairOf(a, b rune) runePair {
	if a > b {
		a, b = b, a
	}
	return runePair{a: a, b: b}
}

// Phonetically confusable pairs substitute at reduced cost so a
// recognizer hearing 글로드 still matches the trigger 클로드.
var confusablePairs = map[runePair]struct{}{
	// Plain vs aspirated consonants.
	pairOf('ㄱ', 'ㅋ'): {},
	pairOf('ㄷ', 'ㅌ'): {},
	pairOf('ㅂ', 'ㅍ'): {},
	pairOf('ㅈ', 'ㅊ'): {},
	// Plain vs tense consonants.
	pairOf('ㄱ', 'ㄲ'): {},
	pairOf('ㄷ', 'ㄸ'): {},
	pairOf('ㅂ', 'ㅃ'): {},
	pairOf('ㅈ', 'ㅉ'): {},
	pairOf('ㅅ', 'ㅆ'): {},
	// Vowels merged in modern pronunciation.
	pairOf('ㅐ', 'ㅔ'): {},
	pairOf('ㅒ', 'ㅖ'): {},
	// Latin pairs recognizers commonly swap.
	pairOf('b', 'p'): {},
	pairOf('d', 't'): {},
	pairOf('g', 'k'): {},
	pairOf('c', 'k'): {},
	pairOf('f', 'p'): {},
	pairOf('l', 'r'): {},
	pairOf('s', 'z'): {},
}

const confusableCost = 0.5

func substitutionCost(a, b rune) float64 {
	if a == b {
		return 0
	}
	if _, ok := confusablePairs[pairOf(a, b)]; ok {
		return confusableCost
	}
	return 1
}

// Normalize lowercases text, strips punctuation and symbols and
// collapses runs of whitespace to single spaces.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	lastSpace := true
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		default:
			// Punctuation and symbols drop out entirely.
		}
	}

	return strings.TrimRight(b.String(), " ")
}

// Tokenize splits text on whitespace and normalizes each token. The
// result is index-aligned with strings.Fields of the original text;
// tokens that normalize away stay as empty strings so the alignment
// holds.
func Tokenize(text string) []string {
	fields := strings.Fields(text)
	tokens := make([]string, len(fields))
	for i, f := range fields {
		tokens[i] = Normalize(f)
	}
	return tokens
}

// decompose expands Hangul syllables into their constituent jamo and
// passes other runes through, so edit distance operates at the level
// where Korean near-homophones differ by a single element.
func decompose(text string) []rune {
	out := make([]rune, 0, len(text))
	for _, r := range text {
		if r >= hangulBase && r <= hangulLast {
			idx := int(r - hangulBase)
			lead := idx / 588
			vowel := (idx % 588) / 28
			tail := idx % 28

			out = append(out, leadJamo[lead], vowelJamo[vowel])
			if tail > 0 {
				out = append(out, tailJamo[tail])
			}
			continue
		}
		out = append(out, r)
	}
	return out
}
