package bionic

import (
	"iter"
	"regexp"
)

// Token is one run of a segmented string. Word runs consist only of
// word-constituent characters; separator runs contain none.
type Token struct {
	Text string
	Word bool
}

var (
	// asciiWordRun matches runs of the default regexp word class [0-9A-Za-z_].
	asciiWordRun = regexp.MustCompile(`\w+`)

	// unicodeWordRun widens the word class to letters, marks and numbers
	// of any script.
	unicodeWordRun = regexp.MustCompile(`[\p{L}\p{M}\p{N}_]+`)
)

// Segment splits text into alternating word and separator tokens. A
// boundary occurs wherever the character class changes, so the tokens
// concatenate back to text exactly. The word class is Go's default `\w`.
//
// The returned sequence is lazy and meant to be ranged over once.
func Segment(text string) iter.Seq[Token] {
	return segmentWith(asciiWordRun, text)
}

// SegmentUnicode is like Segment but treats letters, combining marks and
// digits from every script as word characters.
func SegmentUnicode(text string) iter.Seq[Token] {
	return segmentWith(unicodeWordRun, text)
}

func segmentWith(re *regexp.Regexp, text string) iter.Seq[Token] {
	return func(yield func(Token) bool) {
		rest := text
		for rest != "" {
			loc := re.FindStringIndex(rest)
			if loc == nil {
				yield(Token{Text: rest})
				return
			}
			if loc[0] > 0 {
				if !yield(Token{Text: rest[:loc[0]]}) {
					return
				}
			}
			if !yield(Token{Text: rest[loc[0]:loc[1]], Word: true}) {
				return
			}
			rest = rest[loc[1]:]
		}
	}
}
