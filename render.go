package bionic

import (
	"fmt"
	"iter"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// Mode selects how the leading half of each word is emphasised.
type Mode int

const (
	// Polychrome bolds the leading half of each word in a colour taken
	// from a cycling palette. It is the default.
	Polychrome Mode = iota

	// Monochrome bolds the leading half of each word without colour.
	Monochrome
)

// String returns the canonical lowercase name of m.
func (m Mode) String() string {
	switch m {
	case Monochrome:
		return "monochrome"
	case Polychrome:
		return "polychrome"
	default:
		return "mode(" + strconv.Itoa(int(m)) + ")"
	}
}

// Prefix returns the literal prepended to the output file name.
func (m Mode) Prefix() string {
	if m == Monochrome {
		return "BionicB_"
	}
	return "BionicC_"
}

// ParseMode parses a mode name. "black" and "color" are accepted as
// aliases for Monochrome and Polychrome.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "monochrome", "mono", "black":
		return Monochrome, nil
	case "polychrome", "poly", "color", "colour", "":
		return Polychrome, nil
	default:
		return Polychrome, fmt.Errorf("bionic: unknown mode %q", s)
	}
}

// DefaultPalette is the colour cycle used in Polychrome mode.
var DefaultPalette = []string{"#604E31", "#742A4A", "#6DB1FF", "#4AC069"}

// DefaultOpacity is the alpha of the de-emphasised trailing half of a word.
const DefaultOpacity = 0.7

// Palette is a cursor over a fixed list of colours. It advances once per
// emphasised word and wraps around. A Palette belongs to a single document
// pass and must not be shared between goroutines.
type Palette struct {
	colors []string
	cursor int
}

// NewPalette returns a palette positioned at its first colour.
func NewPalette(colors []string) *Palette {
	return &Palette{colors: colors}
}

// Current returns the colour under the cursor without advancing.
func (p *Palette) Current() string {
	if p == nil || len(p.colors) == 0 {
		return ""
	}
	return p.colors[p.cursor]
}

// Next returns the colour under the cursor and advances it.
func (p *Palette) Next() string {
	c := p.Current()
	if c != "" {
		p.cursor = (p.cursor + 1) % len(p.colors)
	}
	return c
}

// Cursor reports the index of the colour the next word will use.
func (p *Palette) Cursor() int {
	if p == nil {
		return 0
	}
	return p.cursor
}

// Renderer turns text into bionic-reading markup.
type Renderer struct {
	Mode    Mode
	Opacity float64

	// UnicodeWords widens the word class beyond ASCII, see SegmentUnicode.
	UnicodeWords bool
}

// NewRenderer returns a renderer using the default opacity.
func NewRenderer(mode Mode) Renderer {
	return Renderer{Mode: mode, Opacity: DefaultOpacity}
}

// Render segments text and joins the RenderToken output of every token.
// Separators are emitted escaped but otherwise untouched; in Polychrome
// mode each word consumes one palette colour.
func (r Renderer) Render(text string, palette *Palette) string {
	var b strings.Builder
	b.Grow(len(text) * 4)
	for tok := range r.segment(text) {
		b.WriteString(r.RenderToken(tok, palette))
	}
	return b.String()
}

// RenderToken renders a single token. A separator comes back escaped and
// leaves palette alone; a word is split and, in Polychrome mode, takes the
// palette's current colour and advances it.
func (r Renderer) RenderToken(tok Token, palette *Palette) string {
	var b strings.Builder
	r.writeToken(&b, tok, palette)
	return b.String()
}

func (r Renderer) segment(text string) iter.Seq[Token] {
	if r.UnicodeWords {
		return SegmentUnicode(text)
	}
	return Segment(text)
}

// textEscaper escapes only what would otherwise be read as markup, so
// quotes and apostrophes in separators come out unchanged.
var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func (r Renderer) writeToken(b *strings.Builder, tok Token, palette *Palette) {
	if !tok.Word {
		textEscaper.WriteString(b, tok.Text)
		return
	}

	head, tail := splitWord(tok.Text)

	if r.Mode == Polychrome {
		b.WriteString(`<b style="color: `)
		b.WriteString(html.EscapeString(palette.Next()))
		b.WriteString(`;">`)
	} else {
		b.WriteString("<b>")
	}
	textEscaper.WriteString(b, head)
	b.WriteString("</b>")

	b.WriteString(`<span style="color: rgba(0, 0, 0, `)
	b.WriteString(strconv.FormatFloat(r.Opacity, 'f', -1, 64))
	b.WriteString(`);">`)
	textEscaper.WriteString(b, tail)
	b.WriteString("</span>")
}

// splitWord splits w after ceil(n/2) characters, n being its rune count.
func splitWord(w string) (head, tail string) {
	n := utf8.RuneCountInString(w)
	split := (n + 1) / 2
	i := 0
	for pos := range w {
		if i == split {
			return w[:pos], w[pos:]
		}
		i++
	}
	return w, ""
}
