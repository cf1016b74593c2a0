package bionic

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreprocessHTMLEntities(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"spaces and dashes", `Hello&nbsp;World &mdash; An&hellip; 2020&ndash;2024`, `Hello&#160;World &#8212; An&#8230; 2020&#8211;2024`},
		{"quotation marks", `&ldquo;Hello&rdquo; &lsquo;World&rsquo;`, `&#8220;Hello&#8221; &#8216;World&#8217;`},
		{"symbols", `&copy; 2024 &reg; Company&trade;`, `&#169; 2024 &#174; Company&#8482;`},
		{"accented", `caf&eacute; r&eacute;sum&eacute; &Ntilde;`, `caf&#233; r&#233;sum&#233; &#241;`},
		{"more accents", `f&ecirc;te &oacute; na&iuml;ve`, `f&#234;te &#243; na&#239;ve`},
		{"punctuation", `&laquo;Oui&raquo; &bull; 3&times;4 &middot; 90&deg;`, `&#171;Oui&#187; &#8226; 3&#215;4 &#183; 90&#176;`},
		{"xml entities preserved", `&amp; &lt; &gt; &quot; &apos;`, `&amp; &lt; &gt; &quot; &apos;`},
		{"unknown entity preserved", `&bogus;`, `&bogus;`},
		{"no entities", `<p>Plain text</p>`, `<p>Plain text</p>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(preprocessHTMLEntities([]byte(tt.input)))
			if got != tt.want {
				t.Errorf("preprocessHTMLEntities():\n got: %s\nwant: %s", got, tt.want)
			}
		})
	}
}

// rewriteHTML parses src, rewrites it and returns the rendered document.
func rewriteHTML(t *testing.T, src string, r Renderer, palette *Palette, elements []string) string {
	t.Helper()
	doc, err := ParseDocument([]byte(src))
	require.NoError(t, err)
	require.NoError(t, RewriteDocument(doc.Root, r, palette, elements))
	out, err := doc.Render()
	require.NoError(t, err)
	return string(out)
}

var colorPattern = regexp.MustCompile(`<b style="color: (#[0-9A-Fa-f]{6});">`)

func usedColors(s string) []string {
	var out []string
	for _, m := range colorPattern.FindAllStringSubmatch(s, -1) {
		out = append(out, m[1])
	}
	return out
}

func TestRewriteDocument_Polychrome(t *testing.T) {
	out := rewriteHTML(t, `<p>Hi there</p>`, NewRenderer(Polychrome), NewPalette(DefaultPalette), DefaultElements)

	want := `<p><b style="color: #604E31;">H</b><span style="color: rgba(0, 0, 0, 0.7);">i</span> ` +
		`<b style="color: #742A4A;">the</b><span style="color: rgba(0, 0, 0, 0.7);">re</span></p>`
	assert.Contains(t, out, want)
}

func TestRewriteDocument_Monochrome(t *testing.T) {
	out := rewriteHTML(t, `<h2>reading</h2>`, NewRenderer(Monochrome), NewPalette(DefaultPalette), DefaultElements)

	assert.Contains(t, out, `<h2><b>read</b><span style="color: rgba(0, 0, 0, 0.7);">ing</span></h2>`)
	assert.NotContains(t, out, "color: #")
}

func TestRewriteDocument_PaletteSpansElements(t *testing.T) {
	palette := NewPalette(DefaultPalette)
	out := rewriteHTML(t,
		`<h1>One</h1><p>two three</p><ul><li>four</li></ul><table><tr><td>five</td></tr></table>`,
		NewRenderer(Polychrome), palette, DefaultElements)

	want := []string{"#604E31", "#742A4A", "#6DB1FF", "#4AC069", "#604E31"}
	assert.Equal(t, want, usedColors(out))
	assert.Equal(t, 1, palette.Cursor())
}

func TestRewriteDocument_LeavesOtherElements(t *testing.T) {
	src := `<div class="note">Left alone</div><p>Go</p><span>Also untouched</span>`
	out := rewriteHTML(t, src, NewRenderer(Monochrome), nil, DefaultElements)

	assert.Contains(t, out, `<div class="note">Left alone</div>`)
	assert.Contains(t, out, `<p><b>G</b><span style="color: rgba(0, 0, 0, 0.7);">o</span></p>`)
}

func TestRewriteDocument_FlattensNestedMarkup(t *testing.T) {
	src := `<p>See <a href="x.html">this <em>link</em></a> now</p>`
	out := rewriteHTML(t, src, NewRenderer(Polychrome), NewPalette(DefaultPalette), DefaultElements)

	assert.NotContains(t, out, "<a ")
	assert.NotContains(t, out, "<em>")
	// The nested anchor is rendered once, as part of its paragraph.
	assert.Equal(t, []string{"#604E31", "#742A4A", "#6DB1FF", "#4AC069"}, usedColors(out))
}

func TestRewriteDocument_NestedMatchSkipped(t *testing.T) {
	src := `<ul><li><p>One</p> two</li></ul>`
	out := rewriteHTML(t, src, NewRenderer(Monochrome), nil, DefaultElements)

	assert.Contains(t, out, `<li><b>On</b><span style="color: rgba(0, 0, 0, 0.7);">e</span> `+
		`<b>tw</b><span style="color: rgba(0, 0, 0, 0.7);">o</span></li>`)
	assert.NotContains(t, out, "<p>")
}

func TestRewriteDocument_ProseElements(t *testing.T) {
	src := `<div><a href="#n1">Link text</a></div><p>Body</p>`
	out := rewriteHTML(t, src, NewRenderer(Monochrome), nil, ProseElements)

	assert.Contains(t, out, `<a href="#n1">Link text</a>`)
	assert.Contains(t, out, `<p><b>Bo</b><span style="color: rgba(0, 0, 0, 0.7);">dy</span></p>`)
}

func TestRewriteDocument_CustomElementName(t *testing.T) {
	out := rewriteHTML(t, `<note-text>Hi</note-text><p>Skip</p>`, NewRenderer(Monochrome), nil, []string{"Note-Text"})

	assert.Contains(t, out, `<note-text><b>H</b><span style="color: rgba(0, 0, 0, 0.7);">i</span></note-text>`)
	assert.Contains(t, out, `<p>Skip</p>`)
}

func TestRewriteDocument_EscapesText(t *testing.T) {
	out := rewriteHTML(t, `<p>Fish &amp; chips &lt;3</p>`, NewRenderer(Monochrome), nil, DefaultElements)

	assert.Contains(t, out, `</span> &amp; <b>`)
	assert.Contains(t, out, `</span> &lt;<b>3</b>`)
}

func TestRewriteDocument_EmptyElement(t *testing.T) {
	palette := NewPalette(DefaultPalette)
	out := rewriteHTML(t, `<p></p><p>   </p>`, NewRenderer(Polychrome), palette, DefaultElements)

	assert.Contains(t, out, `<p></p><p>   </p>`)
	assert.Equal(t, 0, palette.Cursor())
}

func TestParseDocument_KeepsXMLDeclaration(t *testing.T) {
	doc, err := ParseDocument([]byte("\xEF\xBB\xBF" + testChapter))
	require.NoError(t, err)
	out, err := doc.Render()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(string(out), `<?xml version="1.0" encoding="utf-8"?>`+"\n<html"), string(out))
	assert.Equal(t, 1, strings.Count(string(out), "<?xml"))
}

func TestParseDocument_NoDeclaration(t *testing.T) {
	doc, err := ParseDocument([]byte(`<html><body><p>x</p></body></html>`))
	require.NoError(t, err)
	out, err := doc.Render()
	require.NoError(t, err)

	assert.Equal(t, `<html><head></head><body><p>x</p></body></html>`, string(out))
}

func TestParseDocument_UntouchedMarkupRoundTrip(t *testing.T) {
	src := `<?xml version="1.0"?>
<?xml-stylesheet href="a.css"?>
<html><head></head><body><div>a&#160;b<br/>c &amp; d</div><p>Go</p></body></html>`

	doc, err := ParseDocument([]byte(src))
	require.NoError(t, err)
	require.NoError(t, RewriteDocument(doc.Root, NewRenderer(Monochrome), nil, []string{"p"}))
	data, err := doc.Render()
	require.NoError(t, err)
	out := string(data)

	assert.True(t, strings.HasPrefix(out, `<?xml version="1.0"?>`+"\n"), out)
	assert.Contains(t, out, "<div>a\u00a0b<br/>c &amp; d</div>")
	assert.Contains(t, out, `<!--?xml-stylesheet href="a.css"?-->`)
	assert.Contains(t, out, `<p><b>G</b>`)
}

func TestRewriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ch1.xhtml")
	require.NoError(t, os.WriteFile(path, []byte(testChapter), 0o640))

	err := RewriteFile(path, RewriteOptions{Renderer: NewRenderer(Polychrome), Palette: DefaultPalette})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="utf-8"?>`))
	assert.Contains(t, out, `<div class="note">Left alone</div>`)
	// h1 "Hi there" takes the first two colours, the paragraph continues the cycle.
	assert.Equal(t, []string{"#604E31", "#742A4A", "#6DB1FF", "#4AC069"}, usedColors(out))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files should be left behind")
}

func TestRewriteFile_FailedWriteKeepsOriginal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ch1.xhtml")
	require.NoError(t, os.WriteFile(path, []byte(testChapter), 0o644))

	require.NoError(t, os.Chmod(dir, 0o555))
	t.Cleanup(func() { os.Chmod(dir, 0o755) })
	if f, err := os.CreateTemp(dir, "writable-*"); err == nil {
		f.Close()
		os.Remove(f.Name())
		t.Skip("directory permissions are not enforced for this user")
	}

	err := RewriteFile(path, RewriteOptions{Renderer: NewRenderer(Polychrome), Palette: DefaultPalette})
	require.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, testChapter, string(data))
}

func TestRewriteFile_EachFileStartsFreshPalette(t *testing.T) {
	dir := t.TempDir()
	opts := RewriteOptions{Renderer: NewRenderer(Polychrome), Palette: DefaultPalette}
	for _, name := range []string{"a.html", "b.html"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(`<p>one</p>`), 0o644))
		require.NoError(t, RewriteFile(path, opts))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"#604E31"}, usedColors(string(data)), name)
	}
}

func TestRewriteFile_Missing(t *testing.T) {
	err := RewriteFile(filepath.Join(t.TempDir(), "missing.xhtml"), RewriteOptions{Renderer: NewRenderer(Monochrome)})
	assert.ErrorIs(t, err, os.ErrNotExist)
}
