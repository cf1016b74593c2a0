package bionic

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// entityNameToNumeric maps lowercase HTML entity names to their XML numeric
// character references. encoding/xml does not recognise HTML named entities,
// so we convert them before parsing OPF files.
var entityNameToNumeric = map[string][]byte{
	"nbsp": []byte("&#160;"), "mdash": []byte("&#8212;"), "ndash": []byte("&#8211;"),
	"hellip": []byte("&#8230;"),
	"lsquo": []byte("&#8216;"), "rsquo": []byte("&#8217;"),
	"ldquo": []byte("&#8220;"), "rdquo": []byte("&#8221;"),
	"copy": []byte("&#169;"), "reg": []byte("&#174;"), "trade": []byte("&#8482;"),
	"bull": []byte("&#8226;"), "middot": []byte("&#183;"),
	"eacute": []byte("&#233;"), "egrave": []byte("&#232;"),
	"ecirc": []byte("&#234;"), "euml": []byte("&#235;"),
	"aacute": []byte("&#225;"), "agrave": []byte("&#224;"),
	"acirc": []byte("&#226;"), "auml": []byte("&#228;"),
	"iacute": []byte("&#237;"), "igrave": []byte("&#236;"),
	"icirc": []byte("&#238;"), "iuml": []byte("&#239;"),
	"oacute": []byte("&#243;"), "ograve": []byte("&#242;"),
	"ocirc": []byte("&#244;"), "ouml": []byte("&#246;"),
	"uacute": []byte("&#250;"), "ugrave": []byte("&#249;"),
	"ucirc": []byte("&#251;"), "uuml": []byte("&#252;"),
	"ntilde": []byte("&#241;"), "ccedil": []byte("&#231;"),
	"times": []byte("&#215;"), "divide": []byte("&#247;"),
	"deg": []byte("&#176;"), "para": []byte("&#182;"), "sect": []byte("&#167;"),
	"laquo": []byte("&#171;"), "raquo": []byte("&#187;"),
	"iexcl": []byte("&#161;"), "iquest": []byte("&#191;"),
}

// htmlEntityPattern matches common HTML named entities case-insensitively.
var htmlEntityPattern = regexp.MustCompile(
	`(?i)&(nbsp|mdash|ndash|hellip|lsquo|rsquo|ldquo|rdquo|copy|reg|trade|bull|middot|` +
		`eacute|egrave|ecirc|euml|aacute|agrave|acirc|auml|iacute|igrave|icirc|iuml|` +
		`oacute|ograve|ocirc|ouml|uacute|ugrave|ucirc|uuml|ntilde|ccedil|` +
		`times|divide|deg|para|sect|laquo|raquo|iexcl|iquest);`)

// preprocessHTMLEntities replaces common HTML named entities with their
// numeric character references so that encoding/xml can parse the data.
func preprocessHTMLEntities(data []byte) []byte {
	return htmlEntityPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := strings.ToLower(string(match[1 : len(match)-1]))
		if replacement, ok := entityNameToNumeric[name]; ok {
			return replacement
		}
		return match
	})
}

// DefaultElements lists the text-bearing tags rewritten by default.
var DefaultElements = []string{"a", "p", "h1", "h2", "h3", "h4", "h5", "h6", "li", "th", "td"}

// ProseElements is the narrower tag set: paragraphs and headings only.
var ProseElements = []string{"p", "h1", "h2", "h3", "h4", "h5", "h6"}

// elementSet converts tag names to atoms. Unknown names are matched by
// their lowercase Data instead.
type elementSet struct {
	atoms map[atom.Atom]bool
	names map[string]bool
}

func newElementSet(tags []string) elementSet {
	s := elementSet{atoms: make(map[atom.Atom]bool), names: make(map[string]bool)}
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if a := atom.Lookup([]byte(t)); a != 0 {
			s.atoms[a] = true
		} else {
			s.names[t] = true
		}
	}
	return s
}

func (s elementSet) match(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if n.DataAtom != 0 {
		return s.atoms[n.DataAtom]
	}
	return s.names[strings.ToLower(n.Data)]
}

// xmlDeclPattern matches a leading XML declaration. x/net/html would turn it
// into a bogus comment, so it is cut off before parsing and written back
// verbatim on render.
var xmlDeclPattern = regexp.MustCompile(`^\s*<\?xml[^>]*\?>`)

// Document is a parsed markup file.
type Document struct {
	Root *html.Node

	// prolog is the original XML declaration, if any.
	prolog []byte
}

// ParseDocument parses HTML or XHTML bytes. A leading BOM is dropped and a
// leading XML declaration is kept aside for Render.
func ParseDocument(data []byte) (*Document, error) {
	data = stripBOM(data)
	d := &Document{}
	if loc := xmlDeclPattern.FindIndex(data); loc != nil {
		d.prolog = bytes.TrimSpace(data[:loc[1]])
		data = data[loc[1]:]
	}
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	d.Root = root
	return d, nil
}

// Render serializes the document, restoring its XML declaration.
func (d *Document) Render() ([]byte, error) {
	var buf bytes.Buffer
	if len(d.prolog) > 0 {
		buf.Write(d.prolog)
		buf.WriteByte('\n')
	}
	if err := html.Render(&buf, d.Root); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RewriteDocument replaces the content of every element named in elements
// with the bionic rendering of its flattened text. Elements are visited in
// document order and share palette, so colours keep cycling across element
// boundaries. Markup nested inside a matched element is discarded; a match
// nested inside an earlier match is skipped since its text was already
// rendered by the ancestor.
func RewriteDocument(doc *html.Node, r Renderer, palette *Palette, elements []string) error {
	set := newElementSet(elements)

	var matches []*html.Node
	collectElements(doc, set, &matches)

	for _, n := range matches {
		if !isAttached(n, doc) {
			continue
		}
		text := flattenText(n)
		fragment := r.Render(text, palette)
		nodes, err := html.ParseFragment(strings.NewReader(fragment), n)
		if err != nil {
			return fmt.Errorf("bionic: parse rendered <%s> content: %w", n.Data, err)
		}
		for c := n.FirstChild; c != nil; c = n.FirstChild {
			n.RemoveChild(c)
		}
		for _, c := range nodes {
			n.AppendChild(c)
		}
	}
	return nil
}

// collectElements performs a depth-first search for nodes matching set.
func collectElements(n *html.Node, set elementSet, out *[]*html.Node) {
	if set.match(n) {
		*out = append(*out, n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectElements(c, set, out)
	}
}

// isAttached reports whether n is still reachable from root.
func isAttached(n, root *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == root {
			return true
		}
	}
	return false
}

// flattenText concatenates the text nodes below n without any markup.
func flattenText(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return buf.String()
}

// RewriteOptions controls RewriteFile.
type RewriteOptions struct {
	Renderer Renderer
	Palette  []string
	Elements []string
}

// RewriteFile parses the markup file at path, rewrites it with a fresh
// palette and writes the result back in place.
func RewriteFile(path string, opts RewriteOptions) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("bionic: stat %s: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("bionic: read %s: %w", path, err)
	}

	doc, err := ParseDocument(data)
	if err != nil {
		return fmt.Errorf("bionic: parse %s: %w", path, err)
	}

	elements := opts.Elements
	if elements == nil {
		elements = DefaultElements
	}
	if err := RewriteDocument(doc.Root, opts.Renderer, NewPalette(opts.Palette), elements); err != nil {
		return fmt.Errorf("bionic: rewrite %s: %w", path, err)
	}

	out, err := doc.Render()
	if err != nil {
		return fmt.Errorf("bionic: render %s: %w", path, err)
	}
	if err := replaceFile(path, out, info.Mode().Perm()); err != nil {
		return fmt.Errorf("bionic: write %s: %w", path, err)
	}
	return nil
}

// replaceFile writes data to a temporary sibling of path and renames it over
// path, so a failed write leaves the original file untouched.
func replaceFile(path string, data []byte, perm os.FileMode) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".bionic-*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Chmod(perm); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
