package bionic

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// opfPackage is the subset of the package document used to describe a book
// in progress logs.
type opfPackage struct {
	XMLName  xml.Name `xml:"package"`
	Version  string   `xml:"version,attr"`
	Metadata struct {
		Titles    []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ title"`
		Creators  []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ creator"`
		Languages []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ language"`
	} `xml:"metadata"`
	Manifest struct {
		Items []opfManifestItem `xml:"item"`
	} `xml:"manifest"`
}

// opfDCElement holds a Dublin Core element value.
type opfDCElement struct {
	Value string `xml:",chardata"`
	ID    string `xml:"id,attr"`
}

// opfManifestItem represents a single <item> in the manifest.
type opfManifestItem struct {
	ID        string `xml:"id,attr"`
	Href      string `xml:"href,attr"`
	MediaType string `xml:"media-type,attr"`
}

// parseOPF parses the OPF file content.
func parseOPF(data []byte) (*opfPackage, error) {
	data = preprocessHTMLEntities(stripBOM(data))

	var pkg opfPackage
	if err := xml.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("bionic: parse OPF: %w", err)
	}
	if pkg.Version == "" {
		pkg.Version = "2.0"
	}
	return &pkg, nil
}

// title returns the first non-empty dc:title.
func (p *opfPackage) title() string {
	return firstValue(p.Metadata.Titles)
}

// language returns the first non-empty dc:language.
func (p *opfPackage) language() string {
	return firstValue(p.Metadata.Languages)
}

// authors returns every non-empty dc:creator in document order.
func (p *opfPackage) authors() []string {
	var out []string
	for _, c := range p.Metadata.Creators {
		if v := strings.TrimSpace(c.Value); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// markupItems counts manifest items that are HTML or XHTML documents.
func (p *opfPackage) markupItems() int {
	n := 0
	for _, it := range p.Manifest.Items {
		switch strings.ToLower(strings.TrimSpace(it.MediaType)) {
		case "application/xhtml+xml", "text/html":
			n++
		}
	}
	return n
}

func firstValue(elems []opfDCElement) string {
	for _, e := range elems {
		if v := strings.TrimSpace(e.Value); v != "" {
			return v
		}
	}
	return ""
}
