package bionic

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"strings"
)

// containerPath is the well-known location of container.xml in an ePub archive.
const containerPath = "META-INF/container.xml"

// opfMediaType identifies the package document among container rootfiles.
const opfMediaType = "application/oebps-package+xml"

// ocfContainer models META-INF/container.xml.
type ocfContainer struct {
	XMLName   xml.Name `xml:"container"`
	RootFiles []struct {
		FullPath  string `xml:"full-path,attr"`
		MediaType string `xml:"media-type,attr"`
	} `xml:"rootfiles>rootfile"`
}

// locateOPF returns the archive path of the package document. It prefers
// the container.xml rootfile with the OPF media type, then any rootfile,
// and without container.xml falls back to the first ".opf" entry.
func locateOPF(zr *zip.Reader) (string, error) {
	f := findFileInsensitive(zr, containerPath)
	if f == nil {
		for _, e := range zr.File {
			if strings.HasSuffix(strings.ToLower(e.Name), ".opf") {
				return e.Name, nil
			}
		}
		return "", fmt.Errorf("bionic: no OPF file found in archive: %w", ErrInvalidEPub)
	}

	data, err := readZipFile(f)
	if err != nil {
		return "", fmt.Errorf("bionic: read container.xml: %w", err)
	}
	var c ocfContainer
	if err := xml.Unmarshal(stripBOM(data), &c); err != nil {
		return "", fmt.Errorf("bionic: parse container.xml: %w", err)
	}

	var first string
	for _, rf := range c.RootFiles {
		p := strings.TrimSpace(rf.FullPath)
		if p == "" {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(rf.MediaType), opfMediaType) {
			return p, nil
		}
		if first == "" {
			first = p
		}
	}
	if first == "" {
		return "", fmt.Errorf("bionic: container.xml names no rootfile: %w", ErrInvalidEPub)
	}
	return first, nil
}
