package bionic

import (
	"archive/zip"
	"fmt"
	"path/filepath"
	"strings"
)

// expectedMimetype is the required content of the "mimetype" file in a valid ePub.
const expectedMimetype = "application/epub+zip"

// BookInfo is what inspection learned about a container before it is
// unpacked. Only DRM is fatal; everything else is informational.
type BookInfo struct {
	// Entries is the number of entries in the archive.
	Entries int

	// OPFPath is the archive path of the package document, if found.
	OPFPath string

	// Version is the ePub version declared by the package document.
	Version string

	Title    string
	Authors  []string
	Language string

	// ManifestDocuments counts HTML/XHTML items listed in the manifest.
	ManifestDocuments int

	// ObfuscatedFonts lists font resources using IDPF or Adobe obfuscation.
	ObfuscatedFonts []string

	// Warnings collects non-fatal structural problems.
	Warnings []string
}

// Inspect opens the container at path and checks that it can be
// rewritten. It returns ErrDRMProtected for encrypted books.
func Inspect(path string) (*BookInfo, error) {
	zrc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("bionic: open %s: %w", path, err)
	}
	defer zrc.Close()
	return inspectReader(&zrc.Reader)
}

func inspectReader(zr *zip.Reader) (*BookInfo, error) {
	info := &BookInfo{Entries: len(zr.File)}
	info.checkMimetype(zr)

	rep, err := checkDRM(zr)
	if err != nil {
		return nil, err
	}
	if rep.protected() {
		return nil, fmt.Errorf("bionic: %s: %w", rep.Scheme, ErrDRMProtected)
	}
	info.ObfuscatedFonts = rep.ObfuscatedFonts
	if len(rep.ObfuscatedFonts) > 0 {
		info.warnf("font obfuscation detected on %d resource(s); fonts are copied unchanged", len(rep.ObfuscatedFonts))
	}

	opfPath, err := locateOPF(zr)
	if err != nil {
		info.warnf("%v", err)
		return info, nil
	}
	info.OPFPath = opfPath

	f := findFileInsensitive(zr, opfPath)
	if f == nil {
		info.warnf("package document %s listed but missing", opfPath)
		return info, nil
	}
	data, err := readZipFile(f)
	if err != nil {
		info.warnf("read package document: %v", err)
		return info, nil
	}
	pkg, err := parseOPF(data)
	if err != nil {
		info.warnf("%v", err)
		return info, nil
	}

	info.Version = pkg.Version
	info.Title = pkg.title()
	info.Authors = pkg.authors()
	info.Language = pkg.language()
	info.ManifestDocuments = pkg.markupItems()
	return info, nil
}

// checkMimetype checks that the first ZIP entry is named "mimetype" and
// contains "application/epub+zip". Deviations are recorded as warnings.
func (b *BookInfo) checkMimetype(zr *zip.Reader) {
	if len(zr.File) == 0 {
		b.warnf("empty ZIP archive; mimetype entry missing")
		return
	}
	first := zr.File[0]
	if first.Name != mimetypeEntry {
		b.warnf("first ZIP entry is %q, not %q; the output will put it first", first.Name, mimetypeEntry)
		return
	}
	data, err := readZipFile(first)
	if err != nil {
		b.warnf("cannot read mimetype entry: %v", err)
		return
	}
	if got := strings.TrimSpace(string(data)); got != expectedMimetype {
		b.warnf("unexpected mimetype: %q", got)
	}
}

func (b *BookInfo) warnf(format string, args ...any) {
	b.Warnings = append(b.Warnings, fmt.Sprintf(format, args...))
}

// OutputName returns the file name the transformed copy of input gets:
// the mode prefix, the input's base name, and the .epub extension.
func OutputName(input string, mode Mode) string {
	base := filepath.Base(input)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return mode.Prefix() + base + ".epub"
}
