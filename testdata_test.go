package bionic

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

// buildTestZip creates an in-memory ZIP archive from the provided files map
// (path → content) and returns a *zip.Reader over the resulting bytes.
// It calls t.Fatal on any error.
func buildTestZip(t *testing.T, files map[string]string) *zip.Reader {
	t.Helper()
	data := zipBytes(t, files)
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("buildTestZip: open reader: %v", err)
	}
	return r
}

// buildTestEPubFile writes an ePub (ZIP) archive named test.epub to a
// temporary directory and returns its path.
func buildTestEPubFile(t *testing.T, files map[string]string) string {
	t.Helper()
	return writeTestEPub(t, t.TempDir(), "test.epub", files)
}

// writeTestEPub writes files as a ZIP archive at dir/name. A "mimetype"
// entry, when present, is written first; the rest follow in lexical order.
func writeTestEPub(t *testing.T, dir, name string, files map[string]string) string {
	t.Helper()
	fp := filepath.Join(dir, name)
	if err := os.WriteFile(fp, zipBytes(t, files), 0o644); err != nil {
		t.Fatalf("writeTestEPub: write file: %v", err)
	}
	return fp
}

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	names := make([]string, 0, len(files))
	for name := range files {
		if name != mimetypeEntry {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if _, ok := files[mimetypeEntry]; ok {
		names = append([]string{mimetypeEntry}, names...)
	}

	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	for _, name := range names {
		fw, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zipBytes: create %s: %v", name, err)
		}
		if _, err := io.WriteString(fw, files[name]); err != nil {
			t.Fatalf("zipBytes: write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zipBytes: close writer: %v", err)
	}
	return buf.Bytes()
}

// readArchive returns every entry of the ZIP file at path, keyed by name.
func readArchive(t *testing.T, path string) map[string]string {
	t.Helper()
	zrc, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("readArchive: open %s: %v", path, err)
	}
	defer zrc.Close()
	out := make(map[string]string, len(zrc.File))
	for _, f := range zrc.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("readArchive: open %s: %v", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("readArchive: read %s: %v", f.Name, err)
		}
		out[f.Name] = string(data)
	}
	return out
}

const testContainerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

const testOPF = `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="uid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Test Book</dc:title>
    <dc:creator>Ada Writer</dc:creator>
    <dc:language>en</dc:language>
  </metadata>
  <manifest>
    <item id="ch1" href="Text/ch1.xhtml" media-type="application/xhtml+xml"/>
    <item id="ch2" href="Text/ch2.html" media-type="text/html"/>
    <item id="css" href="Styles/book.css" media-type="text/css"/>
  </manifest>
  <spine>
    <itemref idref="ch1"/>
    <itemref idref="ch2"/>
  </spine>
</package>`

const testChapter = `<?xml version="1.0" encoding="utf-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>Chapter</title></head>
<body>
<h1>Hi there</h1>
<div class="note">Left alone</div>
<p>Go fast</p>
</body>
</html>`

// testBookFiles returns the entries of a small, valid two-chapter ePub.
func testBookFiles() map[string]string {
	return map[string]string{
		"mimetype":               expectedMimetype,
		"META-INF/container.xml": testContainerXML,
		"OEBPS/content.opf":      testOPF,
		"OEBPS/Text/ch1.xhtml":   testChapter,
		"OEBPS/Text/ch2.html":    `<html><body><p>Read me</p></body></html>`,
		"OEBPS/Styles/book.css":  `p { margin: 0; }`,
	}
}
