package bionic

import (
	"archive/zip"
	"encoding/xml"
	"strings"
)

// encryptionFilePath is the standard path for the encryption descriptor.
const encryptionFilePath = "META-INF/encryption.xml"

// sinfFilePath is the path that indicates Apple FairPlay DRM.
const sinfFilePath = "META-INF/sinf.xml"

// Font obfuscation algorithm URIs. Obfuscated fonts are copied through
// untouched, so they do not stop a rewrite.
var fontObfuscationAlgorithms = map[string]bool{
	"http://www.idpf.org/2008/embedding": true, // IDPF font obfuscation
	"http://ns.adobe.com/pdf/enc#RC":     true, // Adobe font obfuscation
}

// Known DRM namespace prefixes found in KeyInfo child elements or algorithm URIs.
var drmSignatures = []struct{ prefix, scheme string }{
	{"http://ns.adobe.com/adept", "Adobe ADEPT"},
	{"http://readium.org/2014/01/lcp", "Readium LCP"},
}

type xmlEncryption struct {
	XMLName       xml.Name `xml:"encryption"`
	EncryptedData []struct {
		EncryptionMethod struct {
			Algorithm string `xml:"Algorithm,attr"`
		} `xml:"EncryptionMethod"`
		KeyInfo struct {
			InnerXML string `xml:",innerxml"`
		} `xml:"KeyInfo"`
		CipherData struct {
			CipherReference struct {
				URI string `xml:"URI,attr"`
			} `xml:"CipherReference"`
		} `xml:"CipherData"`
	} `xml:"EncryptedData"`
}

// encryptionReport describes the encryption found in a container.
type encryptionReport struct {
	// ObfuscatedFonts lists the resources protected only by font obfuscation.
	ObfuscatedFonts []string
	// Scheme names the DRM system when the content is encrypted.
	Scheme string
}

// protected reports whether the container holds DRM-encrypted content.
func (r encryptionReport) protected() bool { return r.Scheme != "" }

// checkDRM inspects META-INF/sinf.xml and META-INF/encryption.xml. An
// unparseable encryption descriptor, or any encrypted resource that is not
// an obfuscated font, is treated as DRM.
func checkDRM(zr *zip.Reader) (encryptionReport, error) {
	var rep encryptionReport
	if findFileInsensitive(zr, sinfFilePath) != nil {
		rep.Scheme = "Apple FairPlay"
		return rep, nil
	}

	f := findFileInsensitive(zr, encryptionFilePath)
	if f == nil {
		return rep, nil
	}
	data, err := readZipFile(f)
	if err != nil {
		return rep, err
	}

	var enc xmlEncryption
	if err := xml.Unmarshal(stripBOM(data), &enc); err != nil {
		rep.Scheme = "unknown (unreadable encryption.xml)"
		return rep, nil
	}

	for _, ed := range enc.EncryptedData {
		algo := ed.EncryptionMethod.Algorithm
		if fontObfuscationAlgorithms[algo] {
			rep.ObfuscatedFonts = append(rep.ObfuscatedFonts, ed.CipherData.CipherReference.URI)
			continue
		}
		if s := drmScheme(algo); s != "" {
			rep.Scheme = s
			return rep, nil
		}
		if s := drmScheme(ed.KeyInfo.InnerXML); s != "" {
			rep.Scheme = s
			return rep, nil
		}
		rep.Scheme = "unknown (" + algo + ")"
		return rep, nil
	}
	return rep, nil
}

// drmScheme names the DRM system whose signature appears in s, or "".
func drmScheme(s string) string {
	for _, sig := range drmSignatures {
		if strings.Contains(s, sig.prefix) {
			return sig.scheme
		}
	}
	return ""
}
