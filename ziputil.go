package bionic

import (
	"archive/zip"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/flate"
)

// maxDecompressSize is the maximum allowed decompressed size for a single ZIP entry.
// This guards against zip bomb attacks. Defaults to 256 MB.
const maxDecompressSize int64 = 256 * 1024 * 1024

// mimetypeEntry is the OCF entry that must come first, stored.
const mimetypeEntry = "mimetype"

// findFileInsensitive looks up a ZIP entry by path, first trying an exact match,
// then falling back to a case-insensitive comparison.
// Returns nil if no match is found.
func findFileInsensitive(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	lower := strings.ToLower(name)
	for _, f := range zr.File {
		if strings.ToLower(f.Name) == lower {
			return f
		}
	}
	return nil
}

// isSafePath checks whether p is a safe ZIP-internal path that does not
// escape the archive root via path traversal (e.g., "../../../etc/passwd").
func isSafePath(p string) bool {
	cleaned := path.Clean(strings.ReplaceAll(p, `\`, "/"))
	if strings.HasPrefix(cleaned, "/") {
		return false
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return false
	}
	// Drive-letter names such as "C:/x" are absolute on Windows.
	if len(cleaned) >= 2 && cleaned[1] == ':' {
		return false
	}
	return true
}

// stripBOM removes a leading UTF-8 BOM (0xEF 0xBB 0xBF) from data, if present.
func stripBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}

// readZipFile reads the full contents of a ZIP entry.
func readZipFile(f *zip.File) ([]byte, error) {
	return readZipFileWithLimit(f, maxDecompressSize)
}

// readZipFileWithLimit reads a ZIP entry, refusing unsafe names and
// entries whose declared or actual size exceeds limit.
func readZipFileWithLimit(f *zip.File, limit int64) ([]byte, error) {
	if !isSafePath(f.Name) {
		return nil, fmt.Errorf("%w: %s", ErrUnsafePath, f.Name)
	}

	if f.UncompressedSize64 > uint64(limit) {
		return nil, fmt.Errorf("bionic: zip entry %s too large: %d bytes (max %d)", f.Name, f.UncompressedSize64, limit)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("bionic: open zip entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	// Read up to limit+1 to detect if the actual decompressed data
	// exceeds the limit (the declared size might be wrong/forged).
	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("bionic: read zip entry %s: %w", f.Name, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("bionic: zip entry %s decompressed size exceeds limit (%d bytes)", f.Name, limit)
	}

	return data, nil
}

// Unpack extracts every entry of the ZIP archive at src into dst,
// preserving relative paths and creating directories as needed. It returns
// the archive's explicit directory entries ("OEBPS/") so Pack can write
// them back.
func Unpack(src, dst string) (dirs []string, err error) {
	return unpackWithLimit(src, dst, maxDecompressSize)
}

func unpackWithLimit(src, dst string, limit int64) ([]string, error) {
	zrc, err := zip.OpenReader(src)
	if err != nil {
		return nil, fmt.Errorf("bionic: open %s: %w", src, err)
	}
	defer zrc.Close()

	if err := os.MkdirAll(dst, 0o755); err != nil {
		return nil, fmt.Errorf("bionic: create %s: %w", dst, err)
	}

	var dirs []string
	for _, f := range zrc.File {
		if err := extractEntry(f, dst, limit); err != nil {
			return nil, err
		}
		if isDirEntry(f) {
			if name := path.Clean(strings.ReplaceAll(f.Name, `\`, "/")); name != "." {
				dirs = append(dirs, name+"/")
			}
		}
	}
	return dirs, nil
}

func isDirEntry(f *zip.File) bool {
	return f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/")
}

func extractEntry(f *zip.File, dst string, limit int64) error {
	if !isSafePath(f.Name) {
		return fmt.Errorf("%w: %s", ErrUnsafePath, f.Name)
	}
	target := filepath.Join(dst, filepath.FromSlash(path.Clean(strings.ReplaceAll(f.Name, `\`, "/"))))

	if isDirEntry(f) {
		if err := os.MkdirAll(target, 0o755); err != nil {
			return fmt.Errorf("bionic: create %s: %w", target, err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("bionic: create %s: %w", filepath.Dir(target), err)
	}

	data, err := readZipFileWithLimit(f, limit)
	if err != nil {
		return err
	}
	perm := f.Mode().Perm()
	if perm == 0 {
		perm = 0o644
	}
	if err := os.WriteFile(target, data, perm|0o200); err != nil {
		return fmt.Errorf("bionic: write %s: %w", target, err)
	}
	return nil
}

// Pack writes every regular file under srcDir into a ZIP archive at dst,
// with slash-separated names relative to srcDir. Directories get an entry of
// their own when they are listed in dirs or are empty. A root "mimetype" file is
// written first and stored uncompressed as OCF requires; everything else is
// deflated at best compression.
//
// Recoverable problems (a file vanishing between enumeration and open,
// symlinks and other non-regular entries) are skipped and returned as
// warnings. The archive is built in a temporary sibling of dst and renamed
// into place only when complete.
func Pack(srcDir, dst string, dirs []string) (warnings []string, err error) {
	explicit := make(map[string]bool, len(dirs))
	for _, d := range dirs {
		explicit[d] = true
	}

	var names []string
	err = filepath.WalkDir(srcDir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) && p != srcDir {
				warnings = append(warnings, fmt.Sprintf("skipped %s: %v", p, walkErr))
				return nil
			}
			return walkErr
		}
		if d.IsDir() && p == srcDir {
			return nil
		}
		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := filepath.ToSlash(rel) + "/"
			if explicit[name] {
				names = append(names, name)
			} else if children, err := os.ReadDir(p); err == nil && len(children) == 0 {
				names = append(names, name)
			}
			return nil
		}
		if !d.Type().IsRegular() {
			warnings = append(warnings, fmt.Sprintf("skipped non-regular file %s", filepath.ToSlash(rel)))
			return nil
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return warnings, fmt.Errorf("bionic: scan %s: %w", srcDir, err)
	}
	orderEntries(names)

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".bionic-*.tmp")
	if err != nil {
		return warnings, fmt.Errorf("bionic: create output: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	zw := zip.NewWriter(tmp)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestCompression)
	})

	for _, name := range names {
		skipped, werr := addFile(zw, srcDir, name)
		if werr != nil {
			return warnings, werr
		}
		if skipped != "" {
			warnings = append(warnings, skipped)
		}
	}

	if err = zw.Close(); err != nil {
		return warnings, fmt.Errorf("bionic: finish archive: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return warnings, fmt.Errorf("bionic: close output: %w", err)
	}
	if err = os.Rename(tmpName, dst); err != nil {
		return warnings, fmt.Errorf("bionic: move output into place: %w", err)
	}
	return warnings, nil
}

// orderEntries moves the root mimetype entry to the front, keeping the
// lexical order of the rest.
func orderEntries(names []string) {
	for i, n := range names {
		if n == mimetypeEntry {
			copy(names[1:i+1], names[:i])
			names[0] = mimetypeEntry
			return
		}
	}
}

// addFile copies one file into zw. A file that disappeared since the scan
// is reported through skipped rather than as an error.
func addFile(zw *zip.Writer, srcDir, name string) (skipped string, err error) {
	if strings.HasSuffix(name, "/") {
		return addDir(zw, srcDir, name)
	}
	f, err := os.Open(filepath.Join(srcDir, filepath.FromSlash(name)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Sprintf("skipped %s: file no longer exists", name), nil
		}
		return "", fmt.Errorf("bionic: open %s: %w", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("bionic: stat %s: %w", name, err)
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return "", fmt.Errorf("bionic: header for %s: %w", name, err)
	}
	if name == mimetypeEntry {
		return "", addStored(zw, f, name)
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return "", fmt.Errorf("bionic: add %s: %w", name, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return "", fmt.Errorf("bionic: write %s: %w", name, err)
	}
	return "", nil
}

// addDir writes a directory entry. Directory entries carry no data.
func addDir(zw *zip.Writer, srcDir, name string) (skipped string, err error) {
	info, err := os.Stat(filepath.Join(srcDir, filepath.FromSlash(name)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Sprintf("skipped %s: directory no longer exists", name), nil
		}
		return "", fmt.Errorf("bionic: stat %s: %w", name, err)
	}
	hdr := &zip.FileHeader{Name: name, Method: zip.Store, Modified: info.ModTime()}
	hdr.SetMode(info.Mode())
	if _, err := zw.CreateHeader(hdr); err != nil {
		return "", fmt.Errorf("bionic: add %s: %w", name, err)
	}
	return "", nil
}

// addStored writes r as an uncompressed entry without a data descriptor or
// extra fields, the form readers expect for the OCF mimetype file.
func addStored(zw *zip.Writer, r io.Reader, name string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("bionic: read %s: %w", name, err)
	}
	hdr := &zip.FileHeader{
		Name:               name,
		Method:             zip.Store,
		CRC32:              crc32.ChecksumIEEE(data),
		CompressedSize64:   uint64(len(data)),
		UncompressedSize64: uint64(len(data)),
	}
	w, err := zw.CreateRaw(hdr)
	if err != nil {
		return fmt.Errorf("bionic: add %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("bionic: write %s: %w", name, err)
	}
	return nil
}
