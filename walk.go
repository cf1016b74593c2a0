package bionic

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// DefaultExtensions are the markup file extensions rewritten by default.
var DefaultExtensions = []string{".html", ".xhtml"}

// FindDocuments recursively searches root for regular files whose extension
// is one of extensions (compared case-insensitively) and returns their
// paths in lexical walk order. Directories are descended at any depth;
// symlinks and other special files are ignored.
func FindDocuments(root string, extensions []string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if hasExtension(d.Name(), extensions) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func hasExtension(name string, extensions []string) bool {
	ext := filepath.Ext(name)
	if ext == "" {
		return false
	}
	for _, want := range extensions {
		if strings.EqualFold(ext, want) {
			return true
		}
	}
	return false
}
