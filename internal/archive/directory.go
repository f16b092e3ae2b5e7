package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// ErrDirectory wraps failures to list or read the archive directory.
var ErrDirectory = errors.New("archive directory")

// File is one archive file read from disk.
type File struct {
	Name    string
	Content string
}

// Directory is the input set of a run: archive files in enumeration order and
// the colleague directory text.
type Directory struct {
	Files      []File
	Colleagues string
}

// LoadDirectory reads every regular file in dir except colleaguesFile, which is
// read whole as free text instead. A missing colleague file yields empty text.
// Files are returned in lexical name order. Subdirectories and dotfiles are
// not archives and are skipped.
func LoadDirectory(dir, colleaguesFile string) (*Directory, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrDirectory, dir, err)
	}

	out := &Directory{}
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || strings.HasPrefix(name, ".") {
			continue
		}

		content, err := readText(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}

		if name == colleaguesFile {
			out.Colleagues = content
			continue
		}
		out.Files = append(out.Files, File{Name: name, Content: content})
	}

	return out, nil
}

func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s disappeared during listing: %w", ErrDirectory, path, err)
		}
		return "", fmt.Errorf("%w: read %s: %w", ErrDirectory, path, err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s is not valid UTF-8", ErrDirectory, path)
	}
	return string(data), nil
}
