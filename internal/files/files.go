// Package files serves artifacts from inside a run directory.
package files

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	rberrors "github.com/imishinist/runboard/internal/errors"
)

// File is an artifact read from a run directory. Data is the file's exact bytes.
type File struct {
	Name        string
	Path        string
	ContentType string
	ModTime     time.Time
	Data        []byte
}

// Resolve maps rel to a canonical path strictly inside runDir. Absolute paths,
// ".." segments and symlinks that lead outside the run are Traversal errors,
// checked before anything at the target is touched. A missing file or a
// directory is NotFound.
func Resolve(runDir, rel string) (string, error) {
	if rel == "" || filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") || strings.HasPrefix(rel, `\`) {
		return "", rberrors.NewTraversal(rel)
	}
	for _, seg := range strings.FieldsFunc(rel, isSeparator) {
		if seg == ".." {
			return "", rberrors.NewTraversal(rel)
		}
	}

	root, err := canonical(runDir)
	if err != nil {
		return "", rberrors.NewNotFound("run directory")
	}

	target, err := filepath.EvalSymlinks(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		if os.IsNotExist(err) {
			return "", rberrors.NewNotFound(rel)
		}
		return "", fmt.Errorf("failed to resolve %s: %w", rel, err)
	}
	if !within(root, target) {
		return "", rberrors.NewTraversal(rel)
	}

	info, err := os.Stat(target)
	if err != nil || !info.Mode().IsRegular() {
		return "", rberrors.NewNotFound(rel)
	}
	return target, nil
}

// Read resolves rel and loads the file.
func Read(runDir, rel string) (*File, error) {
	path, err := Resolve(runDir, rel)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, rberrors.NewNotFound(rel)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rel, err)
	}

	return &File{
		Name:        filepath.Base(path),
		Path:        path,
		ContentType: contentType(path, data),
		ModTime:     info.ModTime(),
		Data:        data,
	}, nil
}

func canonical(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

func isSeparator(r rune) bool {
	return r == '/' || r == '\\'
}

func contentType(path string, data []byte) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}
