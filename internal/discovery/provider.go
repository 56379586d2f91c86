package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalProject names runs found under a relative literal pattern such as ./runs.
const LocalProject = "local"

// Root is a directory whose immediate subdirectories are runs.
type Root struct {
	Project string
	Dir     string
}

// FS is the slice of the filesystem the scanner needs. OSFS is the real one;
// tests substitute a fake.
type FS interface {
	Glob(pattern string) ([]string, error)
	IsDir(path string) bool
	// SubDirs returns the names of the immediate subdirectories of dir.
	SubDirs(dir string) ([]string, error)
	// Resolve returns the canonical absolute path, following symlinks.
	Resolve(path string) (string, error)
}

// OSFS implements FS on the host filesystem.
type OSFS struct{}

func (OSFS) Glob(pattern string) ([]string, error) {
	return filepath.Glob(pattern)
}

func (OSFS) IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (OSFS) SubDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
			continue
		}
		// Symlinked run directories count too.
		if e.Type()&os.ModeSymlink != 0 {
			if info, err := os.Stat(filepath.Join(dir, e.Name())); err == nil && info.IsDir() {
				names = append(names, e.Name())
			}
		}
	}
	return names, nil
}

func (OSFS) Resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// PathProvider maps filesystem state to the run roots of one pattern.
type PathProvider interface {
	Pattern() string
	Roots(fsys FS) ([]Root, error)
}

// ParsePattern builds the provider for a literal path or a glob with exactly
// one wildcard segment, e.g. "../*/runs". The wildcard segment names the project.
func ParsePattern(pattern string) (PathProvider, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, fmt.Errorf("empty path pattern")
	}

	cleaned := filepath.Clean(pattern)
	segments := strings.Split(filepath.ToSlash(cleaned), "/")

	wildcard := -1
	for i, seg := range segments {
		if !hasMeta(seg) {
			continue
		}
		if wildcard >= 0 {
			return nil, fmt.Errorf("invalid path pattern %q: only one wildcard segment is allowed", pattern)
		}
		wildcard = i
	}

	if wildcard < 0 {
		return &literalProvider{pattern: pattern, dir: cleaned}, nil
	}
	if _, err := filepath.Match(cleaned, ""); err != nil {
		return nil, fmt.Errorf("invalid path pattern %q: %w", pattern, err)
	}
	return &globProvider{pattern: pattern, glob: cleaned, segment: wildcard}, nil
}

func hasMeta(s string) bool {
	return strings.ContainsAny(s, `*?[`)
}

type literalProvider struct {
	pattern string
	dir     string
}

func (p *literalProvider) Pattern() string { return p.pattern }

func (p *literalProvider) Roots(fsys FS) ([]Root, error) {
	if !fsys.IsDir(p.dir) {
		return nil, nil
	}
	return []Root{{Project: p.project(fsys), Dir: p.dir}}, nil
}

func (p *literalProvider) project(fsys FS) string {
	parent := filepath.Dir(p.dir)
	if parent == "." {
		return LocalProject
	}
	resolved, err := fsys.Resolve(parent)
	if err != nil {
		return filepath.Base(parent)
	}
	return filepath.Base(resolved)
}

type globProvider struct {
	pattern string
	glob    string
	segment int
}

func (p *globProvider) Pattern() string { return p.pattern }

func (p *globProvider) Roots(fsys FS) ([]Root, error) {
	matches, err := fsys.Glob(p.glob)
	if err != nil {
		return nil, err
	}

	var roots []Root
	for _, m := range matches {
		if !fsys.IsDir(m) {
			continue
		}
		segments := strings.Split(filepath.ToSlash(filepath.Clean(m)), "/")
		project := filepath.Base(m)
		if p.segment < len(segments) {
			project = segments[p.segment]
		}
		roots = append(roots, Root{Project: project, Dir: m})
	}
	return roots, nil
}
