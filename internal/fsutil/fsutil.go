// Package fsutil holds the directory-tree helpers shared by the patch and
// rename engines. Paths handed in and out are slash-separated and relative to
// a tree root.
package fsutil

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ListFiles returns the slash-separated paths of all regular files below
// root, sorted lexically.
func ListFiles(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}
	var files []string
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// ReadFile reads rel below root and returns its content and mode.
func ReadFile(root, rel string) ([]byte, fs.FileMode, error) {
	path := filepath.Join(root, filepath.FromSlash(rel))
	info, err := os.Stat(path)
	if err != nil {
		return nil, 0, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	return data, info.Mode(), nil
}

// WriteFile writes content to rel below root, creating parent directories.
// A zero permission falls back to 0644.
func WriteFile(root, rel string, content []byte, perm fs.FileMode) error {
	target := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", rel, err)
	}
	perm &= fs.ModePerm
	if perm == 0 {
		perm = 0o644
	}
	if err := os.WriteFile(target, content, perm); err != nil {
		return fmt.Errorf("failed to write %s: %w", rel, err)
	}
	if err := os.Chmod(target, perm); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", rel, err)
	}
	return nil
}

// CopyFile copies rel from srcRoot to the same relative path below dstRoot.
func CopyFile(srcRoot, dstRoot, rel string) error {
	data, mode, err := ReadFile(srcRoot, rel)
	if err != nil {
		return err
	}
	return WriteFile(dstRoot, rel, data, mode)
}

// Remove deletes rel below root; a missing file is not an error.
func Remove(root, rel string) error {
	err := os.Remove(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ResetDir removes everything inside dir and recreates it. The filesystem
// root, the home directory and any directory holding the working directory
// are refused.
func ResetDir(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if err := checkResettable(resolve(abs)); err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

func checkResettable(abs string) error {
	if filepath.Dir(abs) == abs {
		return fmt.Errorf("refusing to reset filesystem root %s", abs)
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" && resolve(filepath.Clean(home)) == abs {
		return fmt.Errorf("refusing to reset home directory %s", abs)
	}
	if wd, err := os.Getwd(); err == nil && Within(resolve(wd), abs) {
		return fmt.Errorf("refusing to reset %s, which contains the working directory", abs)
	}
	return nil
}

// resolve follows symlinks when path exists.
func resolve(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return path
}

// CheckDisjoint rejects an output directory that equals, contains or lies
// inside one of the inputs.
func CheckDisjoint(output string, inputs ...string) error {
	out, err := filepath.Abs(output)
	if err != nil {
		return err
	}
	for _, input := range inputs {
		in, err := filepath.Abs(input)
		if err != nil {
			return err
		}
		if Within(out, in) || Within(in, out) {
			return fmt.Errorf("output directory %s overlaps input %s", output, input)
		}
	}
	return nil
}

// Within reports whether child is parent or lies below it.
func Within(child, parent string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// SafeRel cleans a slash-separated relative path and rejects absolute paths
// and paths escaping the root.
func SafeRel(rel string) (string, error) {
	cleaned := filepath.ToSlash(filepath.Clean(filepath.FromSlash(rel)))
	if cleaned == "." || strings.HasPrefix(cleaned, "/") || cleaned == ".." || strings.HasPrefix(cleaned, "../") || filepath.IsAbs(rel) {
		return "", fmt.Errorf("unsafe path %q", rel)
	}
	return cleaned, nil
}
