// Package fileutil provides file and path helpers shared by the pipeline stages.
package fileutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// EnsureDir creates dir and its parents if needed. Safe to call concurrently.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(dir), err)
	}
	return nil
}

// Remove deletes path (file or directory tree). A missing path is not an error.
func Remove(path string) error {
	err := os.RemoveAll(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Exists reports whether path is an existing regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// NonEmpty reports whether path is a regular file with content.
func NonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// CopyFile copies src to dst byte for byte. On failure dst is removed.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return nil
}

// NewestWithExt returns the most recently modified regular file in dir whose
// extension matches ext (case-insensitive). ok is false when none exists.
func NewestWithExt(dir, ext string) (path string, ok bool, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false, err
	}

	var newest time.Time
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ext) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if !ok || info.ModTime().After(newest) {
			path, newest, ok = filepath.Join(dir, e.Name()), info.ModTime(), true
		}
	}
	return path, ok, nil
}

var invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F]`)

// SanitizeBase strips directories and characters that are unsafe in file names.
// fallback is returned when nothing usable is left.
func SanitizeBase(name, fallback string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	trimmed := strings.TrimSpace(filepath.Base(name))
	if trimmed == "." || trimmed == "/" {
		trimmed = ""
	}
	sanitized := invalidFilenameChars.ReplaceAllString(trimmed, "_")
	sanitized = strings.Trim(sanitized, ". ")
	if sanitized == "" {
		return fallback
	}
	return sanitized
}

// StoredName is SanitizeBase that never loses the extension. A name that is
// only an extension, like ".pdf", becomes fallbackStem plus that extension.
func StoredName(name, fallbackStem string) string {
	base := SanitizeBase(name, "")
	ext := filepath.Ext(filepath.Base(strings.ReplaceAll(name, "\\", "/")))
	ext = invalidFilenameChars.ReplaceAllString(strings.TrimRight(ext, ". "), "_")
	if len(base) > len(ext) && strings.HasSuffix(strings.ToLower(base), strings.ToLower(ext)) {
		return base
	}
	return fallbackStem + ext
}

// Stem returns the sanitized file name without its extension.
func Stem(name, fallback string) string {
	base := SanitizeBase(name, fallback)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = strings.Trim(stem, ". ")
	if stem == "" {
		return fallback
	}
	return stem
}
