package utils

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
)

// uploadExtensions are the file types the codec accepts
var uploadExtensions = []string{"jpg", "jpeg", "png", "gif", "webp"}

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// GetFileExtension returns the lower-cased extension without the dot
func GetFileExtension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

// IsImageFile checks if a file has an uploadable image extension
func IsImageFile(filename string) bool {
	return lo.Contains(uploadExtensions, GetFileExtension(filename))
}

// GenerateOutputFilename builds <outputDir>/<prefix><name><suffix>.<format>
func GenerateOutputFilename(inputFile, outputDir, prefix, suffix, format string) string {
	baseName := filepath.Base(inputFile)
	nameWithoutExt := strings.TrimSuffix(baseName, filepath.Ext(baseName))

	if format == "" {
		format = "json"
	}

	return filepath.Join(outputDir, fmt.Sprintf("%s%s%s.%s", prefix, nameWithoutExt, suffix, format))
}

// RelativeOutputFilename names the output for an input found under root.
// The path relative to root is folded into the name, so inputs sharing a base
// name in different subdirectories do not collide.
func RelativeOutputFilename(root, inputFile, outputDir, suffix, format string) string {
	rel, err := filepath.Rel(root, inputFile)
	if root == "" || err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(inputFile)
	}
	return GenerateOutputFilename(SanitizeFilename(rel), outputDir, "", suffix, format)
}

// ListImageFiles recursively lists uploadable image files in a directory, in
// lexical order
func ListImageFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsImageFile(path) {
			files = append(files, path)
		}
		return nil
	})

	return files, err
}

// DirExists checks if a directory exists
func DirExists(dirname string) bool {
	info, err := os.Stat(dirname)
	return err == nil && info.IsDir()
}

// SanitizeFilename replaces characters that are invalid in file names
func SanitizeFilename(filename string) string {
	replacer := strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
		"\"", "_", "<", "_", ">", "_", "|", "_",
	)
	return strings.Trim(replacer.Replace(filename), " .")
}

// FormatFileSize formats a byte count in human-readable form
func FormatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}

	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
