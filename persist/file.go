package persist

import (
	"fmt"
	"os"
	"strings"
)

// Load reads the document at path. A missing file is not an error: it is a
// new, empty, unsaved document (existing=false). Any other read failure is
// fatal and surfaces to the caller.
func Load(path string) (text string, existing bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), true, nil
}

// WriteFileAtomic writes text to path as UTF-8, via a temp file in the
// same directory followed by an atomic rename.
func WriteFileAtomic(path, text string) error {
	tmpFile := path + ".tmp"
	if err := os.WriteFile(tmpFile, []byte(text), 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpFile, path); err != nil {
		os.Remove(tmpFile) // Clean up on error
		return err
	}
	return nil
}

// SplitLines splits text on universal newline boundaries (\r\n or \n).
func SplitLines(text string) []string {
	return strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
}
