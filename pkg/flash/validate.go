package flash

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	maxPortLen = 200
	maxFQBNLen = 120
)

var (
	// Word characters plus the separators serial device paths use on every
	// platform (/dev/ttyUSB0, COM3, /dev/cu.usbmodem-1420:1). Shell
	// metacharacters never match.
	portPattern = regexp.MustCompile(`^[\w\-/.:]+$`)
	fqbnPattern = regexp.MustCompile(`^[\w:.\-]+$`)
)

// ValidationError is a client-correctable input failure (HTTP 400).
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ValidatePort checks a serial port identifier against the allow-list pattern.
func ValidatePort(port string) error {
	if port == "" {
		return &ValidationError{Field: "port", Reason: "must not be empty"}
	}
	if len(port) > maxPortLen {
		return &ValidationError{Field: "port", Reason: "too long"}
	}
	if !portPattern.MatchString(port) {
		return &ValidationError{Field: "port", Reason: "contains disallowed characters"}
	}
	return nil
}

// ValidateFQBN checks an optional fully-qualified board name.
func ValidateFQBN(fqbn string) error {
	if fqbn == "" {
		return nil
	}
	if len(fqbn) > maxFQBNLen {
		return &ValidationError{Field: "fqbn", Reason: "too long"}
	}
	if !fqbnPattern.MatchString(fqbn) {
		return &ValidationError{Field: "fqbn", Reason: "contains disallowed characters"}
	}
	return nil
}

// ResolveSketch normalizes sketchPath, rejects traversal, resolves it against
// root and requires the result to be an existing regular file with an
// allow-listed extension. Returns the absolute resolved path.
func ResolveSketch(root, sketchPath string, allowedExtensions []string) (string, error) {
	if sketchPath == "" {
		return "", &ValidationError{Field: "sketchPath", Reason: "must not be empty"}
	}

	// Normalize separators first so backslash tricks collapse to one form,
	// then do a logical cleanup pass.
	normalized := path.Clean(strings.ReplaceAll(sketchPath, "\\", "/"))
	if normalized == ".." || strings.HasPrefix(normalized, "../") || strings.Contains(normalized, "/../") {
		return "", &ValidationError{Field: "sketchPath", Reason: "path traversal is not allowed"}
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", &ValidationError{Field: "sketchPath", Reason: "sketch root is not resolvable"}
	}
	resolved, err := filepath.Abs(filepath.Join(absRoot, filepath.FromSlash(normalized)))
	if err != nil {
		return "", &ValidationError{Field: "sketchPath", Reason: "path is not resolvable"}
	}
	// Second line of defense: absolute-path injection or anything else that
	// survived normalization must still land inside the root.
	if resolved != absRoot && !strings.HasPrefix(resolved, absRoot+string(filepath.Separator)) {
		return "", &ValidationError{Field: "sketchPath", Reason: "path escapes the sketch root"}
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", &ValidationError{Field: "sketchPath", Reason: "file does not exist"}
	}
	if !info.Mode().IsRegular() {
		return "", &ValidationError{Field: "sketchPath", Reason: "not a regular file"}
	}

	ext := strings.ToLower(filepath.Ext(resolved))
	for _, allowed := range allowedExtensions {
		if ext == strings.ToLower(allowed) {
			return resolved, nil
		}
	}
	return "", &ValidationError{
		Field:  "sketchPath",
		Reason: fmt.Sprintf("extension %q is not allowed (expected one of %s)", ext, strings.Join(allowedExtensions, ", ")),
	}
}
