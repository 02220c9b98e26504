package orchestrator

import (
	"fmt"
	"path"
	"strings"
)

// sanitizeRelativePath validates a FileDescriptor's RelativePath for a
// folder transfer. It never trusts the sender's raw string: reject
// absolute paths, parent-directory components, NUL and other control
// characters, and normalize separators (§3 File descriptor).
func sanitizeRelativePath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	for _, r := range p {
		if r == 0 || r < 0x20 {
			return "", fmt.Errorf("path contains a control character")
		}
	}

	clean := path.Clean(strings.ReplaceAll(p, "\\", "/"))
	if path.IsAbs(clean) {
		return "", fmt.Errorf("path %q is absolute", p)
	}
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("path %q escapes the transfer root", p)
	}
	for _, part := range strings.Split(clean, "/") {
		if part == ".." {
			return "", fmt.Errorf("path %q contains a parent-directory component", p)
		}
	}
	return clean, nil
}
