package ubireader

import (
	"fmt"
	"path"
	"strings"
)

// joinPath appends name under parent, rejecting any component that
// would let the resulting path escape the logical root: a name of "."
// or "..", or a name containing a path separator.
func joinPath(parent, name string) (string, error) {
	if name == "." || name == ".." || strings.Contains(name, "/") {
		return "", fmt.Errorf("ubireader: unsafe path component %q under %q", name, parent)
	}

	joined := path.Join(parent, name)
	if joined != "/" && !strings.HasPrefix(joined, "/") {
		joined = "/" + joined
	}
	for _, c := range strings.Split(joined, "/") {
		if c == ".." {
			return "", fmt.Errorf("ubireader: path %q escapes root", joined)
		}
	}

	return joined, nil
}
