package matching

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
)

// Glob reports whether path matches a doublestar pattern such as
// "/api/**" or "/static/*.css".
func Glob(pattern, path string) (bool, error) {
	ok, err := doublestar.Match(pattern, path)
	if err != nil {
		return false, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
	}
	return ok, nil
}
