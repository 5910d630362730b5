package matching

import (
	"fmt"

	"github.com/ohler55/ojg/jp"
)

// FirstJSONPath evaluates a JSONPath expression against decoded JSON data
// and returns the first value it selects, or nil when nothing matches.
func FirstJSONPath(path string, data any) (any, error) {
	x, err := jp.ParseString(path)
	if err != nil {
		return nil, fmt.Errorf("invalid JSONPath %q: %w", path, err)
	}
	if data == nil {
		return nil, nil
	}
	results := x.Get(data)
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}
