package matching

import "strings"

// MatchRoute checks whether path matches a route pattern and returns the
// named segments it captured.
//
// Supported segment forms:
//   - literal: "/api/users" matches only "/api/users"
//   - named: "/users/{id}" or "/users/:id" matches "/users/123" with id=123
//   - wildcard: "*" matches one segment; a trailing "*" matches the rest of
//     the path, including nothing
//
// Trailing slashes are ignored on both sides.
func MatchRoute(pattern, path string) (map[string]string, bool) {
	patternParts := splitPath(pattern)
	pathParts := splitPath(path)

	captures := make(map[string]string)
	for i, part := range patternParts {
		last := i == len(patternParts)-1
		if part == "*" && last {
			if i < len(pathParts) {
				captures["*"] = strings.Join(pathParts[i:], "/")
			}
			return captures, true
		}
		if i >= len(pathParts) {
			return nil, false
		}
		switch {
		case part == "*":
			continue
		case isNamedSegment(part):
			captures[segmentName(part)] = pathParts[i]
		case part != pathParts[i]:
			return nil, false
		}
	}

	if len(patternParts) != len(pathParts) {
		return nil, false
	}
	return captures, true
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func isNamedSegment(part string) bool {
	if strings.HasPrefix(part, ":") && len(part) > 1 {
		return true
	}
	return len(part) > 2 && strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}")
}

func segmentName(part string) string {
	if strings.HasPrefix(part, ":") {
		return part[1:]
	}
	return part[1 : len(part)-1]
}
