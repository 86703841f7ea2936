package engine

import (
	"path"
	"path/filepath"
	"strings"
)

// MatchPath reports whether file matches a glob pattern. A relative pattern
// matches from the right, component by component, so "*.py" matches
// "src/app/main.py" and "app/*.py" matches "src/app/main.py". An absolute
// pattern must match the whole path. Components use path.Match syntax.
func MatchPath(pattern, file string) bool {
	if pattern == "" || file == "" {
		return false
	}
	pattern = filepath.ToSlash(pattern)
	file = filepath.ToSlash(file)

	absPattern := strings.HasPrefix(pattern, "/")
	if absPattern && !strings.HasPrefix(file, "/") {
		return false
	}

	pparts := splitPath(pattern)
	fparts := splitPath(file)
	if len(pparts) == 0 || len(pparts) > len(fparts) {
		return false
	}
	if absPattern && len(pparts) != len(fparts) {
		return false
	}

	offset := len(fparts) - len(pparts)
	for i, p := range pparts {
		ok, err := path.Match(p, fparts[offset+i])
		if err != nil || !ok {
			return false
		}
	}
	return true
}

func splitPath(p string) []string {
	var parts []string
	for _, s := range strings.Split(p, "/") {
		if s != "" && s != "." {
			parts = append(parts, s)
		}
	}
	return parts
}
