package fs

import "strings"

// Clean normalizes an absolute path: collapses "//" and "." segments,
// resolves ".." lexically, and strips any trailing slash (except for the
// root "/" itself). It does not touch the filesystem.
func Clean(p string) string {
	if p == "" {
		return "/"
	}
	abs := strings.HasPrefix(p, "/")
	parts := strings.Split(p, "/")
	var out []string
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, part)
		}
	}
	joined := strings.Join(out, "/")
	if abs {
		return "/" + joined
	}
	if joined == "" {
		return "."
	}
	return joined
}

// IsAbs reports whether p is an absolute path.
func IsAbs(p string) bool { return strings.HasPrefix(p, "/") }

// Join joins path components with "/" and cleans the result.
func Join(parts ...string) string {
	return Clean(strings.Join(parts, "/"))
}

// Split splits a cleaned absolute path into its directory and base name,
// e.g. "/a/b/c" -> ("/a/b", "c"); "/a" -> ("/", "a"); "/" -> ("/", "").
func Split(p string) (dir, name string) {
	p = Clean(p)
	if p == "/" {
		return "/", ""
	}
	idx := strings.LastIndex(p, "/")
	name = p[idx+1:]
	if idx == 0 {
		dir = "/"
	} else {
		dir = p[:idx]
	}
	return dir, name
}

// Dir returns the directory part of p, as Split.
func Dir(p string) string { dir, _ := Split(p); return dir }

// Base returns the final component of p, as Split.
func Base(p string) string { _, name := Split(p); return name }

// Components splits a cleaned absolute path into its non-empty components,
// e.g. "/a/b/c" -> ["a","b","c"]; "/" -> [].
func Components(p string) []string {
	p = Clean(p)
	if p == "/" {
		return nil
	}
	return strings.Split(strings.TrimPrefix(p, "/"), "/")
}

// HasPrefixComponents reports whether prefix path-prefixes p at a component
// boundary: "/a/b" prefixes "/a/bc" only if "/a/b" is itself "/a/bc" or is
// followed by a "/" in p. Used by the mount router's longest-prefix match
// (spec §4.1).
func HasPrefixComponents(p, prefix string) bool {
	p, prefix = Clean(p), Clean(prefix)
	if prefix == "/" {
		return true
	}
	if p == prefix {
		return true
	}
	return strings.HasPrefix(p, prefix+"/")
}
