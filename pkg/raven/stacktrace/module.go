// module.go derives dotted module names and culprit strings from frames.

package stacktrace

import (
	"path"
	"path/filepath"
	"strings"
)

// libraryDirs are path segments under which third-party code lives.
var libraryDirs = []string{"/pkg/mod/", "/vendor/"}

// Module derives a module name such as "foo.bar:baz" from a file path.
//
// Files inside the module cache or a vendor directory are named relative to
// that directory (with "@version" suffixes dropped); files under root are
// named relative to root; anything else is named by its base name alone.
func Module(filename, root string) string {
	if filename == "" {
		return ""
	}
	slashed := filepath.ToSlash(filename)
	file := strings.TrimSuffix(path.Base(slashed), path.Ext(slashed))
	dir := path.Dir(slashed)

	for _, lib := range libraryDirs {
		if n := strings.LastIndex(dir+"/", lib); n >= 0 {
			rel := strings.Trim((dir + "/")[n+len(lib):], "/")
			return join(stripVersions(rel), file)
		}
	}

	if root != "" {
		base := strings.TrimSuffix(filepath.ToSlash(root), "/") + "/"
		if strings.HasPrefix(dir+"/", base) {
			rel := strings.Trim(strings.TrimPrefix(dir+"/", base), "/")
			return join(rel, file)
		}
	}
	return file
}

func join(rel, file string) string {
	if rel == "" {
		return file
	}
	return strings.ReplaceAll(rel, "/", ".") + ":" + file
}

func stripVersions(rel string) string {
	parts := strings.Split(rel, "/")
	for i, p := range parts {
		if at := strings.Index(p, "@"); at > 0 {
			parts[i] = p[:at]
		}
	}
	return strings.Join(parts, "/")
}

// Culprit formats the "<module> at <function>" string for a frame.
func Culprit(f Frame) string {
	switch {
	case f.Module == "" && f.Function == "":
		return "<unknown>"
	case f.Module == "":
		return "? at " + f.Function
	case f.Function == "":
		return f.Module + " at ?"
	default:
		return f.Module + " at " + f.Function
	}
}

// CulpritFrame picks the frame responsible for a failure: the last in-app frame,
// scanning from the end, or the first frame when none is in-app.
func CulpritFrame(frames []Frame) (Frame, bool) {
	if len(frames) == 0 {
		return Frame{}, false
	}
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i].InApp {
			return frames[i], true
		}
	}
	return frames[0], true
}
