// dump.go parses goroutine dumps as produced by runtime/debug.Stack.

package stacktrace

import (
	"strconv"
	"strings"
)

// ParseGoroutineDump extracts raw frames from the text of a goroutine dump,
// innermost call first. Only the first goroutine is read. Text that is not a
// dump yields no frames.
//
// A dump looks like:
//
//	goroutine 1 [running]:
//	main.doSomething(0x1)
//		/app/main.go:42 +0x123
//	created by main.main in goroutine 1
//		/app/main.go:10 +0x789
func ParseGoroutineDump(dump string) []RawFrame {
	var (
		out     []RawFrame
		pending string
		started bool
	)
	for _, line := range strings.Split(dump, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			if started && len(out) > 0 {
				break
			}
			continue
		}
		if strings.HasPrefix(line, "goroutine ") {
			if started {
				break
			}
			started = true
			continue
		}
		if strings.HasPrefix(line, "\t") {
			if pending == "" {
				continue
			}
			file, lineno, ok := parseFileLine(strings.TrimSpace(line))
			if !ok {
				pending = ""
				continue
			}
			typename, fn := splitFunction(pending)
			out = append(out, RawFrame{
				Function: fn,
				Typename: typename,
				Filename: file,
				Lineno:   lineno,
			})
			pending = ""
			continue
		}
		pending = parseFuncLine(line)
	}
	return out
}

// parseFuncLine strips call arguments and the "created by" prefix.
func parseFuncLine(line string) string {
	line = strings.TrimSpace(line)
	if rest, ok := strings.CutPrefix(line, "created by "); ok {
		if i := strings.Index(rest, " in goroutine "); i >= 0 {
			rest = rest[:i]
		}
		return rest
	}
	if strings.HasSuffix(line, ")") {
		if i := strings.LastIndex(line, "("); i > 0 {
			return line[:i]
		}
	}
	return line
}

// parseFileLine splits "/app/main.go:42 +0x123" into file and line.
func parseFileLine(s string) (string, int, bool) {
	if i := strings.LastIndex(s, " +0x"); i >= 0 {
		s = s[:i]
	}
	colon := strings.LastIndex(s, ":")
	if colon <= 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(s[colon+1:])
	if err != nil {
		return "", 0, false
	}
	return s[:colon], n, true
}
