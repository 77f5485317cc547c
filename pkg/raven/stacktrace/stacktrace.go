// Package stacktrace resolves raw Go call stacks into source-annotated frames.
//
// Raw frames come from program counters ([FromPCs], [Callers]) or from the
// text of a goroutine dump ([ParseGoroutineDump]). A [Resolver] turns them into
// [Frame] values, classifies each frame as application or library code, and
// attaches lines of source context to application frames.
package stacktrace

import (
	"go/build"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ContextLines is the number of source lines captured on each side of a frame's line.
const ContextLines = 7

// RawFrame is a frame as captured, before any enrichment.
type RawFrame struct {
	Function string
	Typename string
	Filename string
	Lineno   int

	// Colno is the 1-based column of interest, or 0 when unknown. Go call
	// stacks carry no column, so it is only set by callers that know one.
	Colno int
}

// Frame is a resolved stack frame in the Sentry wire format.
type Frame struct {
	Function    string   `json:"function,omitempty"`
	Module      string   `json:"module,omitempty"`
	Filename    string   `json:"filename"`
	Lineno      int      `json:"lineno"`
	Typename    string   `json:"typename,omitempty"`
	PreContext  []string `json:"pre_context,omitempty"`
	ContextLine string   `json:"context_line,omitempty"`
	PostContext []string `json:"post_context,omitempty"`
	InApp       bool     `json:"in_app"`
}

// StackTracer is implemented by errors that carry the program counters of
// the place they were created.
type StackTracer interface {
	StackTrace() []uintptr
}

// Callers returns the program counters of the calling goroutine, skipping
// skip frames above the caller of Callers.
func Callers(skip int) []uintptr {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(skip+2, pcs)
	return pcs[:n]
}

// FromPCs converts program counters into raw frames, innermost call first.
func FromPCs(pcs []uintptr) []RawFrame {
	if len(pcs) == 0 {
		return nil
	}
	return fromFrames(collect(runtime.CallersFrames(pcs)))
}

// PanicFrames returns the raw frames of the panicking goroutine, starting at
// the function that panicked. It must be called from a deferred function
// while a panic is unwinding; otherwise it behaves like FromPCs(Callers(skip)).
func PanicFrames(skip int) []RawFrame {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(skip+2, pcs)
	frames := collect(runtime.CallersFrames(pcs[:n]))

	cut := -1
	for i, f := range frames {
		if f.Function == "runtime.gopanic" {
			cut = i + 1
		}
	}
	if cut >= 0 {
		// Runtime frames that raised the panic, such as sigpanic or panicmem.
		for cut < len(frames) && strings.HasPrefix(frames[cut].Function, "runtime.") {
			cut++
		}
		frames = frames[cut:]
	}
	return fromFrames(frames)
}

func collect(iter *runtime.Frames) []runtime.Frame {
	var out []runtime.Frame
	for {
		f, more := iter.Next()
		if f.Function != "" || f.File != "" {
			out = append(out, f)
		}
		if !more {
			return out
		}
	}
}

func fromFrames(frames []runtime.Frame) []RawFrame {
	if len(frames) == 0 {
		return nil
	}
	out := make([]RawFrame, len(frames))
	for i, f := range frames {
		typename, fn := splitFunction(f.Function)
		out[i] = RawFrame{
			Function: fn,
			Typename: typename,
			Filename: f.File,
			Lineno:   f.Line,
		}
	}
	return out
}

// splitFunction splits a fully qualified Go symbol such as
// "github.com/acme/app/pkg.(*Server).Handle" into its receiver type and the
// remaining function name. The package path is dropped; the module is
// derived from the file location instead.
func splitFunction(symbol string) (typename, function string) {
	if symbol == "" {
		return "", ""
	}
	name := symbol
	if slash := strings.LastIndex(name, "/"); slash >= 0 {
		name = name[slash+1:]
	}
	if dot := strings.Index(name, "."); dot >= 0 {
		name = name[dot+1:]
	}
	if strings.HasPrefix(name, "(") {
		if end := strings.Index(name, ")."); end > 0 {
			return name[1:end], name[end+2:]
		}
	}
	return "", name
}

// Resolver turns raw frames into enriched frames.
// The zero value is usable: it reads files from disk and treats the current
// working directory as the application root.
type Resolver struct {
	// Root is the application root used to derive frame modules.
	Root string

	// GOROOT is the Go installation whose sources are never in-app.
	GOROOT string

	// ReadFile reads source files. Defaults to [os.ReadFile].
	ReadFile func(name string) ([]byte, error)
}

// Resolve converts raw frames, given innermost call first as captured, into
// frames ordered outermost call first so the last element is the call site
// closest to the failure.
//
// Every frame is produced before Resolve returns. Source files are read at
// most once per call; unreadable files leave the frame's context empty.
func (r *Resolver) Resolve(raw []RawFrame) []Frame {
	if len(raw) == 0 {
		return []Frame{}
	}

	readFile := r.ReadFile
	if readFile == nil {
		readFile = os.ReadFile
	}
	root := r.Root
	if root == "" {
		root, _ = os.Getwd()
	}
	goroot := r.GOROOT
	if goroot == "" {
		goroot = build.Default.GOROOT
	}

	// nil entries record files that failed to read so they are not retried.
	cache := make(map[string][]string)
	source := func(name string) []string {
		if lines, ok := cache[name]; ok {
			return lines
		}
		b, err := readFile(name)
		if err != nil {
			cache[name] = nil
			return nil
		}
		lines := strings.Split(string(b), "\n")
		for i, l := range lines {
			lines[i] = strings.TrimSuffix(l, "\r")
		}
		cache[name] = lines
		return lines
	}

	frames := make([]Frame, len(raw))
	for i, rf := range raw {
		f := Frame{
			Function: rf.Function,
			Typename: rf.Typename,
			Filename: rf.Filename,
			Lineno:   rf.Lineno,
			Module:   Module(rf.Filename, root),
			InApp:    IsInApp(rf.Filename, goroot),
		}
		if f.InApp {
			if lines := source(rf.Filename); lines != nil {
				addContext(&f, lines, rf.Colno)
			}
		}
		frames[len(raw)-1-i] = f
	}
	return frames
}

func addContext(f *Frame, lines []string, colno int) {
	idx := f.Lineno - 1
	if idx < 0 || idx >= len(lines) {
		return
	}
	pre := lines[max(0, idx-ContextLines):idx]
	post := lines[idx+1 : min(len(lines), idx+1+ContextLines)]

	f.PreContext = make([]string, len(pre))
	for i, l := range pre {
		f.PreContext[i] = SnipLine(l, 0)
	}
	f.ContextLine = SnipLine(lines[idx], colno)
	f.PostContext = make([]string, len(post))
	for i, l := range post {
		f.PostContext[i] = SnipLine(l, 0)
	}
}

// IsInApp reports whether filename belongs to the application rather than the
// Go runtime, the standard library or a third-party module.
func IsInApp(filename, goroot string) bool {
	if !hasPathShape(filename) {
		return false
	}
	slashed := filepath.ToSlash(filename)
	if strings.Contains(slashed, "/pkg/mod/") || strings.Contains(slashed, "/vendor/") {
		return false
	}
	if goroot != "" {
		base := strings.TrimSuffix(filepath.ToSlash(goroot), "/") + "/"
		if strings.HasPrefix(slashed, base) {
			return false
		}
	}
	return true
}

// hasPathShape reports whether name looks like an absolute or relative path,
// including Windows drive paths. Generated code ("<autogenerated>") and
// trimmed standard library paths ("runtime/panic.go") do not.
func hasPathShape(name string) bool {
	if name == "" {
		return false
	}
	if name[0] == '/' || name[0] == '.' || name[0] == '\\' {
		return true
	}
	return len(name) > 2 && name[1] == ':' && (name[2] == '\\' || name[2] == '/')
}
