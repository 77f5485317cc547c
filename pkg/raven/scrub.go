// scrub.go implements fail-closed sensitive data redaction for events.

package raven

import (
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"
)

// Redaction markers.
const (
	Redacted           = "[REDACTED]"
	RedactedScrubError = "[REDACTED:SCRUB_ERROR]"
)

// ScrubberConfig controls scrubbing behavior.
type ScrubberConfig struct {
	// SensitiveKeys contains additional case-insensitive substrings marking
	// tag, extra and header keys whose values are redacted.
	SensitiveKeys []string

	// MaxMessageSize is the maximum length for messages (default: 4096).
	MaxMessageSize int

	// MaxValueSize is the maximum length for string values in tags and
	// extra data (default: 1024).
	MaxValueSize int

	// ScrubMessages enables pattern scrubbing of messages, exception values
	// and source context for secrets/PII (default: true).
	ScrubMessages bool

	// NormalizePaths replaces user specific directories in frame filenames
	// (default: true).
	NormalizePaths bool

	// FailClosed redacts a whole section when scrubbing it fails (default: true).
	FailClosed bool
}

// DefaultScrubberConfig returns production-safe defaults.
func DefaultScrubberConfig() ScrubberConfig {
	return ScrubberConfig{
		MaxMessageSize: 4096,
		MaxValueSize:   1024,
		ScrubMessages:  true,
		NormalizePaths: true,
		FailClosed:     true,
	}
}

// Compiled regex patterns for message scrubbing (compiled once at package init)
var messageScrubPatterns = []*regexp.Regexp{
	// API keys and tokens
	regexp.MustCompile(`(?i)(api[_-]?key|token)[=:\s]+['"]?[\w\-\.]+['"]?`),
	regexp.MustCompile(`(?i)(authorization|bearer)[=:\s]+['"]?[\w\-\.]+['"]?[\s]+['"]?[\w\-\.]+['"]?`),
	regexp.MustCompile(`(?i)sk-[a-zA-Z0-9_-]{20,}`),
	regexp.MustCompile(`(?i)gh[po]_[a-zA-Z0-9]{36}`),
	regexp.MustCompile(`(?i)github_pat_[a-zA-Z0-9_]{22,}`),
	regexp.MustCompile(`(?i)xox[baprs]-[a-zA-Z0-9\-]{10,}`),
	regexp.MustCompile(`(?i)eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`),

	// Sentry DSNs carry a secret key in their userinfo.
	regexp.MustCompile(`(?i)\b[a-z+]+://[0-9a-f]{16,}:[0-9a-f]{16,}@`),

	// Credentials
	regexp.MustCompile(`(?i)(password|passwd|secret|credential)[=:\s]+['"]?[^\s'",]+['"]?`),

	// PII
	regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
	regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`),
}

// Sensitive key patterns (case-insensitive substring match)
var sensitiveKeyPatterns = []string{
	"token",
	"key",
	"secret",
	"password",
	"passwd",
	"credential",
	"auth",
	"cookie",
	"session",
}

// Path patterns to normalize in frame filenames
var pathNormalizationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^/home/[^/]+/`),
	regexp.MustCompile(`^/Users/[^/]+/`),
	regexp.MustCompile(`^C:\\Users\\[^\\]+\\`),
}

// Scrubber redacts sensitive data from events.
type Scrubber struct {
	cfg  ScrubberConfig
	keys []string
}

// NewScrubber creates a new scrubber with the given configuration.
func NewScrubber(cfg ScrubberConfig) *Scrubber {
	def := DefaultScrubberConfig()
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.MaxValueSize <= 0 {
		cfg.MaxValueSize = def.MaxValueSize
	}
	keys := append(slicesLower(cfg.SensitiveKeys), sensitiveKeyPatterns...)
	return &Scrubber{cfg: cfg, keys: lo.Uniq(keys)}
}

func slicesLower(in []string) []string {
	return lo.Map(in, func(s string, _ int) string { return strings.ToLower(s) })
}

// DataCallback returns a data callback that calls next and scrubs its result,
// so nothing next adds escapes redaction.
func (s *Scrubber) DataCallback(next DataCallback) DataCallback {
	return func(ev *Event) *Event {
		if next != nil {
			ev = next(ev)
		}
		return s.ScrubEvent(ev)
	}
}

// ScrubEvent redacts ev in place and returns it.
func (s *Scrubber) ScrubEvent(ev *Event) *Event {
	if ev == nil {
		return nil
	}
	ev.Message = s.ScrubMessage(ev.Message)
	if ev.MessageInterface != nil {
		ev.MessageInterface.Message = s.ScrubMessage(ev.MessageInterface.Message)
	}
	if ev.Exception != nil {
		ev.Exception.Value = s.ScrubMessage(ev.Exception.Value)
		if ev.Exception.Stacktrace != nil {
			s.scrubFrames(ev.Exception.Stacktrace)
		}
	}
	ev.Tags = s.ScrubTags(ev.Tags)
	ev.Extra = s.ScrubExtra(ev.Extra)
	for i := range ev.Breadcrumbs {
		ev.Breadcrumbs[i].Message = s.ScrubMessage(ev.Breadcrumbs[i].Message)
		ev.Breadcrumbs[i].Data = s.ScrubExtra(ev.Breadcrumbs[i].Data)
	}
	if ev.Request != nil {
		ev.Request = s.ScrubRequest(ev.Request)
	}
	return ev
}

// ScrubMessage scrubs sensitive patterns from a message.
func (s *Scrubber) ScrubMessage(msg string) string {
	if len(msg) > s.cfg.MaxMessageSize {
		msg = truncateWithMarker(msg, s.cfg.MaxMessageSize)
	}
	if !s.cfg.ScrubMessages {
		return msg
	}
	for _, pattern := range messageScrubPatterns {
		msg = pattern.ReplaceAllString(msg, Redacted)
	}
	return msg
}

// ScrubTags redacts sensitive tag keys and truncates long values.
func (s *Scrubber) ScrubTags(tags map[string]string) map[string]string {
	if tags == nil {
		return nil
	}
	return lo.MapValues(tags, func(value, key string) string {
		if s.isSensitiveKey(key) {
			return Redacted
		}
		return truncateWithMarker(value, s.cfg.MaxValueSize)
	})
}

// ScrubExtra recursively redacts sensitive keys in extra data. Values that
// are not plain maps, slices or scalars are first converted the way they
// would be serialized. On failure the whole map is redacted when FailClosed
// is set.
func (s *Scrubber) ScrubExtra(extra map[string]any) (out map[string]any) {
	if extra == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			if s.cfg.FailClosed {
				out = map[string]any{"scrubbed": RedactedScrubError}
				return
			}
			out = extra
		}
	}()
	tree, _ := sanitize(reflect.ValueOf(extra), map[uintptr]bool{}, 0).(map[string]any)
	return s.scrubMap(tree)
}

// ScrubRequest redacts sensitive headers, all cookies and secrets in the
// query string.
func (s *Scrubber) ScrubRequest(req *Request) *Request {
	out := *req
	out.Headers = s.ScrubTags(req.Headers)
	out.Env = s.ScrubTags(req.Env)
	if len(req.Cookies) > 0 {
		out.Cookies = lo.MapValues(req.Cookies, func(string, string) string { return Redacted })
	}
	out.QueryString = s.ScrubMessage(req.QueryString)
	if m, ok := req.Data.(map[string]any); ok {
		out.Data = s.ScrubExtra(m)
	} else if str, ok := req.Data.(string); ok {
		out.Data = s.ScrubMessage(str)
	}
	return &out
}

func (s *Scrubber) scrubFrames(st *Stacktrace) {
	for i := range st.Frames {
		f := &st.Frames[i]
		if s.cfg.NormalizePaths {
			for _, pattern := range pathNormalizationPatterns {
				f.Filename = pattern.ReplaceAllString(f.Filename, "/[PATH]/")
			}
		}
		if !s.cfg.ScrubMessages {
			continue
		}
		f.ContextLine = s.ScrubMessage(f.ContextLine)
		for j := range f.PreContext {
			f.PreContext[j] = s.ScrubMessage(f.PreContext[j])
		}
		for j := range f.PostContext {
			f.PostContext[j] = s.ScrubMessage(f.PostContext[j])
		}
	}
}

func (s *Scrubber) scrubValue(val any) any {
	switch v := val.(type) {
	case map[string]any:
		return s.scrubMap(v)
	case []any:
		return lo.Map(v, func(item any, _ int) any { return s.scrubValue(item) })
	case string:
		return truncateWithMarker(s.ScrubMessage(v), s.cfg.MaxValueSize)
	default:
		return v
	}
}

func (s *Scrubber) scrubMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	result := make(map[string]any, len(m))
	for key, value := range m {
		if s.isSensitiveKey(key) {
			result[key] = Redacted
		} else {
			result[key] = s.scrubValue(value)
		}
	}
	return result
}

// isSensitiveKey checks if a key matches sensitive patterns.
func (s *Scrubber) isSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, pattern := range s.keys {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	return false
}

// truncateWithMarker truncates a string and adds a truncation marker.
func truncateWithMarker(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	marker := "...[TRUNCATED]"
	if maxLen <= len(marker) {
		return marker[:maxLen]
	}
	cut := maxLen - len(marker)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + marker
}
