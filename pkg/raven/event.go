// event.go defines the event record sent to Sentry and its interfaces.

package raven

import (
	"encoding/json"
	"time"

	"github.com/strongdm/raven-observe/pkg/raven/stacktrace"
)

// Level is the Sentry severity of an event or breadcrumb.
type Level string

const (
	LevelFatal   Level = "fatal"
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
	LevelDebug   Level = "debug"
)

// Platform is reported on every event.
const Platform = "go"

// timestampLayout is ISO-8601 at second precision, in UTC.
const timestampLayout = "2006-01-02T15:04:05"

// Timestamp marshals as an ISO-8601 string with second precision.
type Timestamp time.Time

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).UTC().Format(timestampLayout))
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := time.Parse(timestampLayout, s)
	if err != nil {
		return err
	}
	*t = Timestamp(parsed)
	return nil
}

// User identifies the user affected by an event.
type User struct {
	ID        string `json:"id,omitempty"`
	Username  string `json:"username,omitempty"`
	Email     string `json:"email,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`

	// Data holds any additional attributes.
	Data map[string]any `json:"data,omitempty"`
}

// Breadcrumb records something that happened before an event.
// Breadcrumbs are immutable once added to a scope.
type Breadcrumb struct {
	Timestamp time.Time      `json:"-"`
	Category  string         `json:"category,omitempty"`
	Message   string         `json:"message,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Level     Level          `json:"level,omitempty"`
}

// MarshalJSON writes the timestamp as fractional Unix seconds.
func (b Breadcrumb) MarshalJSON() ([]byte, error) {
	type plain Breadcrumb
	return json.Marshal(struct {
		Timestamp float64 `json:"timestamp"`
		plain
	}{
		Timestamp: float64(b.Timestamp.UnixMilli()) / 1000,
		plain:     plain(b),
	})
}

// MessageInterface is the sentry.interfaces.Message payload.
type MessageInterface struct {
	Message string `json:"message"`
	Params  []any  `json:"params"`
}

// Stacktrace is the sentry.interfaces.Stacktrace payload. Frames are ordered
// outermost call first.
type Stacktrace struct {
	Frames []stacktrace.Frame `json:"frames"`
}

// Exception is the sentry.interfaces.Exception payload.
type Exception struct {
	Type       string      `json:"type"`
	Value      string      `json:"value"`
	Stacktrace *Stacktrace `json:"stacktrace,omitempty"`
}

// Query is the sentry.interfaces.Query payload.
type Query struct {
	Query  string `json:"query"`
	Engine string `json:"engine,omitempty"`
}

// Request is the sentry.interfaces.Http payload describing the HTTP request
// being served when an event was captured.
type Request struct {
	Method      string            `json:"method,omitempty"`
	URL         string            `json:"url,omitempty"`
	QueryString string            `json:"query_string,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Cookies     map[string]string `json:"cookies,omitempty"`
	Data        any               `json:"data,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
}

// Event is the outbound record. It is built fresh per capture and must not be
// modified once handed to a transport.
type Event struct {
	EventID     string    `json:"event_id"`
	Timestamp   Timestamp `json:"timestamp"`
	Project     int       `json:"project,omitempty"`
	Message     string    `json:"message"`
	Level       Level     `json:"level"`
	Logger      string    `json:"logger,omitempty"`
	Platform    string    `json:"platform"`
	ServerName  string    `json:"server_name,omitempty"`
	Release     string    `json:"release,omitempty"`
	Environment string    `json:"environment,omitempty"`
	Culprit     string    `json:"culprit,omitempty"`

	// Checksum is only set in legacy checksum mode.
	Checksum string `json:"checksum,omitempty"`

	Tags        map[string]string `json:"tags"`
	Extra       map[string]any    `json:"extra"`
	User        *User             `json:"user,omitempty"`
	Fingerprint []string          `json:"fingerprint,omitempty"`
	Breadcrumbs []Breadcrumb      `json:"breadcrumbs,omitempty"`
	Modules     map[string]string `json:"modules,omitempty"`
	Contexts    map[string]any    `json:"contexts,omitempty"`

	MessageInterface *MessageInterface `json:"sentry.interfaces.Message,omitempty"`
	Exception        *Exception        `json:"sentry.interfaces.Exception,omitempty"`
	Query            *Query            `json:"sentry.interfaces.Query,omitempty"`
	Request          *Request          `json:"sentry.interfaces.Http,omitempty"`
}
