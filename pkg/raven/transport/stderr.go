// stderr.go provides a transport that prints events instead of sending them.
// Useful for development and for dry runs of the CLI.

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// StderrTransport writes a human readable line per event to a writer
// (stderr unless WithWriter is given).
type StderrTransport struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool
	now     func() time.Time
}

// NewStderr creates a printing transport.
func NewStderr(opts ...Option) *StderrTransport {
	o := newOptions(opts)
	return &StderrTransport{w: o.writer, verbose: o.verbose, now: time.Now}
}

// Send prints msg. The body is decoded and pretty printed in verbose mode.
func (t *StderrTransport) Send(ctx context.Context, msg *Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Format: [RAVEN] <timestamp> <event_id> -> <store url> (<n> bytes)
	target := "<no endpoint>"
	if msg.Endpoint != nil {
		target = msg.Endpoint.StoreURL()
	}
	fmt.Fprintf(t.w, "[RAVEN] %s %s -> %s (%d bytes)\n",
		t.now().UTC().Format(time.RFC3339), msg.EventID, target, len(msg.Body))

	if !t.verbose {
		return nil
	}
	fmt.Fprintf(t.w, "        Auth: %s\n", msg.Auth)

	raw, err := Decode(msg.Body)
	if err != nil {
		fmt.Fprintf(t.w, "        Body: <undecodable: %v>\n", err)
		return nil
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "          ", "  "); err != nil {
		pretty.Reset()
		pretty.Write(raw)
	}
	fmt.Fprintf(t.w, "        Body:\n          %s\n", strings.TrimRight(pretty.String(), "\n"))
	return nil
}

// Close is a no-op.
func (t *StderrTransport) Close() error {
	return nil
}
