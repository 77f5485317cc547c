// codec.go encodes payloads and builds the X-Sentry-Auth header.

package transport

import (
	"bytes"
	"compress/zlib"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// ProtocolVersion is the Sentry store protocol spoken by this client.
const ProtocolVersion = "7"

// Encode compresses a JSON payload with deflate and base64 encodes it.
func Encode(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return nil, fmt.Errorf("deflate payload: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("deflate payload: %w", err)
	}
	out := make([]byte, base64.StdEncoding.EncodedLen(buf.Len()))
	base64.StdEncoding.Encode(out, buf.Bytes())
	return out, nil
}

// Decode reverses Encode.
func Decode(body []byte) ([]byte, error) {
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(body)))
	n, err := base64.StdEncoding.Decode(raw, body)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	zr, err := zlib.NewReader(bytes.NewReader(raw[:n]))
	if err != nil {
		return nil, fmt.Errorf("inflate payload: %w", err)
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// Auth holds the fields of the X-Sentry-Auth header.
type Auth struct {
	Timestamp  time.Time
	Client     string
	PublicKey  string
	PrivateKey string
	ProjectID  int

	// Signature is the legacy HMAC signature, see Sign.
	Signature string
}

// Header renders the header value.
func (a Auth) Header() string {
	parts := []string{
		"Sentry sentry_version=" + ProtocolVersion,
		"sentry_timestamp=" + strconv.FormatInt(a.Timestamp.UnixMilli(), 10),
		"sentry_client=" + a.Client,
		"sentry_key=" + a.PublicKey,
	}
	if a.PrivateKey != "" {
		parts = append(parts, "sentry_secret="+a.PrivateKey)
	}
	if a.Signature != "" {
		parts = append(parts, "sentry_signature="+a.Signature, "project_id="+strconv.Itoa(a.ProjectID))
	}
	return strings.Join(parts, ", ")
}

// Sign computes the legacy HMAC-SHA1 signature of "<timestamp ms> <message>"
// keyed by the private key.
func Sign(privateKey string, message []byte, ts time.Time) string {
	mac := hmac.New(sha1.New, []byte(privateKey))
	mac.Write([]byte(strconv.FormatInt(ts.UnixMilli(), 10) + " "))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}
