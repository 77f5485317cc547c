// checksum.go computes the legacy grouping checksum.

package raven

import (
	"crypto/md5"
	"encoding/hex"
)

// Checksum returns the hex MD5 digest of an event message. Servers only use
// it when legacy checksum grouping is enabled.
func Checksum(message string) string {
	sum := md5.Sum([]byte(message))
	return hex.EncodeToString(sum[:])
}
