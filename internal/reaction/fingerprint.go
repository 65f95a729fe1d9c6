package reaction

import (
	"crypto/sha256"
	"encoding/hex"
)

// unknownPart stands in for client metadata that was not supplied.
const unknownPart = "none"

// Fingerprint derives the pseudonymous identity of an anonymous caller as the
// hex sha256 of "secret:ip:userAgent". Missing parts are written as "none".
func Fingerprint(secret, clientIP, userAgent string) string {
	if clientIP == "" {
		clientIP = unknownPart
	}

	if userAgent == "" {
		userAgent = unknownPart
	}

	sum := sha256.Sum256([]byte(secret + ":" + clientIP + ":" + userAgent))

	return hex.EncodeToString(sum[:])
}
