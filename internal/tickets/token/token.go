// Package token produces the opaque ticket codes printed on tickets and
// encoded in their QR images.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"
)

// Length is the number of hex characters kept from the digest.
const Length = 32

var tokenPattern = regexp.MustCompile(`^[a-f0-9]{32}$`)

// Generator builds a token for one ticket of eventID owned by userID.
type Generator func(eventID, userID int64) string

// Generate hashes "<event>-<user>-<unix ms>-<16 hex chars of randomness>"
// with SHA-256 and keeps the first 32 hex characters.
func Generate(eventID, userID int64) string {
	return generateAt(eventID, userID, time.Now(), randomSalt())
}

func generateAt(eventID, userID int64, at time.Time, salt string) string {
	data := fmt.Sprintf("%d-%d-%d-%s", eventID, userID, at.UnixMilli(), salt)
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])[:Length]
}

func randomSalt() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand does not fail on supported platforms
		panic(fmt.Sprintf("token: read random bytes: %v", err))
	}
	return hex.EncodeToString(b)
}

// Valid reports whether s has the shape of a generated token.
func Valid(s string) bool {
	return tokenPattern.MatchString(s)
}
