package ulid

import (
	"crypto/rand"
	"encoding/hex"
)

// NewShortHex generates an 8-hex-character random identifier, used for
// alerts.alert_id where the 26-character ULID form does not fit the
// declared column shape.
func NewShortHex() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}
