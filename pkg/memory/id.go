package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IDPrefix is the prefix of every memory identifier.
const IDPrefix = "mem_"

const idHexLen = 8

// NewID generates a memory identifier: IDPrefix followed by the first eight
// hex characters of a SHA-256 over a fresh UUID and a nanosecond timestamp.
// Ids are generated once and never reused.
func NewID() string {
	seed := fmt.Sprintf("%s%s", uuid.NewString(), time.Now().Format(time.RFC3339Nano))
	sum := sha256.Sum256([]byte(seed))
	return IDPrefix + hex.EncodeToString(sum[:])[:idHexLen]
}
