package common

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateID generates a unique ID with the given prefix.
// Format: prefix-timestamp-random
func GenerateID(prefix string) string {
	timestamp := time.Now().UnixNano() / int64(time.Millisecond)
	randomBytes := make([]byte, 4)
	rand.Read(randomBytes)
	random := hex.EncodeToString(randomBytes)
	return fmt.Sprintf("%s-%d-%s", prefix, timestamp, random)
}

// GenerateSubscriberID identifies one event stream subscriber.
func GenerateSubscriberID() string {
	return GenerateID("sub")
}

// TempRemoteName returns a throwaway rclone remote name, "tmp" followed by hex.
// The result only contains characters valid in RCLONE_CONFIG_* variable names.
func TempRemoteName() string {
	return "tmp" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}
