package react

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	jsonx "counsel/internal/shared/json"
)

const fingerprintLength = 16

// Fingerprint hashes tool arguments into a short stable key. Maps are
// encoded with sorted keys so argument order never changes the result.
func Fingerprint(args map[string]any) string {
	if args == nil {
		args = map[string]any{}
	}
	data, err := jsonx.Canonical(args)
	if err != nil {
		data = []byte(fmt.Sprintf("%v", args))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:fingerprintLength]
}
