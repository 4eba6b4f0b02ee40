package conversation

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const firstMessagePrefixLen = 64

// DeriveID picks the conversation id for a request following the
// derivation order in spec §4.7: an explicit header, then an explicit
// body field, then a hash of (client IP, first-user-message prefix) as
// a last resort. xxhash is used rather than a cryptographic hash because
// this fallback id is not security-sensitive — only a stable bucketing
// key for conversations that never supplied one explicitly.
func DeriveID(headerID, bodyID, clientIP, firstUserMessage string) string {
	if id := strings.TrimSpace(headerID); id != "" {
		return id
	}
	if id := strings.TrimSpace(bodyID); id != "" {
		return id
	}

	prefix := firstUserMessage
	if len(prefix) > firstMessagePrefixLen {
		prefix = prefix[:firstMessagePrefixLen]
	}
	h := xxhash.Sum64String(clientIP + "|" + prefix)
	return fmt.Sprintf("derived-%016x", h)
}
