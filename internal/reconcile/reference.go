package reconcile

import (
	"fmt"
	"strings"
	"time"
)

const referencePrefix = "FANCLUB-"

// NewReference builds a unique transaction reference for a member. The
// member id is embedded so the webhook can resolve the member without
// relying on the payer's email; the timestamp keeps references unique
// across retries for the same member.
func NewReference(memberID string) string {
	return fmt.Sprintf("%s%s-%d", referencePrefix, memberID, time.Now().UnixNano())
}

// memberIDFromReference extracts the member id from a reference issued by
// NewReference. Returns false for references issued elsewhere.
func memberIDFromReference(ref string) (string, bool) {
	rest, ok := strings.CutPrefix(ref, referencePrefix)
	if !ok {
		return "", false
	}
	i := strings.LastIndex(rest, "-")
	if i <= 0 {
		return "", false
	}
	return rest[:i], true
}
