// Package xid mints prefixed, collision-resistant identifiers. Prefixes in
// use: "bk" (books), "dist" (distributors), "trip", "mv" (stock movements),
// "audit". The timestamp component keeps IDs roughly sortable by creation.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New returns "<prefix>-<unixnano>-<8 random bytes hex>". If the random
// source fails, the timestamp alone still gives a usable, weaker ID.
func New(prefix string) string {
	now := time.Now().UnixNano()
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, now)
	}
	return fmt.Sprintf("%s-%d-%s", prefix, now, hex.EncodeToString(buf))
}
