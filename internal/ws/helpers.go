package ws

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"
)

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}

// bearerToken extracts a token from the Authorization header or, for
// browser clients that cannot set headers on websocket upgrades, from the
// token query parameter. Returns "" when neither is present.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	return r.URL.Query().Get("token")
}
