package middleware

import (
	"net/http"
	"strings"
)

// UserHeader names the conversation owner. The "user" query parameter is
// accepted as well for clients that cannot set headers (websocket, links).
const UserHeader = "X-User-ID"

// UserFromRequest returns the raw user id of the request, empty if none.
// Validation happens in the chat service.
func UserFromRequest(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(UserHeader)); v != "" {
		return v
	}
	return strings.TrimSpace(r.URL.Query().Get("user"))
}
