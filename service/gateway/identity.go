package gateway

import (
	"net/http"

	"OnlineGate/tools/ids"
)

// HeaderSessionID carries the client's self-declared dedup identity.
const HeaderSessionID = "X-Socket-Session-Id"

const querySessionID = "socket_session_id"

// ResolveSessionKey derives the connection's session key: explicit
// header first, then query parameter, else a generated process-unique
// id. There is no failure mode; absence degrades to a fresh identity.
func ResolveSessionKey(r *http.Request) (key string, generated bool) {
	if v := r.Header.Get(HeaderSessionID); v != "" {
		return v, false
	}
	if v := r.URL.Query().Get(querySessionID); v != "" {
		return v, false
	}
	return ids.GenerateString(), true
}

// validRoom bounds room names: 1..256 chars from a URL- and
// subject-safe alphabet.
func validRoom(room string) bool {
	if room == "" || len(room) > 256 {
		return false
	}
	for _, c := range room {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '_' || c == '.' || c == '/' || c == ':' || c == '@' || c == '-':
		default:
			return false
		}
	}
	return true
}
