package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

const DefaultSessionCookie = "ct_session"

// sessionID returns the visitor's session id, issuing a new cookie when the
// request carries none.
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(s.cookieName); err == nil && c.Value != "" {
		return c.Value
	}

	id := uuid.New().String()
	cookie := &http.Cookie{
		Name:     s.cookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if s.cookieTTL > 0 {
		cookie.MaxAge = int(s.cookieTTL / time.Second)
	}
	http.SetCookie(w, cookie)
	return id
}
