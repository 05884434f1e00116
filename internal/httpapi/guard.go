package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"cleantalk-antispam/internal/common/errors"
)

type CheckKind int

const (
	CheckUser CheckKind = iota
	CheckMessage
)

type userForm struct {
	Email    string `schema:"email"`
	Nickname string `schema:"nickname"`
}

type messageForm struct {
	Message  string `schema:"message"`
	Email    string `schema:"email"`
	Nickname string `schema:"nickname"`
}

// Verdict is the outcome of a guarded check.
type Verdict struct {
	Allowed bool   `json:"allowed"`
	Comment string `json:"comment"`
}

type rejection struct {
	Verdict
	Code errors.ErrorCode `json:"code"`
}

type verdictKey struct{}

// VerdictFromContext returns the verdict Guard attached to an allowed request.
func VerdictFromContext(ctx context.Context) (Verdict, bool) {
	v, ok := ctx.Value(verdictKey{}).(Verdict)
	return v, ok
}

// Guard runs the anti-spam check for a posted form before next. Denied
// submissions are answered with 403 and the remote comment; next only sees
// allowed ones.
func (s *Server) Guard(kind CheckKind, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			s.writeError(w, errors.NewValidationFailedError(fmt.Sprintf("malformed form body: %v", err)))
			return
		}

		rc := NewRequest(r, s.trusted...)
		sess := s.sessions.ForSession(s.sessionID(w, r))

		var (
			allowed bool
			comment string
			err     error
		)
		switch kind {
		case CheckUser:
			var form userForm
			if err := s.decoder.Decode(&form, r.PostForm); err != nil {
				s.writeError(w, errors.NewValidationFailedError(err.Error()))
				return
			}
			allowed, comment, err = s.checker.IsAllowUser(r.Context(), rc, sess, form.Email, form.Nickname)
		case CheckMessage:
			var form messageForm
			if err := s.decoder.Decode(&form, r.PostForm); err != nil {
				s.writeError(w, errors.NewValidationFailedError(err.Error()))
				return
			}
			if form.Message == "" {
				s.writeError(w, errors.NewValidationFailedError("message is required"))
				return
			}
			allowed, comment, err = s.checker.IsAllowMessage(r.Context(), rc, sess, form.Message, form.Email, form.Nickname)
		default:
			err = errors.NewInvalidArgumentError(fmt.Sprintf("unknown check kind %d", kind))
		}
		if err != nil {
			s.writeError(w, err)
			return
		}

		verdict := Verdict{Allowed: allowed, Comment: comment}
		if !allowed {
			rejected := errors.NewSpamRejectedError(comment)
			s.logger.Info("Submission rejected", map[string]interface{}{
				"path":     r.URL.Path,
				"clientIp": rc.UserIP(),
				"code":     rejected.Code,
			})
			writeJSON(w, http.StatusForbidden, rejection{Verdict: verdict, Code: rejected.Code})
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), verdictKey{}, verdict)))
	})
}

func writeVerdict(w http.ResponseWriter, r *http.Request) {
	verdict, _ := VerdictFromContext(r.Context())
	writeJSON(w, http.StatusOK, verdict)
}
