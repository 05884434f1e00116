package checkuser

import (
	"context"

	"cleantalk-antispam/internal/antispam"
	"cleantalk-antispam/internal/common/logger"
	"cleantalk-antispam/internal/session"
)

type Input struct {
	Email     string `json:"email,omitempty"`
	Nickname  string `json:"nickname,omitempty"`
	ClientIP  string `json:"clientIp"`
	Referrer  string `json:"referrer,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	FormID    string `json:"formId,omitempty"`
	CheckJS   string `json:"checkJs,omitempty"`
}

type Output struct {
	Allowed bool   `json:"allowed"`
	Comment string `json:"comment"`
}

// UserChecker is satisfied by *antispam.Component.
type UserChecker interface {
	IsAllowUser(ctx context.Context, rc antispam.RequestContext, sess antispam.Session, email, nickname string) (bool, string, error)
}

// SessionStore is satisfied by session.Store implementations.
type SessionStore interface {
	ForSession(id string) session.Session
}

type ServiceDependencies struct {
	Logger   logger.Logger
	Checker  UserChecker
	Sessions SessionStore
}
