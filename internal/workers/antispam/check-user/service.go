package checkuser

import (
	"context"

	"cleantalk-antispam/internal/antispam"
	"cleantalk-antispam/internal/common/logger"
	"cleantalk-antispam/internal/session"
)

type Service struct {
	config   *Config
	logger   logger.Logger
	checker  UserChecker
	sessions SessionStore
}

func NewService(deps ServiceDependencies, config *Config) *Service {
	return &Service{
		config:   config,
		logger:   deps.Logger,
		checker:  deps.Checker,
		sessions: deps.Sessions,
	}
}

func (s *Service) Execute(ctx context.Context, input *Input) (*Output, error) {
	s.logger.Info("Executing registration check", map[string]interface{}{
		"clientIp":  input.ClientIP,
		"sessionId": input.SessionID,
		"formId":    input.FormID,
	})

	rc := antispam.StaticRequest{
		IP:      input.ClientIP,
		Referer: input.Referrer,
		Agent:   input.UserAgent,
		Fields: map[string]string{
			antispam.FieldFormID:  input.FormID,
			antispam.FieldCheckJS: input.CheckJS,
		},
	}

	allowed, comment, err := s.checker.IsAllowUser(ctx, rc, s.sessionFor(input.SessionID), input.Email, input.Nickname)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Registration check completed", map[string]interface{}{
		"allowed":  allowed,
		"clientIp": input.ClientIP,
	})

	return &Output{Allowed: allowed, Comment: comment}, nil
}

// sessionFor returns the visitor session, or an empty throwaway one when the
// job carries no session id.
func (s *Service) sessionFor(id string) session.Session {
	if id == "" || s.sessions == nil {
		return session.NewMemoryStore(0).ForSession("")
	}
	return s.sessions.ForSession(id)
}
