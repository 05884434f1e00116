package checkmessage

import (
	"context"

	"cleantalk-antispam/internal/antispam"
	"cleantalk-antispam/internal/common/logger"
	"cleantalk-antispam/internal/session"
)

type Service struct {
	config   *Config
	logger   logger.Logger
	checker  MessageChecker
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
	s.logger.Debug("Executing message check", map[string]interface{}{
		"clientIp":      input.ClientIP,
		"messageLength": len(input.Message),
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

	var sess session.Session
	if input.SessionID == "" || s.sessions == nil {
		sess = session.NewMemoryStore(0).ForSession("")
	} else {
		sess = s.sessions.ForSession(input.SessionID)
	}

	allowed, comment, err := s.checker.IsAllowMessage(ctx, rc, sess, input.Message, input.Email, input.Nickname)
	if err != nil {
		return nil, err
	}

	return &Output{Allowed: allowed, Comment: comment}, nil
}
