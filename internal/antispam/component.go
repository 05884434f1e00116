// Package antispam verifies user registrations and messages against the
// CleanTalk moderation service.
package antispam

import (
	"context"
	"fmt"
	"time"

	"cleantalk-antispam/internal/cleantalk"
	"cleantalk-antispam/internal/common/errors"
	"cleantalk-antispam/internal/common/logger"
	"cleantalk-antispam/internal/common/metrics"

	"github.com/google/uuid"
)

const (
	AgentVersion         = "go-1.0.0"
	SessionKeyFormSubmit = "ct_form_submit"
	FieldFormID          = "ct_formid"
	FieldCheckJS         = "ct_checkjs"
	LogChannel           = "ext.cleantalk"

	MethodIsAllowUser    = "isAllowUser"
	MethodIsAllowMessage = "isAllowMessage"
)

// notifyTimeout bounds each log target delivery independently of the
// caller's deadline.
const notifyTimeout = 2 * time.Second

// RequestContext exposes the parts of the inbound end-user request the
// component reads.
type RequestContext interface {
	UserIP() string
	Referrer() string
	UserAgent() string
	// Post returns a posted form field, or "" when absent.
	Post(name string) string
}

// Session is the end-user session scoped to one visitor.
type Session interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// APIClient performs the remote verdict calls.
type APIClient interface {
	IsAllowUser(ctx context.Context, req *cleantalk.Request) (*cleantalk.Response, error)
	IsAllowMessage(ctx context.Context, req *cleantalk.Request) (*cleantalk.Response, error)
}

// ClientFactory builds an APIClient bound to a server URL.
type ClientFactory func(serverURL string, timeout time.Duration) APIClient

// LogTarget receives component log lines in addition to the structured logger.
type LogTarget interface {
	Notify(ctx context.Context, channel, message string) error
}

// Recorder receives per-check measurements.
type Recorder interface {
	RecordCheck(ctx context.Context, method, verdict string, duration time.Duration)
}

type Dependencies struct {
	Logger    logger.Logger
	NewClient ClientFactory
	Targets   []LogTarget
	Recorder  Recorder
	// Now overrides the clock, mostly for tests.
	Now func() time.Time
}

type Component struct {
	config    Config
	logger    logger.Logger
	newClient ClientFactory
	targets   []LogTarget
	recorder  Recorder
	now       func() time.Time

	notifyTimeout time.Duration
}

func defaultClientFactory(serverURL string, timeout time.Duration) APIClient {
	return cleantalk.NewClient(serverURL, cleantalk.WithTimeout(timeout))
}

// New validates the configuration and derives the response language.
func New(cfg Config, deps Dependencies) (*Component, error) {
	if cfg.APIKey == "" {
		return nil, errors.NewConfigInvalidError(`CleanTalk configuration must have "apiKey" value`)
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultConfig().APIURL
	}
	if cfg.JSChallengeSalt == "" {
		cfg.JSChallengeSalt = DefaultJSChallengeSalt
	}
	cfg.ResponseLang = resolveResponseLang(cfg.ResponseLang, cfg.AppLanguage)

	c := &Component{
		config:    cfg,
		logger:    deps.Logger,
		newClient: deps.NewClient,
		targets:   deps.Targets,
		recorder:  deps.Recorder,
		now:       deps.Now,

		notifyTimeout: notifyTimeout,
	}
	if c.logger == nil {
		c.logger = logger.NewStructured("info", "json")
	}
	c.logger = logger.Channel(c.logger, LogChannel)
	if c.newClient == nil {
		c.newClient = defaultClientFactory
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

func (c *Component) Config() Config {
	return c.config
}

func (c *Component) ResponseLang() string {
	return c.config.ResponseLang
}

// IsAllowUser checks a user registration. It returns the remote verdict and
// comment.
func (c *Component) IsAllowUser(ctx context.Context, rc RequestContext, sess Session, email, nickname string) (bool, string, error) {
	return c.check(ctx, MethodIsAllowUser, rc, sess, func(r *cleantalk.Request) {
		r.SenderEmail = email
		r.SenderNickname = nickname
	})
}

// IsAllowMessage checks a posted message. It returns the remote verdict and
// comment.
func (c *Component) IsAllowMessage(ctx context.Context, rc RequestContext, sess Session, message, email, nickname string) (bool, string, error) {
	return c.check(ctx, MethodIsAllowMessage, rc, sess, func(r *cleantalk.Request) {
		r.Message = message
		r.SenderEmail = email
		r.SenderNickname = nickname
	})
}

func (c *Component) check(ctx context.Context, method string, rc RequestContext, sess Session, fill func(*cleantalk.Request)) (bool, string, error) {
	start := time.Now()
	checkID := uuid.New().String()
	log := c.logger.WithFields(map[string]interface{}{
		"checkId": checkID,
		"method":  method,
	})

	req, err := c.createRequest(ctx, rc, sess)
	if err != nil {
		c.observeError(ctx, log, method, err, start)
		return false, "", err
	}
	fill(req)

	resp, err := c.sendRequest(ctx, req, method)
	if err != nil {
		c.observeError(ctx, log, method, err, start)
		return false, "", err
	}

	if resp.NeedsApproval() {
		metrics.AntispamInactiveTotal.WithLabelValues(method).Inc()
		c.log(ctx, log, fmt.Sprintf("Need admin approval for %q: %s", method, resp.Comment))
	}

	allowed := resp.Allowed()
	verdict := metrics.VerdictLabel(allowed)
	duration := time.Since(start)
	metrics.AntispamChecksTotal.WithLabelValues(method, verdict).Inc()
	metrics.AntispamCheckDuration.WithLabelValues(method).Observe(duration.Seconds())
	if c.recorder != nil {
		c.recorder.RecordCheck(ctx, method, verdict, duration)
	}

	log.Debug("Anti-spam check completed", map[string]interface{}{
		"allowed":  allowed,
		"inactive": resp.Inactive,
		"remoteId": resp.ID,
	})

	return allowed, resp.Comment, nil
}

func (c *Component) observeError(ctx context.Context, log logger.Logger, method string, err error, start time.Time) {
	stdErr := errors.Normalize(err)
	duration := time.Since(start)

	metrics.AntispamChecksTotal.WithLabelValues(method, metrics.VerdictError).Inc()
	metrics.AntispamCheckErrors.WithLabelValues(method, string(stdErr.Code)).Inc()
	metrics.AntispamCheckDuration.WithLabelValues(method).Observe(duration.Seconds())
	if c.recorder != nil {
		c.recorder.RecordCheck(ctx, method, metrics.VerdictError, duration)
	}

	log.Warn("Anti-spam check failed", map[string]interface{}{
		"errorCode": stdErr.Code,
		"error":     stdErr.Details,
		"retryable": stdErr.Retryable,
	})
}

// createRequest assembles the outbound payload from configuration and the
// derived per-request signals.
func (c *Component) createRequest(ctx context.Context, rc RequestContext, sess Session) (*cleantalk.Request, error) {
	submitTime, err := c.CalcFormSubmitTime(ctx, rc, sess, nil, true)
	if err != nil {
		return nil, err
	}

	info, err := encodeSenderInfo(cleantalk.SenderInfo{
		Referrer:  rc.Referrer(),
		UserAgent: rc.UserAgent(),
		CMSLang:   c.config.ResponseLang,
	})
	if err != nil {
		return nil, err
	}

	return &cleantalk.Request{
		AuthKey:      c.config.APIKey,
		ResponseLang: c.config.ResponseLang,
		Agent:        AgentVersion,
		SenderIP:     rc.UserIP(),
		SubmitTime:   submitTime,
		JSOn:         c.IsJavascriptEnable(rc),
		SenderInfo:   info,
	}, nil
}

// sendRequest dispatches to one of the two supported remote operations.
func (c *Component) sendRequest(ctx context.Context, req *cleantalk.Request, method string) (*cleantalk.Response, error) {
	client := c.newClient(c.config.APIURL, c.config.Timeout)

	switch method {
	case MethodIsAllowUser:
		return client.IsAllowUser(ctx, req)
	case MethodIsAllowMessage:
		return client.IsAllowMessage(ctx, req)
	default:
		return nil, errors.NewInvalidArgumentError(fmt.Sprintf("Method unknown: %q", method))
	}
}

// log writes message to the ext.cleantalk channel and the extra targets.
// It does nothing when logging is disabled.
func (c *Component) log(ctx context.Context, log logger.Logger, message string) {
	if !c.config.EnableLog {
		return
	}

	log.Info(message, nil)

	for _, target := range c.targets {
		if err := c.notify(ctx, target, message); err != nil {
			log.Warn("Log target delivery failed", map[string]interface{}{
				"error":  err.Error(),
				"target": fmt.Sprintf("%T", target),
			})
		}
	}
}

// notify delivers one line to target. The delivery keeps the caller's values
// but not its cancellation, and gets its own deadline so a stalled target
// cannot hold the verdict.
func (c *Component) notify(ctx context.Context, target LogTarget, message string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.notifyTimeout)
	defer cancel()
	return target.Notify(ctx, LogChannel, message)
}
