// test/e2e/antispam_e2e_test.go
package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cleantalk-antispam/internal/antispam"
	"cleantalk-antispam/internal/cleantalk"
	"cleantalk-antispam/internal/common/config"
	"cleantalk-antispam/internal/common/logger"
	"cleantalk-antispam/internal/httpapi"
	"cleantalk-antispam/internal/session"
)

// ==========================
// Fake moderation server
// ==========================

type moderationServer struct {
	mu       sync.Mutex
	requests []cleantalk.Request
}

func (m *moderationServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req cleantalk.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	resp := cleantalk.Response{Allow: 1, Comment: "OK", ID: "e2e"}
	switch {
	case req.AuthKey != "e2e-key":
		resp = cleantalk.Response{Errno: 2, Errstr: "invalid auth key"}
	case strings.Contains(req.SenderEmail, "spam"):
		resp.Allow = 0
		resp.Comment = "*** Forbidden. Sender blacklisted. ***"
	case strings.Contains(req.Message, "moderate"):
		resp.Inactive = 1
		resp.Comment = "Manual moderation required"
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (m *moderationServer) last(t *testing.T) cleantalk.Request {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.requests)
	return m.requests[len(m.requests)-1]
}

type collectingTarget struct {
	mu    sync.Mutex
	lines []string
}

func (c *collectingTarget) Notify(_ context.Context, channel, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, channel+": "+message)
	return nil
}

// ==========================
// Environment
// ==========================

type environment struct {
	moderation *moderationServer
	target     *collectingTarget
	component  *antispam.Component
	api        *httptest.Server
	client     *http.Client
}

func setup(t *testing.T) *environment {
	t.Helper()

	moderation := &moderationServer{}
	moderationSrv := httptest.NewServer(moderation)
	t.Cleanup(moderationSrv.Close)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	store, err := session.NewStore(config.SessionConfig{
		Driver:     "redis",
		Redis:      config.RedisConfig{Address: mr.Addr()},
		KeyPrefix:  "e2e",
		TTLSeconds: 600,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	target := &collectingTarget{}
	component, err := antispam.New(antispam.Config{
		APIKey:      "e2e-key",
		APIURL:      moderationSrv.URL + "/",
		AppLanguage: "de-DE",
		EnableLog:   true,
		Timeout:     5 * time.Second,
	}, antispam.Dependencies{
		Logger:  logger.NewTestLogger(t),
		Targets: []antispam.LogTarget{target},
	})
	require.NoError(t, err)

	proxies, err := httpapi.ParseTrustedProxies([]string{"127.0.0.1", "::1"})
	require.NoError(t, err)

	api := httptest.NewServer(httpapi.NewServer(httpapi.Options{
		Checker:        component,
		Sessions:       store,
		Logger:         logger.NewTestLogger(t),
		TrustedProxies: proxies,
	}).Routes())
	t.Cleanup(api.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &environment{
		moderation: moderation,
		target:     target,
		component:  component,
		api:        api,
		client:     &http.Client{Jar: jar, Timeout: 10 * time.Second},
	}
}

func (e *environment) startForm(t *testing.T, formID string) string {
	t.Helper()
	resp, err := e.client.Get(e.api.URL + "/forms/" + formID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		FormID  string `json:"formId"`
		CheckJS string `json:"checkJs"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, formID, body.FormID)
	return body.CheckJS
}

func (e *environment) post(t *testing.T, path string, form url.Values) (int, httpapi.Verdict) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, e.api.URL+path, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Forwarded-For", "203.0.113.77")
	req.Header.Set("User-Agent", "e2e-browser/1.0")
	req.Header.Set("Referer", "https://shop.example/signup")

	resp, err := e.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var verdict httpapi.Verdict
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusForbidden {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&verdict))
	}
	return resp.StatusCode, verdict
}

// ==========================
// Scenarios
// ==========================

func TestE2E_RegistrationFlow(t *testing.T) {
	env := setup(t)

	checkJS := env.startForm(t, "signup")
	assert.Equal(t, env.component.CheckJsCode(), checkJS)

	status, verdict := env.post(t, "/check/user", url.Values{
		"email":      {"alice@example.com"},
		"nickname":   {"alice"},
		"ct_formid":  {"signup"},
		"ct_checkjs": {checkJS},
	})
	require.Equal(t, http.StatusOK, status)
	assert.True(t, verdict.Allowed)
	assert.Equal(t, "OK", verdict.Comment)

	sent := env.moderation.last(t)
	assert.Equal(t, cleantalk.MethodCheckNewUser, sent.MethodName)
	assert.Equal(t, "e2e-key", sent.AuthKey)
	assert.Equal(t, antispam.AgentVersion, sent.Agent)
	assert.Equal(t, "de", sent.ResponseLang)
	assert.Equal(t, "203.0.113.77", sent.SenderIP)
	assert.Equal(t, "alice@example.com", sent.SenderEmail)
	assert.Equal(t, 1, sent.JSOn)
	require.NotNil(t, sent.SubmitTime)
	assert.GreaterOrEqual(t, *sent.SubmitTime, int64(0))

	var info cleantalk.SenderInfo
	require.NoError(t, json.Unmarshal([]byte(sent.SenderInfo), &info))
	assert.Equal(t, "https://shop.example/signup", info.Referrer)
	assert.Equal(t, "e2e-browser/1.0", info.UserAgent)
	assert.Equal(t, "de", info.CMSLang)

	// The start time is consumed, so a replayed submission carries none.
	status, _ = env.post(t, "/check/user", url.Values{
		"email":     {"alice@example.com"},
		"ct_formid": {"signup"},
	})
	require.Equal(t, http.StatusOK, status)
	replay := env.moderation.last(t)
	assert.Nil(t, replay.SubmitTime)
	assert.Equal(t, 0, replay.JSOn)
}

func TestE2E_SpamRegistrationRejected(t *testing.T) {
	env := setup(t)
	env.startForm(t, "signup")

	status, verdict := env.post(t, "/check/user", url.Values{
		"email":     {"spam-bot@example.com"},
		"ct_formid": {"signup"},
	})
	assert.Equal(t, http.StatusForbidden, status)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, "*** Forbidden. Sender blacklisted. ***", verdict.Comment)
}

func TestE2E_MessageNeedingApprovalIsLogged(t *testing.T) {
	env := setup(t)

	status, verdict := env.post(t, "/check/message", url.Values{
		"message":  {"please moderate this"},
		"email":    {"bob@example.com"},
		"nickname": {"bob"},
	})
	require.Equal(t, http.StatusOK, status)
	assert.True(t, verdict.Allowed)

	sent := env.moderation.last(t)
	assert.Equal(t, cleantalk.MethodCheckMessage, sent.MethodName)
	assert.Equal(t, "please moderate this", sent.Message)

	env.target.mu.Lock()
	defer env.target.mu.Unlock()
	require.Len(t, env.target.lines, 1)
	assert.Equal(t, `ext.cleantalk: Need admin approval for "isAllowMessage": Manual moderation required`, env.target.lines[0])
}
