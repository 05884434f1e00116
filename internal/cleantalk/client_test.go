package cleantalk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cleantalk-antispam/internal/common/errors"
	commonhttp "cleantalk-antispam/internal/common/http"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helpers
// ==========================

func newFakeServer(t *testing.T, status int, reply interface{}, seen *Request) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if seen != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		switch v := reply.(type) {
		case string:
			_, _ = w.Write([]byte(v))
		default:
			_ = json.NewEncoder(w).Encode(v)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func sampleRequest() *Request {
	submit := int64(12)
	return &Request{
		AuthKey:        "k1",
		Agent:          "go-1.0.0",
		ResponseLang:   "en",
		SenderIP:       "203.0.113.7",
		SenderEmail:    "user@example.com",
		SenderNickname: "user",
		SubmitTime:     &submit,
		JSOn:           1,
		SenderInfo:     `{"REFFERRER":"","USER_AGENT":"test","cms_lang":"en"}`,
	}
}

// ==========================
// Method Dispatch Tests
// ==========================

func TestClient_MethodNames(t *testing.T) {
	tests := []struct {
		name       string
		call       func(*Client, context.Context, *Request) (*Response, error)
		wantMethod string
	}{
		{
			name:       "user registration",
			call:       (*Client).IsAllowUser,
			wantMethod: MethodCheckNewUser,
		},
		{
			name:       "message",
			call:       (*Client).IsAllowMessage,
			wantMethod: MethodCheckMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen Request
			srv := newFakeServer(t, http.StatusOK, Response{Allow: 1, Comment: "ok"}, &seen)
			client := NewClient(srv.URL, WithHTTPClient(commonhttp.NewClientFrom(srv.Client())))

			resp, err := tt.call(client, context.Background(), sampleRequest())
			require.NoError(t, err)
			assert.True(t, resp.Allowed())
			assert.Equal(t, "ok", resp.Comment)

			assert.Equal(t, tt.wantMethod, seen.MethodName)
			assert.Equal(t, "k1", seen.AuthKey)
			assert.Equal(t, "go-1.0.0", seen.Agent)
			require.NotNil(t, seen.SubmitTime)
			assert.Equal(t, int64(12), *seen.SubmitTime)
			assert.Equal(t, 1, seen.JSOn)
		})
	}
}

func TestClient_NullSubmitTime(t *testing.T) {
	var raw map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_ = json.NewEncoder(w).Encode(Response{Allow: 0, Comment: "*** Forbidden. Spam sender ***"})
	}))
	defer srv.Close()

	req := sampleRequest()
	req.SubmitTime = nil

	resp, err := NewClient(srv.URL).IsAllowUser(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, resp.Allowed())

	value, present := raw["submit_time"]
	assert.True(t, present)
	assert.Nil(t, value)
}

// ==========================
// Response Handling Tests
// ==========================

func TestClient_ResponseFlags(t *testing.T) {
	srv := newFakeServer(t, http.StatusOK, Response{Allow: 1, Comment: "pending", Inactive: 1}, nil)

	resp, err := NewClient(srv.URL).IsAllowMessage(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.True(t, resp.Allowed())
	assert.True(t, resp.NeedsApproval())
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		reply    interface{}
		wantCode errors.ErrorCode
	}{
		{
			name:     "server error",
			status:   http.StatusInternalServerError,
			reply:    "boom",
			wantCode: errors.ErrCodeExternalService,
		},
		{
			name:     "malformed body",
			status:   http.StatusOK,
			reply:    "{not json",
			wantCode: errors.ErrCodeExternalService,
		},
		{
			name:     "api errno",
			status:   http.StatusOK,
			reply:    Response{Errno: 1, Errstr: "Auth key is empty"},
			wantCode: errors.ErrCodeCleantalkAPI,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newFakeServer(t, tt.status, tt.reply, nil)

			resp, err := NewClient(srv.URL).IsAllowUser(context.Background(), sampleRequest())
			assert.Nil(t, resp)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, tt.wantCode), "got %v", err)
		})
	}
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(Response{Allow: 1})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, WithTimeout(20*time.Millisecond))

	_, err := client.IsAllowUser(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeTimeout), "got %v", err)
}

func TestClient_NilRequest(t *testing.T) {
	_, err := NewClient("http://127.0.0.1:1").IsAllowUser(context.Background(), nil)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidArgument))
}

func TestNewClient_TrimsTrailingSlash(t *testing.T) {
	assert.Equal(t, "http://moderate.cleantalk.ru", NewClient("http://moderate.cleantalk.ru/").ServerURL())
}

func TestClient_SendsUserAgent(t *testing.T) {
	var agent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Response{Allow: 1, Comment: "OK"})
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL, WithTimeout(time.Second)).IsAllowUser(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.True(t, resp.Allowed())
	assert.Equal(t, "cleantalk-antispam-go", agent)
}
