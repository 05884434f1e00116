package checkuser

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"cleantalk-antispam/internal/antispam"
	"cleantalk-antispam/internal/cleantalk"
	"cleantalk-antispam/internal/common/config"
	"cleantalk-antispam/internal/common/errors"
	"cleantalk-antispam/internal/common/logger"
	"cleantalk-antispam/internal/common/validation"
	"cleantalk-antispam/internal/session"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Checker Implementation
// ==========================

type MockChecker struct {
	mock.Mock
}

func (m *MockChecker) IsAllowUser(ctx context.Context, rc antispam.RequestContext, sess antispam.Session, email, nickname string) (bool, string, error) {
	args := m.Called(ctx, rc, sess, email, nickname)
	return args.Bool(0), args.String(1), args.Error(2)
}

type stubAPIClient struct {
	response *cleantalk.Response
	requests []*cleantalk.Request
}

func (s *stubAPIClient) IsAllowUser(_ context.Context, req *cleantalk.Request) (*cleantalk.Response, error) {
	s.requests = append(s.requests, req)
	return s.response, nil
}

func (s *stubAPIClient) IsAllowMessage(_ context.Context, req *cleantalk.Request) (*cleantalk.Response, error) {
	return nil, fmt.Errorf("unexpected message check")
}

// ==========================
// Mock Job Helper
// ==========================

func createMockJob(key int64, variables map[string]interface{}) entities.Job {
	variablesJSON, _ := json.Marshal(variables)

	activatedJob := &pb.ActivatedJob{
		Key:                      key,
		Type:                     TaskType,
		ProcessInstanceKey:       key * 10,
		BpmnProcessId:            "test-process",
		ProcessDefinitionVersion: 1,
		ProcessDefinitionKey:     1,
		ElementId:                "Activity_CheckUser",
		ElementInstanceKey:       1,
		CustomHeaders:            "{}",
		Worker:                   "test-worker",
		Retries:                  3,
		Deadline:                 0,
		Variables:                string(variablesJSON),
	}

	return entities.Job{ActivatedJob: activatedJob}
}

// ==========================
// Test Helpers
// ==========================

func createValidConfig() *Config {
	return &Config{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30 * time.Second,
	}
}

func createValidInput() *Input {
	return &Input{
		Email:     "newuser@example.com",
		Nickname:  "newuser",
		ClientIP:  "203.0.113.7",
		Referrer:  "https://example.com/register",
		UserAgent: "Mozilla/5.0",
		SessionID: "sess-1",
		FormID:    "register",
		CheckJS:   "0123abcd",
	}
}

// ==========================
// Handler Creation Tests
// ==========================

func TestHandler_NewHandler(t *testing.T) {
	tests := []struct {
		name    string
		opts    HandlerOptions
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid configuration",
			opts: HandlerOptions{
				CustomConfig: createValidConfig(),
				Logger:       logger.NewNoOpLogger(),
				Checker:      &MockChecker{},
			},
			wantErr: false,
		},
		{
			name: "missing checker",
			opts: HandlerOptions{
				CustomConfig: createValidConfig(),
			},
			wantErr: true,
			errMsg:  "checker is required",
		},
		{
			name: "invalid timeout",
			opts: HandlerOptions{
				CustomConfig: &Config{Enabled: true, MaxJobsActive: 5, Timeout: -1 * time.Second},
				Checker:      &MockChecker{},
			},
			wantErr: true,
			errMsg:  "timeout must be positive",
		},
		{
			name: "invalid max jobs active",
			opts: HandlerOptions{
				CustomConfig: &Config{Enabled: true, MaxJobsActive: 0, Timeout: 30 * time.Second},
				Checker:      &MockChecker{},
			},
			wantErr: true,
			errMsg:  "max_jobs_active must be positive",
		},
		{
			name: "default logger created when not provided",
			opts: HandlerOptions{
				CustomConfig: createValidConfig(),
				Checker:      &MockChecker{},
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, err := NewHandler(tt.opts)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.Nil(t, handler)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, handler)
				assert.NotNil(t, handler.config)
				assert.NotNil(t, handler.logger)
				assert.NotNil(t, handler.service)
			}
		})
	}
}

func TestHandler_ConfigFromAppConfig(t *testing.T) {
	appConfig := &config.Config{
		Workers: map[string]config.WorkerConfig{
			"check-user": {Enabled: false, MaxJobsActive: 12, Timeout: 4500},
		},
	}

	handler, err := NewHandler(HandlerOptions{
		AppConfig: appConfig,
		Logger:    logger.NewNoOpLogger(),
		Checker:   &MockChecker{},
	})
	require.NoError(t, err)

	assert.False(t, handler.IsEnabled())
	assert.Equal(t, 12, handler.GetConfig().MaxJobsActive)
	assert.Equal(t, 4500*time.Millisecond, handler.GetConfig().Timeout)
}

func TestHandler_RegisterDisabledSkipsCamunda(t *testing.T) {
	handler, err := NewHandler(HandlerOptions{
		CustomConfig: &Config{Enabled: false, MaxJobsActive: 1, Timeout: time.Second},
		Logger:       logger.NewNoOpLogger(),
		Checker:      &MockChecker{},
	})
	require.NoError(t, err)

	assert.NoError(t, handler.Register())
	assert.Nil(t, handler.JobWorker())
}

func TestHandler_RegisterRequiresCamunda(t *testing.T) {
	handler, err := NewHandler(HandlerOptions{
		CustomConfig: createValidConfig(),
		Logger:       logger.NewNoOpLogger(),
		Checker:      &MockChecker{},
	})
	require.NoError(t, err)

	err = handler.Register()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "camunda client is required")
}

// ==========================
// Input Parsing Tests
// ==========================

func TestHandler_ParseInput(t *testing.T) {
	handler := &Handler{
		config:      createValidConfig(),
		logger:      logger.NewNoOpLogger(),
		inputSchema: validation.MustCompile(GetInputSchema()),
	}

	tests := []struct {
		name      string
		variables map[string]interface{}
		wantErr   bool
		validate  func(*testing.T, *Input)
	}{
		{
			name: "valid input with all fields",
			variables: map[string]interface{}{
				"email":     "test@example.com",
				"nickname":  "tester",
				"clientIp":  "198.51.100.4",
				"referrer":  "https://example.com/",
				"userAgent": "curl/8.0",
				"sessionId": "abc",
				"formId":    "signup",
				"checkJs":   "deadbeef",
			},
			validate: func(t *testing.T, input *Input) {
				assert.Equal(t, "test@example.com", input.Email)
				assert.Equal(t, "tester", input.Nickname)
				assert.Equal(t, "198.51.100.4", input.ClientIP)
				assert.Equal(t, "https://example.com/", input.Referrer)
				assert.Equal(t, "curl/8.0", input.UserAgent)
				assert.Equal(t, "abc", input.SessionID)
				assert.Equal(t, "signup", input.FormID)
				assert.Equal(t, "deadbeef", input.CheckJS)
			},
		},
		{
			name: "valid input minimal fields",
			variables: map[string]interface{}{
				"clientIp": "::1",
			},
			validate: func(t *testing.T, input *Input) {
				assert.Equal(t, "::1", input.ClientIP)
				assert.Empty(t, input.Email)
				assert.Empty(t, input.Nickname)
				assert.Empty(t, input.SessionID)
			},
		},
		{
			name: "unknown process variables are ignored",
			variables: map[string]interface{}{
				"clientIp":  "10.0.0.1",
				"orderId":   42,
				"something": true,
			},
			validate: func(t *testing.T, input *Input) {
				assert.Equal(t, "10.0.0.1", input.ClientIP)
			},
		},
		{
			name:      "missing client ip",
			variables: map[string]interface{}{"email": "test@example.com"},
			wantErr:   true,
		},
		{
			name:      "client ip wrong type",
			variables: map[string]interface{}{"clientIp": 127001},
			wantErr:   true,
		},
		{
			name: "check js junk is accepted",
			variables: map[string]interface{}{
				"clientIp": "10.0.0.1",
				"checkJs":  "bot-garbage",
			},
			validate: func(t *testing.T, input *Input) {
				assert.Equal(t, "bot-garbage", input.CheckJS)
			},
		},
		{
			name: "check js too long",
			variables: map[string]interface{}{
				"clientIp": "10.0.0.1",
				"checkJs":  strings.Repeat("a", 257),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := createMockJob(12345, tt.variables)

			input, err := handler.parseInput(job)

			if tt.wantErr {
				require.Error(t, err)
				stdErr, ok := err.(*errors.StandardError)
				require.True(t, ok, "error should be StandardError")
				assert.Equal(t, errors.ErrCodeValidationFailed, stdErr.Code)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, input)
			if tt.validate != nil {
				tt.validate(t, input)
			}
		})
	}
}

// ==========================
// Service Tests
// ==========================

func TestService_Execute(t *testing.T) {
	tests := []struct {
		name        string
		allowed     bool
		comment     string
		checkErr    error
		wantErr     bool
		wantAllowed bool
	}{
		{name: "allowed", allowed: true, comment: "OK", wantAllowed: true},
		{name: "denied", allowed: false, comment: "*** Forbidden. Sender blacklisted. ***", wantAllowed: false},
		{name: "remote failure", checkErr: errors.NewTimeoutError("cleantalk", context.DeadlineExceeded), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := &MockChecker{}
			input := createValidInput()
			checker.On("IsAllowUser", mock.Anything,
				mock.MatchedBy(func(rc antispam.RequestContext) bool {
					return rc.UserIP() == input.ClientIP &&
						rc.Post(antispam.FieldFormID) == input.FormID &&
						rc.Post(antispam.FieldCheckJS) == input.CheckJS
				}),
				mock.Anything, input.Email, input.Nickname,
			).Return(tt.allowed, tt.comment, tt.checkErr)

			service := NewService(ServiceDependencies{
				Logger:   logger.NewNoOpLogger(),
				Checker:  checker,
				Sessions: session.NewMemoryStore(time.Hour),
			}, createValidConfig())

			output, err := service.Execute(context.Background(), input)

			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.HasCode(err, errors.ErrCodeTimeout))
				assert.Nil(t, output)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantAllowed, output.Allowed)
				assert.Equal(t, tt.comment, output.Comment)
			}
			checker.AssertExpectations(t)
		})
	}
}

func TestService_ExecuteUsesVisitorSession(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	api := &stubAPIClient{response: &cleantalk.Response{Allow: 1, Comment: "OK"}}

	component, err := antispam.New(antispam.Config{APIKey: "key", APIURL: "https://moderate.example"}, antispam.Dependencies{
		Logger:    logger.NewNoOpLogger(),
		NewClient: func(string, time.Duration) antispam.APIClient { return api },
		Now:       func() time.Time { return now },
	})
	require.NoError(t, err)

	store := session.NewMemoryStore(time.Hour)
	sess := store.ForSession("visitor")
	require.NoError(t, sess.Set(context.Background(), antispam.SessionKeyFormSubmit+"register",
		strconv.FormatInt(now.Add(-12*time.Second).Unix(), 10)))

	service := NewService(ServiceDependencies{
		Logger:   logger.NewNoOpLogger(),
		Checker:  component,
		Sessions: store,
	}, createValidConfig())

	input := createValidInput()
	input.SessionID = "visitor"
	input.CheckJS = component.CheckJsCode()

	output, err := service.Execute(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, output.Allowed)

	require.Len(t, api.requests, 1)
	req := api.requests[0]
	require.NotNil(t, req.SubmitTime)
	assert.Equal(t, int64(12), *req.SubmitTime)
	assert.Equal(t, 1, req.JSOn)
	assert.Equal(t, input.ClientIP, req.SenderIP)

	_, found, err := sess.Get(context.Background(), antispam.SessionKeyFormSubmit+"register")
	require.NoError(t, err)
	assert.False(t, found, "start time should be consumed by the check")
}

func TestHandler_JunkCheckJsMeansJavascriptOff(t *testing.T) {
	api := &stubAPIClient{response: &cleantalk.Response{Allow: 1, Comment: "OK"}}
	component, err := antispam.New(antispam.Config{APIKey: "key", APIURL: "https://moderate.example"}, antispam.Dependencies{
		Logger:    logger.NewNoOpLogger(),
		NewClient: func(string, time.Duration) antispam.APIClient { return api },
	})
	require.NoError(t, err)

	handler, err := NewHandler(HandlerOptions{
		CustomConfig: createValidConfig(),
		Logger:       logger.NewNoOpLogger(),
		Checker:      component,
	})
	require.NoError(t, err)

	input, err := handler.parseInput(createMockJob(77, map[string]interface{}{
		"clientIp": "203.0.113.9",
		"checkJs":  "bot-garbage",
	}))
	require.NoError(t, err)

	output, err := handler.Execute(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, output.Allowed)

	require.Len(t, api.requests, 1)
	assert.Equal(t, 0, api.requests[0].JSOn)
}

func TestService_ExecuteWithoutSession(t *testing.T) {
	checker := &MockChecker{}
	checker.On("IsAllowUser", mock.Anything, mock.Anything, mock.Anything, "", "").Return(true, "OK", nil)

	service := NewService(ServiceDependencies{
		Logger:  logger.NewNoOpLogger(),
		Checker: checker,
	}, createValidConfig())

	output, err := service.Execute(context.Background(), &Input{ClientIP: "10.1.1.1"})
	require.NoError(t, err)
	assert.True(t, output.Allowed)
	checker.AssertExpectations(t)
}

// ==========================
// Configuration Tests
// ==========================

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, (&Config{MaxJobsActive: 1}).Validate())
	assert.Error(t, (&Config{Timeout: time.Second}).Validate())
}

func TestConfig_Default(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 5, cfg.MaxJobsActive)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
}

// ==========================
// Task Type and Schema Tests
// ==========================

func TestHandler_GetTaskType(t *testing.T) {
	handler := &Handler{config: createValidConfig()}
	assert.Equal(t, "antispam.check-user", handler.GetTaskType())
}

func TestTaskType_Naming(t *testing.T) {
	assert.NoError(t, validation.ValidateTaskType(TaskType))
}

func TestSchemas(t *testing.T) {
	input := GetInputSchema()
	assert.Equal(t, "object", input.Type)
	assert.Contains(t, input.Required, "clientIp")
	assert.Contains(t, input.Properties, "checkJs")

	output := GetOutputSchema()
	assert.ElementsMatch(t, []string{"allowed", "comment"}, output.Required)
	assert.Equal(t, "boolean", output.Properties["allowed"].Type)

	result := validation.ValidateInput(map[string]interface{}{"allowed": false, "comment": "spam"}, output)
	assert.True(t, result.Valid)
}

type recordingObserver struct {
	statuses []string
}

func (r *recordingObserver) RecordJobProcessed(_ context.Context, taskType, status string) {
	r.statuses = append(r.statuses, taskType+":"+status)
}

func TestHandler_ObserverReceivesStatus(t *testing.T) {
	observer := &recordingObserver{}
	handler, err := NewHandler(HandlerOptions{
		CustomConfig: createValidConfig(),
		Logger:       logger.NewNoOpLogger(),
		Checker:      &MockChecker{},
		Observer:     observer,
	})
	require.NoError(t, err)

	handler.observe(context.Background(), "completed")
	handler.observe(context.Background(), "failed")

	assert.Equal(t, []string{"antispam.check-user:completed", "antispam.check-user:failed"}, observer.statuses)
}
