package checkuser

import (
	"context"
	"fmt"
	"time"

	"cleantalk-antispam/internal/common/camunda"
	"cleantalk-antispam/internal/common/config"
	"cleantalk-antispam/internal/common/errors"
	"cleantalk-antispam/internal/common/logger"
	"cleantalk-antispam/internal/common/metrics"
	"cleantalk-antispam/internal/common/validation"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType   = "antispam.check-user"
	configName = "check-user"
)

type Handler struct {
	config       *Config
	logger       logger.Logger
	camunda      *camunda.Client
	service      *Service
	errorHandler *errors.ErrorHandler
	inputSchema  *validation.Validator
	observer     JobObserver
	jobWorker    worker.JobWorker
}

// JobObserver is notified of every finished job.
type JobObserver interface {
	RecordJobProcessed(ctx context.Context, taskType, status string)
}

type HandlerOptions struct {
	AppConfig    *config.Config
	Camunda      *camunda.Client
	CustomConfig *Config
	Logger       logger.Logger
	Checker      UserChecker
	Sessions     SessionStore
	Observer     JobObserver
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	workerConfig := createConfigFromAppConfig(opts.AppConfig, opts.CustomConfig)

	if err := workerConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", configName, err)
	}
	if opts.Checker == nil {
		return nil, fmt.Errorf("invalid configuration for %s: checker is required", configName)
	}
	inputSchema, err := validation.Compile(GetInputSchema())
	if err != nil {
		return nil, fmt.Errorf("input schema for %s: %w", configName, err)
	}

	var loggerInstance logger.Logger
	if opts.Logger != nil {
		loggerInstance = opts.Logger
	} else {
		loggerInstance = logger.NewStructured("info", "json")
	}
	loggerInstance = loggerInstance.WithFields(map[string]interface{}{"worker": TaskType})

	handler := &Handler{
		config:       workerConfig,
		logger:       loggerInstance,
		camunda:      opts.Camunda,
		observer:     opts.Observer,
		errorHandler: errors.NewErrorHandler(loggerInstance),
		inputSchema:  inputSchema,
	}

	handler.service = NewService(ServiceDependencies{
		Logger:   loggerInstance,
		Checker:  opts.Checker,
		Sessions: opts.Sessions,
	}, handler.config)

	return handler, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.logger.Info("Processing registration check", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
	})

	input, err := h.parseInput(job)
	if err != nil {
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, extractErrorCode(err)).Inc()
		h.errorHandler.HandleJobError(ctx, client, job, err)
		h.observe(ctx, "failed")
		return
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, extractErrorCode(err)).Inc()
		h.errorHandler.HandleJobError(ctx, client, job, err)
		h.observe(ctx, "failed")
		return
	}

	h.completeJob(ctx, client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
	h.observe(ctx, "completed")
}

func (h *Handler) observe(ctx context.Context, status string) {
	if h.observer != nil {
		h.observer.RecordJobProcessed(ctx, TaskType, status)
	}
}

// Execute runs the check for already parsed input.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.service.Execute(ctx, input)
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	variables, err := job.GetVariablesAsMap()
	if err != nil {
		return nil, errors.NewValidationFailedError(fmt.Sprintf("failed to parse job variables: %v", err))
	}

	validationResult := h.inputSchema.Validate(variables)
	if !validationResult.Valid {
		return nil, errors.NewValidationFailedError(
			fmt.Sprintf("Validation errors: %v", validationResult.GetErrorMessages()),
		)
	}

	input := &Input{
		ClientIP: variables["clientIp"].(string),
	}
	input.Email, _ = variables["email"].(string)
	input.Nickname, _ = variables["nickname"].(string)
	input.Referrer, _ = variables["referrer"].(string)
	input.UserAgent, _ = variables["userAgent"].(string)
	input.SessionID, _ = variables["sessionId"].(string)
	input.FormID, _ = variables["formId"].(string)
	input.CheckJS, _ = variables["checkJs"].(string)

	return input, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	variables := map[string]interface{}{
		"allowed": output.Allowed,
		"comment": output.Comment,
	}

	request, err := client.NewCompleteJobCommand().JobKey(job.GetKey()).VariablesFromMap(variables)
	if err != nil {
		h.logger.Error("Failed to create complete job command", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
		return
	}

	if _, err := request.Send(ctx); err != nil {
		h.logger.Error("Failed to complete job", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
		return
	}

	h.logger.Info("Completed registration check", map[string]interface{}{
		"jobKey":  job.GetKey(),
		"allowed": output.Allowed,
	})
}

func (h *Handler) Register() error {
	if !h.config.Enabled {
		h.logger.Info("Worker is disabled, skipping registration", nil)
		return nil
	}
	if h.camunda == nil {
		return fmt.Errorf("camunda client is required to register %s", TaskType)
	}

	h.jobWorker = h.camunda.OpenWorker(h, camunda.WorkerOptions{
		MaxJobsActive: h.config.MaxJobsActive,
		Timeout:       h.config.Timeout,
	}, h.logger)
	return nil
}

// JobWorker returns the worker opened by Register, or nil.
func (h *Handler) JobWorker() worker.JobWorker {
	return h.jobWorker
}

func (h *Handler) GetTaskType() string {
	return TaskType
}

func (h *Handler) IsEnabled() bool {
	return h.config.Enabled
}

func (h *Handler) GetConfig() *Config {
	return h.config
}

func extractErrorCode(err error) string {
	return string(errors.Normalize(err).Code)
}

func createConfigFromAppConfig(appConfig *config.Config, customConfig *Config) *Config {
	if customConfig != nil {
		return customConfig
	}

	cfg := DefaultConfig()

	if appConfig != nil {
		if workerCfg, exists := appConfig.Workers[configName]; exists {
			cfg.Enabled = workerCfg.Enabled
			if workerCfg.MaxJobsActive > 0 {
				cfg.MaxJobsActive = workerCfg.MaxJobsActive
			}
			if workerCfg.Timeout > 0 {
				cfg.Timeout = config.GetDuration(workerCfg.Timeout)
			}
		}
	}

	return cfg
}
