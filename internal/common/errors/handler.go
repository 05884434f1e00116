// internal/common/errors/handler.go
package errors

import (
	"context"
	"encoding/json"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

// JobAction is what the broker is told to do with a failed job.
type JobAction string

const (
	ActionFail  JobAction = "fail"
	ActionThrow JobAction = "throw"
)

// JobOutcome is the resolved reaction to a job error.
type JobOutcome struct {
	Action    JobAction
	Error     *BPMNError
	Remaining int32
}

// ErrorHandler reports worker errors back to Zeebe.
type ErrorHandler struct {
	logger Logger
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// ResolveJobError decides between failing a job for redelivery and throwing
// a BPMN error. Remaining never exceeds what the broker still allows.
func ResolveJobError(job entities.Job, err error) JobOutcome {
	bpmnErr := ConvertToBPMNError(Normalize(err))

	if bpmnErr.Retries <= 0 || job.Retries <= 0 {
		return JobOutcome{Action: ActionThrow, Error: bpmnErr}
	}

	remaining := int32(bpmnErr.Retries)
	if job.Retries < remaining {
		remaining = job.Retries
	}
	return JobOutcome{Action: ActionFail, Error: bpmnErr, Remaining: remaining - 1}
}

// HandleJobError resolves err and sends the matching fail or throw command.
func (h *ErrorHandler) HandleJobError(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	outcome := ResolveJobError(job, err)
	h.log(job, err, outcome)

	vars := outcome.Error.ToErrorVariables()
	var sendErr error

	switch outcome.Action {
	case ActionFail:
		cmd := client.NewFailJobCommand().
			JobKey(job.Key).
			Retries(outcome.Remaining).
			ErrorMessage(outcome.Error.Message)
		if withVars, verr := cmd.VariablesFromMap(vars); verr == nil {
			_, sendErr = withVars.Send(ctx)
		} else {
			_, sendErr = cmd.Send(ctx)
		}
	default:
		cmd := client.NewThrowErrorCommand().
			JobKey(job.Key).
			ErrorCode(outcome.Error.Code).
			ErrorMessage(outcome.Error.Message)
		payload, _ := json.Marshal(vars)
		if withVars, verr := cmd.VariablesFromString(string(payload)); verr == nil {
			_, sendErr = withVars.Send(ctx)
		} else {
			_, sendErr = cmd.Send(ctx)
		}
	}

	if sendErr != nil {
		h.logger.Error("Failed to report job error", map[string]interface{}{
			"jobKey": job.Key,
			"action": string(outcome.Action),
			"error":  sendErr.Error(),
		})
	}
}

func (h *ErrorHandler) log(job entities.Job, err error, outcome JobOutcome) {
	stdErr := Normalize(err)
	h.logger.Error("Job failed", map[string]interface{}{
		"jobKey":             job.Key,
		"jobType":            job.Type,
		"processInstanceKey": job.ProcessInstanceKey,
		"errorCode":          string(stdErr.Code),
		"category":           GetErrorCategory(stdErr.Code),
		"details":            stdErr.Details,
		"action":             string(outcome.Action),
		"retriesLeft":        outcome.Remaining,
	})
}
