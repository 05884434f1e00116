// internal/common/camunda/worker.go
package camunda

import (
	"fmt"
	"time"

	"cleantalk-antispam/internal/common/logger"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// JobHandler is implemented by every task handler.
type JobHandler interface {
	Handle(client worker.JobClient, job entities.Job)
	GetTaskType() string
}

// WorkerOptions configures one job worker.
type WorkerOptions struct {
	MaxJobsActive int
	Timeout       time.Duration
	// RequestTimeout bounds each activate-jobs poll; zero keeps the client default.
	RequestTimeout time.Duration
}

// OpenWorker starts polling jobs of the handler's task type.
func (c *Client) OpenWorker(handler JobHandler, opts WorkerOptions, log logger.Logger) worker.JobWorker {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = c.requestTimeout
	}
	return OpenWorker(c.client, handler, opts, log)
}

// OpenWorker starts polling taskType jobs for handler on a raw client.
func OpenWorker(client zbc.Client, handler JobHandler, opts WorkerOptions, log logger.Logger) worker.JobWorker {
	taskType := handler.GetTaskType()

	builder := client.NewJobWorker().
		JobType(taskType).
		Handler(handler.Handle).
		MaxJobsActive(opts.MaxJobsActive).
		Timeout(opts.Timeout).
		Name(fmt.Sprintf("%s-worker", taskType))
	if opts.RequestTimeout > 0 {
		builder = builder.RequestTimeout(opts.RequestTimeout)
	}
	jobWorker := builder.Open()

	log.Info("worker registered with Camunda", map[string]interface{}{
		"taskType":      taskType,
		"maxJobsActive": opts.MaxJobsActive,
		"timeout":       opts.Timeout.String(),
	})

	return jobWorker
}

// WorkerSet closes a group of job workers together.
type WorkerSet struct {
	workers map[string]worker.JobWorker
	logger  logger.Logger
}

func NewWorkerSet(log logger.Logger) *WorkerSet {
	return &WorkerSet{workers: make(map[string]worker.JobWorker), logger: log}
}

func (s *WorkerSet) Add(taskType string, w worker.JobWorker) {
	s.workers[taskType] = w
}

func (s *WorkerSet) Len() int {
	return len(s.workers)
}

// Close stops every worker and waits for in-flight jobs.
func (s *WorkerSet) Close() {
	for taskType, w := range s.workers {
		s.logger.Info("stopping worker", map[string]interface{}{"taskType": taskType})
		w.Close()
		w.AwaitClose()
	}
	s.workers = make(map[string]worker.JobWorker)
}
