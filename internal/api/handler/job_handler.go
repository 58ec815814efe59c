package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cuongbtq/helpdesk-be/internal/api/dto"
	"github.com/cuongbtq/helpdesk-be/internal/broker"
	"github.com/cuongbtq/helpdesk-be/internal/worker/domain"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

var jobStates = []string{
	domain.JobStateWaiting,
	domain.JobStateActive,
	domain.JobStateCompleted,
	domain.JobStateFailed,
}

func toJobDTO(job *domain.Job) dto.JobDTO {
	d := dto.JobDTO{
		JobID:        job.ID,
		Queue:        job.QueueName,
		JobType:      job.JobType,
		Payload:      job.Payload,
		State:        job.State,
		AttemptsMade: job.AttemptsMade,
		MaxAttempts:  job.MaxAttempts,
		CreatedAt:    job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    job.UpdatedAt.Format(time.RFC3339),
	}
	if job.LastError != nil {
		d.LastError = *job.LastError
	}
	if job.FinishedAt != nil {
		d.FinishedAt = job.FinishedAt.Format(time.RFC3339)
	}
	return d
}

// jobIDParam returns the job_id path parameter, or writes 400 and returns
// false when it is not a UUID
func (h *JobHandler) jobIDParam(c *gin.Context) (string, bool) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		h.logger.Warn("Invalid job_id format", slog.String("job_id", jobID), slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return "", false
	}
	return jobID, true
}

func (h *JobHandler) writeJobError(c *gin.Context, op string, jobID string, err error) {
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
	case errors.Is(err, domain.ErrJobNotFailed):
		c.JSON(http.StatusConflict, gin.H{"error": "Only failed jobs can be retried"})
	case errors.Is(err, domain.ErrJobInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "Job is still waiting or active"})
	case errors.Is(err, domain.ErrBrokerUnavailable):
		h.logger.Error("Broker unavailable", slog.String("op", op), slog.String("job_id", jobID), slog.Any("error", err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Job broker unavailable"})
	default:
		h.logger.Error("Job operation failed", slog.String("op", op), slog.String("job_id", jobID), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to " + op})
	}
}

// GetJob handles GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	job, err := h.jobs.Get(c.Request.Context(), jobID)
	if err != nil {
		h.writeJobError(c, "get job", jobID, err)
		return
	}

	c.JSON(http.StatusOK, toJobDTO(job))
}

// ListJobs handles GET /api/v1/jobs
// Lists ledger jobs newest first with cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Warn("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.Queue != "" && !slices.Contains(domain.Queues, req.Queue) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown queue"})
		return
	}
	if req.State != "" && !slices.Contains(jobStates, req.State) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown state"})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Warn("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	jobs, err := h.jobs.List(c.Request.Context(), broker.ListFilter{
		Queue:    req.Queue,
		State:    req.State,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	jobResponse := make([]dto.JobDTO, len(jobs))
	for i := range jobs {
		jobResponse[i] = toJobDTO(&jobs[i])
	}

	var nextCursor string
	if hasMore {
		last := jobs[len(jobs)-1]
		nextCursor = EncodeJobCursor(&broker.Cursor{
			CreatedAt: last.CreatedAt,
			JobID:     last.ID,
		})
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobResponse,
		NextCursor: nextCursor,
	})
}

// RetryJob handles POST /api/v1/jobs/:job_id/retry
// Gives a retained failed job a fresh set of attempts
func (h *JobHandler) RetryJob(c *gin.Context) {
	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	job, err := h.jobs.Requeue(c.Request.Context(), jobID)
	if err != nil {
		h.writeJobError(c, "retry job", jobID, err)
		return
	}

	c.JSON(http.StatusAccepted, toJobDTO(job))
}

// DeleteJob handles DELETE /api/v1/jobs/:job_id
// Purges a completed or failed job from the ledger
func (h *JobHandler) DeleteJob(c *gin.Context) {
	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	if err := h.jobs.Delete(c.Request.Context(), jobID); err != nil {
		h.writeJobError(c, "delete job", jobID, err)
		return
	}

	c.Status(http.StatusNoContent)
}
