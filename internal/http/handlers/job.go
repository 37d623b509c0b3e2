package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/vidmorph/vidmorph/internal/models"
	"github.com/vidmorph/vidmorph/internal/service/convert"
)

// JobHandler exposes job snapshots over the JSON API.
type JobHandler struct {
	service *convert.Service
}

// NewJobHandler creates a new job handler.
func NewJobHandler(service *convert.Service) *JobHandler {
	return &JobHandler{service: service}
}

// JobResponse represents a job in API responses.
type JobResponse struct {
	ID           string     `json:"id" doc:"Job identifier"`
	InputFormat  string     `json:"input_format" doc:"Declared upload format"`
	OutputFormat string     `json:"output_format" doc:"Requested target format"`
	Phase        string     `json:"phase" doc:"Lifecycle phase" enum:"queued,running,succeeded,failed"`
	Percent      float64    `json:"percent" doc:"Highest reported completion percentage"`
	Error        string     `json:"error,omitempty" doc:"Failure reason when phase is failed"`
	OutputID     string     `json:"output_id,omitempty" doc:"Artifact id for retrieval"`
	CreatedAt    time.Time  `json:"created_at"`
	TerminalAt   *time.Time `json:"terminal_at,omitempty"`
}

func jobResponseFromModel(job *models.Job) JobResponse {
	return JobResponse{
		ID:           job.ID,
		InputFormat:  job.InputFormat,
		OutputFormat: job.OutputFormat,
		Phase:        string(job.Phase),
		Percent:      job.LastReportedPercent,
		Error:        job.Error,
		OutputID:     job.OutputID,
		CreatedAt:    job.CreatedAt,
		TerminalAt:   job.TerminalAt,
	}
}

// ListJobsInput is the input for listing jobs.
type ListJobsInput struct{}

// ListJobsOutput is the output for listing jobs.
type ListJobsOutput struct {
	Body struct {
		Jobs []JobResponse `json:"jobs"`
	}
}

// GetJobInput is the input for fetching one job.
type GetJobInput struct {
	ID string `path:"id" doc:"Job ID"`
}

// GetJobOutput is the output for fetching one job.
type GetJobOutput struct {
	Body JobResponse
}

// Register registers the job routes with the API.
func (h *JobHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listJobs",
		Method:      "GET",
		Path:        "/api/v1/jobs",
		Summary:     "List jobs",
		Description: "Returns snapshots of all known conversion jobs, oldest first",
		Tags:        []string{"Jobs"},
	}, h.ListJobs)

	huma.Register(api, huma.Operation{
		OperationID: "getJob",
		Method:      "GET",
		Path:        "/api/v1/jobs/{id}",
		Summary:     "Get job",
		Description: "Returns a snapshot of one conversion job",
		Tags:        []string{"Jobs"},
	}, h.GetJob)
}

// ListJobs returns all job snapshots.
func (h *JobHandler) ListJobs(ctx context.Context, input *ListJobsInput) (*ListJobsOutput, error) {
	jobs := h.service.Jobs()

	out := &ListJobsOutput{}
	out.Body.Jobs = make([]JobResponse, 0, len(jobs))
	for _, job := range jobs {
		out.Body.Jobs = append(out.Body.Jobs, jobResponseFromModel(job))
	}
	return out, nil
}

// GetJob returns one job snapshot.
func (h *JobHandler) GetJob(ctx context.Context, input *GetJobInput) (*GetJobOutput, error) {
	job, err := h.service.Job(input.ID)
	if err != nil {
		return nil, huma.Error404NotFound("job not found")
	}
	return &GetJobOutput{Body: jobResponseFromModel(job)}, nil
}
