package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/vidmorph/vidmorph/internal/service/convert"
)

// StatsHandler exposes the lifetime outcome counters.
type StatsHandler struct {
	service *convert.Service
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(service *convert.Service) *StatsHandler {
	return &StatsHandler{service: service}
}

// StatsOutput is the output for the stats endpoint.
type StatsOutput struct {
	Body struct {
		Total     uint64 `json:"total" doc:"Jobs that reached a terminal phase"`
		Succeeded uint64 `json:"succeeded"`
		Failed    uint64 `json:"failed"`
	}
}

// Register registers the stats route with the API.
func (h *StatsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getStats",
		Method:      "GET",
		Path:        "/api/v1/stats",
		Summary:     "Conversion statistics",
		Description: "Returns lifetime counters of finished conversions",
		Tags:        []string{"System"},
	}, h.GetStats)
}

// GetStats returns a snapshot of the counters.
func (h *StatsHandler) GetStats(ctx context.Context, input *struct{}) (*StatsOutput, error) {
	snap := h.service.Stats()

	out := &StatsOutput{}
	out.Body.Total = snap.Total
	out.Body.Succeeded = snap.Succeeded
	out.Body.Failed = snap.Failed
	return out, nil
}
