package handlers

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/vidmorph/vidmorph/internal/storage"
)

// HealthHandler handles the health check endpoint.
type HealthHandler struct {
	version   string
	startTime time.Time
	workspace *storage.Workspace
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string, ws *storage.Workspace) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
		workspace: ws,
	}
}

// CPUInfo holds load information.
type CPUInfo struct {
	Cores     int     `json:"cores"`
	Load1Min  float64 `json:"load_1min"`
	Load5Min  float64 `json:"load_5min"`
	Load15Min float64 `json:"load_15min"`
}

// MemoryInfo holds system and process memory usage.
type MemoryInfo struct {
	TotalMemoryMB     float64 `json:"total_memory_mb"`
	UsedMemoryMB      float64 `json:"used_memory_mb"`
	AvailableMemoryMB float64 `json:"available_memory_mb"`
	ProcessMemoryMB   float64 `json:"process_memory_mb"`
}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body struct {
		Status        string     `json:"status" enum:"healthy,degraded"`
		Timestamp     string     `json:"timestamp"`
		Version       string     `json:"version"`
		Uptime        string     `json:"uptime"`
		UptimeSeconds float64    `json:"uptime_seconds"`
		CPU           CPUInfo    `json:"cpu"`
		Memory        MemoryInfo `json:"memory"`
		Workspace     string     `json:"workspace" doc:"Workspace writability check" enum:"ok,error"`
	}
}

// Register registers the health route with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns service health including system metrics and workspace writability",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// GetHealth returns the service health status.
func (h *HealthHandler) GetHealth(ctx context.Context, input *struct{}) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	out := &HealthOutput{}
	out.Body.Status = "healthy"
	out.Body.Timestamp = now.UTC().Format(time.RFC3339)
	out.Body.Version = h.version
	out.Body.Uptime = uptime.Round(time.Second).String()
	out.Body.UptimeSeconds = uptime.Seconds()
	out.Body.CPU = h.cpuInfo()
	out.Body.Memory = h.memoryInfo()

	out.Body.Workspace = "ok"
	if err := h.checkWorkspace(); err != nil {
		out.Body.Workspace = "error"
		out.Body.Status = "degraded"
	}

	return out, nil
}

func (h *HealthHandler) cpuInfo() CPUInfo {
	info := CPUInfo{Cores: runtime.NumCPU()}

	if loadAvg, err := load.Avg(); err == nil && loadAvg != nil {
		info.Load1Min = loadAvg.Load1
		info.Load5Min = loadAvg.Load5
		info.Load15Min = loadAvg.Load15
	}
	return info
}

func (h *HealthHandler) memoryInfo() MemoryInfo {
	info := MemoryInfo{}

	if vmStat, err := mem.VirtualMemory(); err == nil && vmStat != nil {
		info.TotalMemoryMB = float64(vmStat.Total) / 1024 / 1024
		info.UsedMemoryMB = float64(vmStat.Used) / 1024 / 1024
		info.AvailableMemoryMB = float64(vmStat.Available) / 1024 / 1024
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if memInfo, err := proc.MemoryInfo(); err == nil && memInfo != nil {
			info.ProcessMemoryMB = float64(memInfo.RSS) / 1024 / 1024
		}
	}
	return info
}

// checkWorkspace verifies both workspace directories accept writes.
func (h *HealthHandler) checkWorkspace() error {
	if h.workspace == nil {
		return nil
	}
	for _, dir := range []string{h.workspace.InputsDir(), h.workspace.OutputsDir()} {
		probe := filepath.Join(dir, ".healthcheck.tmp")
		if err := os.WriteFile(probe, []byte("ok"), 0o640); err != nil {
			return err
		}
		_ = os.Remove(probe)
	}
	return nil
}
