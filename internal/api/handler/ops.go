// Package handler provides HTTP handlers for the VoyaAI API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/voyaai/voyaai/internal/api/models"
	"github.com/voyaai/voyaai/internal/api/response"
	"github.com/voyaai/voyaai/internal/provider/resilience"
)

// Pinger checks a dependency is reachable. *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SessionCounter reports live editing sessions.
type SessionCounter interface {
	Len() int
}

// OpsHandlerConfig holds OpsHandler dependencies. All but the build info
// are optional.
type OpsHandlerConfig struct {
	Version   string
	BuildTime string
	Database  Pinger
	Registry  *resilience.Registry
	Sessions  SessionCounter
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsHandlerConfig
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsHandlerConfig) *OpsHandler {
	return &OpsHandler{cfg: cfg}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check. The service is
// ready when the plan store answers.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	db := h.databaseStatus(r.Context())
	health := models.Health{
		Status: db.Status,
		Time:   models.Timestamp(time.Now()),
	}
	if db.Status != models.HealthStatusOK {
		health.Details = map[string]interface{}{"database": db.Detail}
		response.JSON(w, r, http.StatusServiceUnavailable, health)
		return
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - provider and subsystem status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(time.Now()),
		Subsystems: []models.SubsystemStatus{h.databaseStatus(r.Context())},
		Providers:  []models.ProviderStatus{},
	}
	if h.cfg.Sessions != nil {
		status.LiveSessions = h.cfg.Sessions.Len()
	}

	if h.cfg.Registry != nil {
		for _, p := range h.cfg.Registry.GetAllHealth() {
			ps := models.ProviderStatus{Provider: p.Name, Status: models.HealthStatusOK}
			switch {
			case p.IsUnhealthy():
				ps.Status = models.HealthStatusFail
			case p.IsDegraded():
				ps.Status = models.HealthStatusDegraded
			}
			if p.LastSuccessAt != nil {
				ts := models.Timestamp(*p.LastSuccessAt)
				ps.LastSuccessAt = &ts
			}
			if p.LastFailureAt != nil {
				ts := models.Timestamp(*p.LastFailureAt)
				ps.LastFailureAt = &ts
			}
			if p.LastError != "" {
				msg := p.LastError
				ps.Message = &msg
			}
			status.Providers = append(status.Providers, ps)
		}
	}

	// Providers degrade the service; a dead database fails it.
	for _, s := range status.Subsystems {
		if s.Status == models.HealthStatusFail {
			status.Status = models.HealthStatusFail
		}
	}
	if status.Status == models.HealthStatusOK {
		for _, p := range status.Providers {
			if p.Status != models.HealthStatusOK {
				status.Status = models.HealthStatusDegraded
			}
		}
	}
	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) databaseStatus(ctx context.Context) models.SubsystemStatus {
	s := models.SubsystemStatus{Name: "database", Status: models.HealthStatusOK}
	if h.cfg.Database == nil {
		detail := "in-memory store"
		s.Detail = &detail
		return s
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.cfg.Database.Ping(ctx); err != nil {
		detail := err.Error()
		s.Status = models.HealthStatusFail
		s.Detail = &detail
	}
	return s
}
