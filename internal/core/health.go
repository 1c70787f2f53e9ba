package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// healthTimeout bounds the whole /health run.
const healthTimeout = 2 * time.Second

// Probe checks one dependency: the sensor store, the loaded classifier or
// the history database.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// NewProbe returns a Probe named name that runs check.
func NewProbe(name string, check func(ctx context.Context) error) Probe {
	return Probe{Name: name, Check: check}
}

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthReport struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth handles GET /health. Checks run in registration order under
// one shared deadline; any failure, panic or overrun answers 503.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	report := healthReport{Status: "healthy"}
	if len(s.HealthProbes) > 0 {
		report.Components = make(map[string]componentStatus, len(s.HealthProbes))
	}
	for _, p := range s.HealthProbes {
		c := componentStatus{Status: "healthy"}
		if err := runCheck(ctx, p); err != nil {
			c = componentStatus{Status: "unhealthy", Message: err.Error()}
			report.Status = "unhealthy"
		}
		report.Components[p.Name] = c
	}

	status := http.StatusOK
	if report.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	JSON(w, r, status, report)
}

func runCheck(ctx context.Context, p Probe) (err error) {
	defer func() {
		if rvr := recover(); rvr != nil {
			err = fmt.Errorf("health check panicked: %v", rvr)
		}
	}()
	if ctx.Err() != nil {
		return errors.New("health check timed out")
	}
	return p.Check(ctx)
}
