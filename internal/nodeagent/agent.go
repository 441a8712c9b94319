// Package agent implements the node-side companion process that runs
// alongside a physical UAV's onboard computer: it registers the UAV with
// the control plane's fleet inventory, then periodically pushes telemetry
// (position, battery) and, on Stop, reports the UAV offline. It does not
// receive mission commands.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Config holds agent configuration.
type Config struct {
	ControlPlaneURL   string
	UAVID             string
	HeartbeatInterval time.Duration

	// PositionFunc and BatteryFunc are supplied by the onboard
	// integration layer (flight controller bridge); they are not part of
	// this package's concern. When nil, the position is reported as zero
	// and the battery as 100.
	PositionFunc func() (lat, lon, alt float64)
	BatteryFunc  func() float64
}

// Agent pushes UAV telemetry to the control plane on a fixed interval and
// reports terminal status changes immediately.
type Agent struct {
	config     *Config
	logger     *zap.Logger
	httpClient *http.Client
	stopChan   chan struct{}
}

// NewAgent creates a new node agent.
func NewAgent(config *Config, logger *zap.Logger) (*Agent, error) {
	if config.UAVID == "" {
		return nil, fmt.Errorf("agent: UAVID required")
	}
	return &Agent{
		config: config,
		logger: logger,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		stopChan: make(chan struct{}),
	}, nil
}

// Start registers the UAV with the control plane and begins the telemetry
// push loop.
func (a *Agent) Start(ctx context.Context) error {
	a.logger.Info("starting node agent", zap.String("uav_id", a.config.UAVID))

	if err := a.register(ctx); err != nil {
		return fmt.Errorf("failed to register: %w", err)
	}

	go a.telemetryLoop(ctx)

	return nil
}

// Stop deregisters the UAV from the control plane, marking it offline.
func (a *Agent) Stop(ctx context.Context) error {
	a.logger.Info("stopping node agent")
	close(a.stopChan)
	return a.deregister(ctx)
}

func (a *Agent) register(ctx context.Context) error {
	payload := map[string]interface{}{
		"uav_id": a.config.UAVID,
		"status": "ONLINE",
	}
	return a.post(ctx, fmt.Sprintf("%s/api/v1/uavs/%s/register", a.config.ControlPlaneURL, a.config.UAVID), payload)
}

func (a *Agent) deregister(ctx context.Context) error {
	payload := map[string]interface{}{"status": "OFFLINE"}
	return a.post(ctx, fmt.Sprintf("%s/api/v1/uavs/%s/status", a.config.ControlPlaneURL, a.config.UAVID), payload)
}

// telemetryLoop sends periodic telemetry to the control plane's ingest
// endpoint.
func (a *Agent) telemetryLoop(ctx context.Context) {
	ticker := time.NewTicker(a.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stopChan:
			return
		case <-ticker.C:
			if err := a.sendTelemetry(ctx); err != nil {
				a.logger.Error("telemetry push failed", zap.Error(err))
			}
		}
	}
}

func (a *Agent) sendTelemetry(ctx context.Context) error {
	var lat, lon, alt float64
	if a.config.PositionFunc != nil {
		lat, lon, alt = a.config.PositionFunc()
	}
	battery := 100.0
	if a.config.BatteryFunc != nil {
		battery = a.config.BatteryFunc()
	}

	payload := map[string]interface{}{
		"uav_id":    a.config.UAVID,
		"lat":       lat,
		"lon":       lon,
		"alt_m":     alt,
		"battery":   battery,
		"timestamp": time.Now().UTC().Unix(),
	}

	url := fmt.Sprintf("%s/api/v1/telemetry/%s", a.config.ControlPlaneURL, a.config.UAVID)
	if err := a.post(ctx, url, payload); err != nil {
		return err
	}
	a.logger.Debug("telemetry sent", zap.Float64("battery", battery))
	return nil
}

func (a *Agent) post(ctx context.Context, url string, payload map[string]interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("request to %s failed with status %d", url, resp.StatusCode)
	}
	return nil
}
