package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridianhealth/claims-cli/internal/config"
	"github.com/meridianhealth/claims-cli/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRejectionRate   AlertType = "claim_rejection_rate"
	AlertMatcherAnomaly  AlertType = "matcher_anomaly"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached. A circuit
// breaker guards the webhook so a dead endpoint is not re-tried on every
// check interval.
type Alerter struct {
	cfg     config.MonitoringConfig
	client  *http.Client
	breaker *resilience.CircuitBreaker
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	breakerCfg := resilience.FromCircuitConfig(cfg.WebhookFailureThreshold, cfg.WebhookResetTimeoutSecs)
	breakerCfg.ShouldTrip = func(error) bool { return true }
	breakerCfg.OnStateChange = func(from, to resilience.CircuitState) {
		zap.L().Warn("monitoring: webhook circuit changed",
			zap.String("from", from.String()), zap.String("to", to.String()))
	}
	return &Alerter{
		cfg:     cfg,
		client:  &http.Client{Timeout: 10 * time.Second},
		breaker: resilience.NewCircuitBreaker(breakerCfg),
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot, lastAnomalies int) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	finished := snap.ClaimsProcessed + snap.ClaimsRejected
	rate := snap.RejectionRate()
	if finished >= 5 && rate > a.cfg.RejectionRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRejectionRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Claim rejection rate %.1f%% exceeds threshold %.1f%% (%d rejected / %d finished)",
				rate*100, a.cfg.RejectionRateThreshold*100,
				snap.ClaimsRejected, finished,
			),
			Details: map[string]any{
				"rejection_rate":     rate,
				"threshold":          a.cfg.RejectionRateThreshold,
				"rejections_by_code": snap.RejectionsByCode,
			},
			Timestamp: now,
		})
	}

	// Products matched without a valid policy stay out of the rule-error
	// channel; the alert is the only place they surface.
	if snap.MatcherAnomalies > lastAnomalies {
		alerts = append(alerts, Alert{
			Type:     AlertMatcherAnomaly,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d claim line(s) matched a product with no currently valid policy",
				snap.MatcherAnomalies-lastAnomalies,
			),
			Details: map[string]any{
				"total_anomalies": snap.MatcherAnomalies,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		err := a.breaker.Execute(ctx, func(ctx context.Context) error {
			return a.sendWebhook(ctx, alert)
		})
		if err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		err := eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}
	return nil
}
