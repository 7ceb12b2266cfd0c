// Package status publishes the outcome of each notification pass to an
// MQTT broker as a retained JSON message, so dashboards and alerting
// can see when the bridge last ran and what it did.
package status

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nugget/imapnotify/internal/bridge"
	"github.com/nugget/imapnotify/internal/buildinfo"
	"github.com/nugget/imapnotify/internal/config"
)

// connectTimeout bounds how long a publish waits for the broker.
const connectTimeout = 10 * time.Second

// Report is the retained payload.
type Report struct {
	bridge.Summary
	Version string `json:"version"`
	Error   string `json:"error,omitempty"`
}

// NewReport builds the payload for a pass. runErr is the error the
// pass ended with, if any.
func NewReport(sum bridge.Summary, runErr error) Report {
	r := Report{
		Summary: sum,
		Version: buildinfo.Version,
	}
	if runErr != nil {
		r.Error = runErr.Error()
	}
	return r
}

// Publisher sends run reports to the configured topic.
type Publisher struct {
	cfg      config.MQTTConfig
	clientID string
	logger   *slog.Logger
}

// New creates a Publisher. Nothing connects until Publish is called.
func New(cfg config.MQTTConfig, clientID string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		cfg:      cfg,
		clientID: clientID,
		logger:   logger,
	}
}

// Publish connects, sends the report with QoS 1 and the retain flag,
// and disconnects.
func (p *Publisher) Publish(ctx context.Context, report Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	pahoCfg, err := p.clientConfig()
	if err != nil {
		return err
	}

	connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	cm, err := autopaho.NewConnection(connCtx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	defer func() {
		dctx, dcancel := context.WithTimeout(context.Background(), connectTimeout)
		defer dcancel()
		if err := cm.Disconnect(dctx); err != nil {
			p.logger.Debug("mqtt disconnect failed", "error", err)
		}
	}()

	if err := cm.AwaitConnection(connCtx); err != nil {
		return fmt.Errorf("mqtt connect to %s: %w", p.cfg.Broker, err)
	}

	if _, err := cm.Publish(connCtx, &paho.Publish{
		Topic:   p.cfg.Topic,
		Payload: payload,
		QoS:     1,
		Retain:  true,
	}); err != nil {
		return fmt.Errorf("mqtt publish to %s: %w", p.cfg.Topic, err)
	}

	p.logger.Debug("run report published", "topic", p.cfg.Topic, "run_id", report.RunID)
	return nil
}

func (p *Publisher) clientConfig() (autopaho.ClientConfig, error) {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return autopaho.ClientConfig{}, fmt.Errorf("parse mqtt broker URL: %w", err)
	}
	if brokerURL.Host == "" {
		return autopaho.ClientConfig{}, fmt.Errorf("mqtt broker URL %q has no host", p.cfg.Broker)
	}

	cfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		OnConnectionUp: func(_ *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Debug("mqtt connected to broker", "broker", p.cfg.Broker)
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: p.clientID,
		},
	}

	// Enable TLS for mqtts:// or ssl:// schemes.
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		cfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	return cfg, nil
}
