package status

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/imapnotify/internal/bridge"
	"github.com/nugget/imapnotify/internal/config"
)

func TestNewReport_JSON(t *testing.T) {
	id := uuid.MustParse("01890a5d-ac96-774b-bcce-b302099a8057")
	started := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	sum := bridge.Summary{
		RunID:    id,
		Started:  started,
		Finished: started.Add(2 * time.Second),
		Unseen:   3,
		Notified: 1,
		Skipped:  1,
		Reverted: 1,
	}

	data, err := json.Marshal(NewReport(sum, nil))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	want := map[string]any{
		"run_id":   id.String(),
		"started":  "2024-03-01T08:00:00Z",
		"finished": "2024-03-01T08:00:02Z",
		"unseen":   float64(3),
		"notified": float64(1),
		"skipped":  float64(1),
		"reverted": float64(1),
		"failed":   float64(0),
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
	if _, ok := got["version"]; !ok {
		t.Error("version missing from report")
	}
	if _, ok := got["error"]; ok {
		t.Error("error should be omitted for a clean run")
	}
}

func TestNewReport_Error(t *testing.T) {
	r := NewReport(bridge.Summary{}, errors.New("search unseen: NO"))
	if r.Error != "search unseen: NO" {
		t.Errorf("Error = %q", r.Error)
	}
}

func TestClientConfig(t *testing.T) {
	tests := []struct {
		name    string
		broker  string
		wantTLS bool
		wantErr bool
	}{
		{name: "plain", broker: "mqtt://broker.local:1883"},
		{name: "mqtts", broker: "mqtts://broker.local:8883", wantTLS: true},
		{name: "ssl", broker: "ssl://broker.local:8883", wantTLS: true},
		{name: "no host", broker: "broker.local", wantErr: true},
		{name: "bad url", broker: "mqtt://[::1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(config.MQTTConfig{Broker: tt.broker, Username: "u", Password: "p"}, "imapnotify-test", nil)
			cfg, err := p.clientConfig()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("clientConfig() error: %v", err)
			}
			if (cfg.TlsCfg != nil) != tt.wantTLS {
				t.Errorf("TlsCfg set = %v, want %v", cfg.TlsCfg != nil, tt.wantTLS)
			}
			if cfg.ClientConfig.ClientID != "imapnotify-test" {
				t.Errorf("ClientID = %q", cfg.ClientConfig.ClientID)
			}
			if cfg.ConnectUsername != "u" || string(cfg.ConnectPassword) != "p" {
				t.Errorf("credentials = %q/%q", cfg.ConnectUsername, cfg.ConnectPassword)
			}
			if len(cfg.ServerUrls) != 1 || cfg.ServerUrls[0].String() != tt.broker {
				t.Errorf("ServerUrls = %v", cfg.ServerUrls)
			}
		})
	}
}

func TestPublish_InvalidBroker(t *testing.T) {
	p := New(config.MQTTConfig{Broker: "not a url", Topic: "t"}, "id", nil)
	if err := p.Publish(context.Background(), Report{}); err == nil {
		t.Fatal("Publish with invalid broker should fail")
	}
}
