// Package wearable exposes a wearable vendor's cloud API as a capability
// provider. The vendor reports durations in milliseconds; conversion to
// the canonical schema happens in the normalizer, not here.
package wearable

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/stride-health/stride/pkg/capability"
	"github.com/stride-health/stride/pkg/model"
)

const defaultSyncDays = 7

// Ingestor accepts a raw batch pulled from the vendor and runs it through
// the ingestion pipeline. Defined here so the provider does not depend on
// the usecase package.
type Ingestor interface {
	IngestBatch(ctx context.Context, source model.Source, user model.UserID, raw []map[string]any) (accepted int, err error)
}

type Provider struct {
	baseURL  string
	apiToken string
	client   *http.Client
	ingestor Ingestor
}

type Option func(*Provider)

// WithHTTPClient overrides the HTTP client, used by tests
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.client = client
	}
}

// New creates the wearable provider against the vendor API
func New(baseURL, apiToken string, ingestor Ingestor, opts ...Option) *Provider {
	p := &Provider{
		baseURL:  baseURL,
		apiToken: apiToken,
		client:   &http.Client{Timeout: 15 * time.Second},
		ingestor: ingestor,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string {
	return "wearable"
}

func (p *Provider) Capabilities() []capability.Definition {
	return []capability.Definition{
		{
			Name:        "sync_activities",
			Description: "Pull the user's recent activities from the wearable vendor and ingest them into the reconciled store.",
			SideEffect:  true,
			Parameters: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"days": {
						Type:        "integer",
						Description: "How many days back to sync (default 7)",
					},
				},
			},
		},
		{
			Name:        "battery_status",
			Description: "Report the battery level of the user's wearable device.",
		},
	}
}

func (p *Provider) Invoke(ctx context.Context, name string, args map[string]any) (*capability.Result, error) {
	user, err := capability.UserFrom(ctx)
	if err != nil {
		return nil, err
	}

	switch name {
	case "sync_activities":
		return p.syncActivities(ctx, user, args)
	case "battery_status":
		return p.batteryStatus(ctx, user)
	default:
		return nil, goerr.New("unknown capability", goerr.V("capability", name))
	}
}

func (p *Provider) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/ping", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (p *Provider) syncActivities(ctx context.Context, user model.UserID, args map[string]any) (*capability.Result, error) {
	days := defaultSyncDays
	if v, ok := args["days"].(float64); ok && v > 0 {
		days = int(v)
	}

	raw, err := p.fetchActivities(ctx, user, days)
	if err != nil {
		return nil, err
	}

	accepted, err := p.ingestor.IngestBatch(ctx, model.SourceWearable, user, raw)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to ingest synced activities", goerr.V("user", user))
	}

	return capability.Succeed(map[string]any{
		"fetched":  len(raw),
		"accepted": accepted,
	}), nil
}

func (p *Provider) fetchActivities(ctx context.Context, user model.UserID, days int) ([]map[string]any, error) {
	endpoint := fmt.Sprintf("%s/v1/users/%s/activities?days=%d",
		p.baseURL, url.PathEscape(string(user)), days)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build vendor request")
	}
	req.Header.Set("Authorization", "Bearer "+p.apiToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "vendor API unreachable", goerr.V("endpoint", endpoint))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, goerr.New("vendor API returned error",
			goerr.V("status", resp.StatusCode), goerr.V("body", string(body)))
	}

	var payload struct {
		Activities []map[string]any `json:"activities"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, goerr.Wrap(err, "failed to decode vendor response")
	}
	return payload.Activities, nil
}

func (p *Provider) batteryStatus(ctx context.Context, user model.UserID) (*capability.Result, error) {
	endpoint := fmt.Sprintf("%s/v1/users/%s/device", p.baseURL, url.PathEscape(string(user)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build vendor request")
	}
	req.Header.Set("Authorization", "Bearer "+p.apiToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "vendor API unreachable", goerr.V("endpoint", endpoint))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, goerr.New("vendor API returned error", goerr.V("status", resp.StatusCode))
	}

	var payload struct {
		BatteryPercent int  `json:"battery_percent"`
		Charging       bool `json:"charging"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, goerr.Wrap(err, "failed to decode vendor response")
	}

	return capability.Succeed(map[string]any{
		"battery_percent": payload.BatteryPercent,
		"charging":        payload.Charging,
	}), nil
}
