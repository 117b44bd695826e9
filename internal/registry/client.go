// Package registry talks to the remote patient registry's resource API:
// full patient fetches by UUID and attribute searches used by the heuristic
// matcher.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"carelink/internal/domain"
)

const (
	patientResource = "/ws/rest/v1/patient"
	fullRepr        = "full"
)

// Client is a blocking HTTP client for one registry endpoint. The timeout is
// externally configurable; retries are bounded and only applied by the
// transport layer, never across cycles.
type Client struct {
	http *resty.Client
	log  *zap.Logger
}

// New builds a client for the endpoint's registry. Every call carries the
// endpoint's basic-auth credentials.
func New(ep domain.Endpoint, timeout time.Duration, log *zap.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(ep.BaseURL).
		SetTimeout(timeout).
		SetBasicAuth(ep.Username, ep.Password).
		SetHeader("Accept", "application/json")

	return &Client{http: httpClient, log: log}
}

// GetPatient fetches the full patient record for a canonical UUID.
func (c *Client) GetPatient(ctx context.Context, patientUUID string) (domain.Patient, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("v", fullRepr).
		Get(patientResource + "/" + patientUUID)
	if err != nil {
		return domain.Patient{}, fmt.Errorf("get patient %s: %w", patientUUID, err)
	}
	if resp.IsError() {
		return domain.Patient{}, fmt.Errorf("get patient %s: registry returned %s", patientUUID, resp.Status())
	}
	patient, err := decodePatient(resp.Body())
	if err != nil {
		return domain.Patient{}, fmt.Errorf("get patient %s: %w", patientUUID, err)
	}
	return patient, nil
}

// SearchPatients queries the registry by an identifier or attribute value
// and returns the candidate records.
func (c *Client) SearchPatients(ctx context.Context, query string) ([]domain.Patient, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"q": query, "v": fullRepr}).
		Get(patientResource)
	if err != nil {
		return nil, fmt.Errorf("search patients %q: %w", query, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("search patients %q: registry returned %s", query, resp.Status())
	}

	var envelope struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return nil, fmt.Errorf("search patients %q: decode results: %w", query, err)
	}

	patients := make([]domain.Patient, 0, len(envelope.Results))
	for _, raw := range envelope.Results {
		patient, err := decodePatient(raw)
		if err != nil {
			c.log.Warn("skipping undecodable search result",
				zap.String("query", query),
				zap.Error(err),
			)
			continue
		}
		patients = append(patients, patient)
	}
	c.log.Debug("patient search",
		zap.String("query", query),
		zap.Int("results", len(patients)),
	)
	return patients, nil
}

// decodePatient keeps the raw document for path evaluation and lifts out the
// two fields the engine itself needs.
func decodePatient(doc []byte) (domain.Patient, error) {
	uuid := gjson.GetBytes(doc, "uuid").String()
	if uuid == "" {
		return domain.Patient{}, fmt.Errorf("patient document has no uuid")
	}
	return domain.Patient{
		UUID:    uuid,
		Display: gjson.GetBytes(doc, "person.display").String(),
		Doc:     doc,
	}, nil
}
