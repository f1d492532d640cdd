package carestack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/novadent/pms-adapter/internal/pms"
	"github.com/novadent/pms-adapter/internal/pms/tokens"
	"github.com/novadent/pms-adapter/pkg/logging"
)

const (
	defaultTimeout  = 20 * time.Second
	defaultPageSize = 100

	// tokenPath issues OAuth2 client-credentials tokens.
	tokenPath = "/oauth/token"
)

// Client is a thin REST client for the CareStack API. It owns token
// lifecycle (via tokens.Manager) and status-code translation into the
// canonical error taxonomy; resilience (breaker, limiter, retry) lives a
// layer up in the adapter's pipeline.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     *tokens.Manager
	logger     *logging.Logger
}

// NewClient creates a CareStack REST client.
func NewClient(baseURL string, creds pms.Credentials, logger *logging.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("carestack: base URL is required")
	}
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, fmt.Errorf("carestack: client credentials are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
	c.tokens = tokens.NewManager("carestack", c.authenticate(creds), logger)
	return c, nil
}

// authenticate builds the client-credentials round trip the token manager
// coalesces.
func (c *Client) authenticate(creds pms.Credentials) tokens.AuthenticateFunc {
	return func(ctx context.Context) (tokens.Token, error) {
		form := url.Values{}
		form.Set("grant_type", "client_credentials")
		form.Set("client_id", creds.ClientID)
		form.Set("client_secret", creds.ClientSecret)

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+tokenPath, strings.NewReader(form.Encode()))
		if err != nil {
			return tokens.Token{}, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return tokens.Token{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return tokens.Token{}, fmt.Errorf("token endpoint status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		var tok tokenResponse
		if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
			return tokens.Token{}, fmt.Errorf("decode token response: %w", err)
		}
		if tok.AccessToken == "" {
			return tokens.Token{}, fmt.Errorf("token endpoint returned empty accessToken")
		}
		return tokens.Token{
			Value:  tok.AccessToken,
			Expiry: time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second),
		}, nil
	}
}

// replayConflict signals a 409 whose body named the appointment an earlier
// attempt with the same Idempotency-Key already created.
type replayConflict struct {
	appointmentID string
}

func (e *replayConflict) Error() string {
	return fmt.Sprintf("booking already exists as %s", e.appointmentID)
}

// do performs one authenticated request. On a 401 it invalidates the cached
// token and retries exactly once with a fresh one; a second 401 becomes an
// AuthenticationError. All other non-2xx statuses are translated into the
// canonical taxonomy.
func (c *Client) do(ctx context.Context, endpoint, method, path string, query url.Values, headers map[string]string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("carestack: encode %s body: %w", endpoint, err)
		}
	}

	retried := false
	for {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return err
		}

		u := c.baseURL + path
		if len(query) > 0 {
			u += "?" + query.Encode()
		}
		var rd io.Reader
		if payload != nil {
			rd = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, rd)
		if err != nil {
			return fmt.Errorf("carestack: build %s request: %w", endpoint, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &pms.UpstreamError{Vendor: "carestack", Endpoint: endpoint, Cause: err}
		}

		if resp.StatusCode == http.StatusUnauthorized && !retried {
			resp.Body.Close()
			c.tokens.Invalidate(token)
			retried = true
			continue
		}

		err = c.decode(endpoint, resp, out)
		resp.Body.Close()
		return err
	}
}

func (c *Client) decode(endpoint string, resp *http.Response, out any) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &pms.UpstreamError{Vendor: "carestack", Endpoint: endpoint, Status: resp.StatusCode, Cause: fmt.Errorf("decode response: %w", err)}
		}
		return nil

	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return &pms.AuthenticationError{Vendor: "carestack", Cause: fmt.Errorf("%s returned status %d", endpoint, resp.StatusCode)}

	case resp.StatusCode == http.StatusNotFound:
		return &pms.NotFoundError{Entity: endpoint, ID: ""}

	case resp.StatusCode == http.StatusConflict:
		var conflict bookingConflict
		if err := json.NewDecoder(resp.Body).Decode(&conflict); err == nil && conflict.AppointmentID != "" {
			return &replayConflict{appointmentID: conflict.AppointmentID}
		}
		return &pms.ValidationError{Reason: "conflicting booking request"}

	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusUnprocessableEntity:
		var ae apiError
		if err := json.NewDecoder(resp.Body).Decode(&ae); err == nil && ae.Message != "" {
			return &pms.ValidationError{Field: ae.Field, Reason: ae.Message}
		}
		return &pms.ValidationError{Reason: fmt.Sprintf("%s rejected request with status %d", endpoint, resp.StatusCode)}

	case resp.StatusCode == http.StatusTooManyRequests:
		return &pms.RateLimitError{Vendor: "carestack", RetryAfter: retryAfter(resp)}

	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &pms.UpstreamError{
			Vendor:   "carestack",
			Endpoint: endpoint,
			Status:   resp.StatusCode,
			Cause:    fmt.Errorf("%s", strings.TrimSpace(string(body))),
		}
	}
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Second
}

// SearchPatients pages through POST /patients/search until the last page.
func (c *Client) SearchPatients(ctx context.Context, query pms.PatientSearchQuery) ([]csPatient, error) {
	var all []csPatient
	for page := 1; ; page++ {
		req := patientSearchRequest{
			Phone:     query.Phone,
			Email:     query.Email,
			FirstName: query.FirstName,
			LastName:  query.LastName,
			Page:      page,
			PageSize:  defaultPageSize,
		}
		var out patientPage
		if err := c.do(ctx, "patients.search", http.MethodPost, "/patients/search", nil, nil, req, &out); err != nil {
			return nil, err
		}
		all = append(all, out.Items...)
		if len(out.Items) < defaultPageSize || len(all) >= out.TotalCount {
			return all, nil
		}
	}
}

func (c *Client) GetPatient(ctx context.Context, patientID string) (csPatient, error) {
	var out csPatient
	err := c.do(ctx, "patients.get", http.MethodGet, "/patients/"+url.PathEscape(patientID), nil, nil, nil, &out)
	return out, err
}

func (c *Client) CreatePatient(ctx context.Context, req createPatientRequest) (csPatient, error) {
	var out csPatient
	err := c.do(ctx, "patients.create", http.MethodPost, "/patients", nil, nil, req, &out)
	return out, err
}

func (c *Client) UpdatePatient(ctx context.Context, patientID string, req updatePatientRequest) (csPatient, error) {
	var out csPatient
	err := c.do(ctx, "patients.update", http.MethodPatch, "/patients/"+url.PathEscape(patientID), nil, nil, req, &out)
	return out, err
}

// ListSlots pages GET /appointments/slots for one provider and window.
func (c *Client) ListSlots(ctx context.Context, providerID string, from, to time.Time) ([]csSlot, error) {
	var all []csSlot
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("providerId", providerID)
		q.Set("from", from.Format(time.RFC3339))
		q.Set("to", to.Format(time.RFC3339))
		q.Set("page", strconv.Itoa(page))
		q.Set("pageSize", strconv.Itoa(defaultPageSize))
		var out slotPage
		if err := c.do(ctx, "slots.list", http.MethodGet, "/appointments/slots", q, nil, nil, &out); err != nil {
			return nil, err
		}
		all = append(all, out.Items...)
		if len(out.Items) < defaultPageSize || len(all) >= out.TotalCount {
			return all, nil
		}
	}
}

// CreateAppointment books via POST /appointments with an Idempotency-Key
// header. A 409 replay resolves by fetching the appointment the key already
// created, so retrying a timed-out booking is safe.
func (c *Client) CreateAppointment(ctx context.Context, req createAppointmentRequest, idempotencyKey string) (csAppointment, error) {
	headers := map[string]string{"Idempotency-Key": idempotencyKey}
	var out csAppointment
	err := c.do(ctx, "appointments.create", http.MethodPost, "/appointments", nil, headers, req, &out)
	return out, err
}

func (c *Client) GetAppointment(ctx context.Context, appointmentID string) (csAppointment, error) {
	var out csAppointment
	err := c.do(ctx, "appointments.get", http.MethodGet, "/appointments/"+url.PathEscape(appointmentID), nil, nil, nil, &out)
	return out, err
}

func (c *Client) CancelAppointment(ctx context.Context, appointmentID string) error {
	return c.do(ctx, "appointments.cancel", http.MethodDelete, "/appointments/"+url.PathEscape(appointmentID), nil, nil, nil, nil)
}

func (c *Client) ListProviders(ctx context.Context) ([]csProvider, error) {
	var all []csProvider
	for page := 1; ; page++ {
		var out providerPage
		if err := c.do(ctx, "providers.list", http.MethodGet, "/providers", pageQuery(page), nil, nil, &out); err != nil {
			return nil, err
		}
		all = append(all, out.Items...)
		if len(out.Items) < defaultPageSize || len(all) >= out.TotalCount {
			return all, nil
		}
	}
}

func (c *Client) ListLocations(ctx context.Context) ([]csLocation, error) {
	var all []csLocation
	for page := 1; ; page++ {
		var out locationPage
		if err := c.do(ctx, "locations.list", http.MethodGet, "/locations", pageQuery(page), nil, nil, &out); err != nil {
			return nil, err
		}
		all = append(all, out.Items...)
		if len(out.Items) < defaultPageSize || len(all) >= out.TotalCount {
			return all, nil
		}
	}
}

func (c *Client) ListOperatories(ctx context.Context) ([]csOperatory, error) {
	var all []csOperatory
	for page := 1; ; page++ {
		var out operatoryPage
		if err := c.do(ctx, "operatories.list", http.MethodGet, "/operatories", pageQuery(page), nil, nil, &out); err != nil {
			return nil, err
		}
		all = append(all, out.Items...)
		if len(out.Items) < defaultPageSize || len(all) >= out.TotalCount {
			return all, nil
		}
	}
}

func pageQuery(page int) url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(defaultPageSize))
	return q
}
