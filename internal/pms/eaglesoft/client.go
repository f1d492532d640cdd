package eaglesoft

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
	defaultTimeout = 20 * time.Second

	// sessionPath exchanges the API key for a session.
	sessionPath = "/sessions"

	headerSession  = "X-Session-ID"
	headerPractice = "X-Practice-Code"
)

// Client is a REST client for the Eaglesoft API. Eaglesoft uses short-lived
// sessions instead of OAuth: POST /sessions returns a SessionId that every
// subsequent call carries in X-Session-ID alongside X-Practice-Code. The
// session lifecycle reuses the same manager as token-based vendors.
type Client struct {
	baseURL      string
	practiceCode string
	httpClient   *http.Client
	sessions     *tokens.Manager
	logger       *logging.Logger
}

// NewClient creates an Eaglesoft REST client.
func NewClient(baseURL string, creds pms.Credentials, logger *logging.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("eaglesoft: base URL is required")
	}
	if creds.APIKey == "" || creds.PracticeCode == "" {
		return nil, fmt.Errorf("eaglesoft: API key and practice code are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		practiceCode: creds.PracticeCode,
		httpClient:   &http.Client{Timeout: defaultTimeout},
		logger:       logger,
	}
	c.sessions = tokens.NewManager("eaglesoft", c.openSession(creds.APIKey), logger)
	return c, nil
}

func (c *Client) openSession(apiKey string) tokens.AuthenticateFunc {
	return func(ctx context.Context) (tokens.Token, error) {
		body, err := json.Marshal(sessionRequest{APIKey: apiKey, PracticeCode: c.practiceCode})
		if err != nil {
			return tokens.Token{}, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+sessionPath, bytes.NewReader(body))
		if err != nil {
			return tokens.Token{}, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return tokens.Token{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return tokens.Token{}, fmt.Errorf("session endpoint status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		}
		var sess sessionResponse
		if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
			return tokens.Token{}, fmt.Errorf("decode session response: %w", err)
		}
		if sess.SessionID == "" {
			return tokens.Token{}, fmt.Errorf("session endpoint returned empty SessionId")
		}
		return tokens.Token{
			Value:  sess.SessionID,
			Expiry: time.Now().Add(time.Duration(sess.ExpiresInSeconds) * time.Second),
		}, nil
	}
}

type replayConflict struct {
	appointmentID string
}

func (e *replayConflict) Error() string {
	return fmt.Sprintf("booking already exists as %s", e.appointmentID)
}

// do performs one session-authenticated request, renewing the session and
// retrying once on a 401.
func (c *Client) do(ctx context.Context, endpoint, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("eaglesoft: encode %s body: %w", endpoint, err)
		}
	}

	retried := false
	for {
		session, err := c.sessions.Token(ctx)
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
			return fmt.Errorf("eaglesoft: build %s request: %w", endpoint, err)
		}
		req.Header.Set(headerSession, session)
		req.Header.Set(headerPractice, c.practiceCode)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &pms.UpstreamError{Vendor: "eaglesoft", Endpoint: endpoint, Cause: err}
		}

		if resp.StatusCode == http.StatusUnauthorized && !retried {
			resp.Body.Close()
			c.sessions.Invalidate(session)
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
			return &pms.UpstreamError{Vendor: "eaglesoft", Endpoint: endpoint, Status: resp.StatusCode, Cause: fmt.Errorf("decode response: %w", err)}
		}
		return nil

	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return &pms.AuthenticationError{Vendor: "eaglesoft", Cause: fmt.Errorf("%s returned status %d", endpoint, resp.StatusCode)}

	case resp.StatusCode == http.StatusNotFound:
		return &pms.NotFoundError{Entity: endpoint}

	case resp.StatusCode == http.StatusConflict:
		var conflict bookingConflict
		if err := json.NewDecoder(resp.Body).Decode(&conflict); err == nil && conflict.AppointmentID != "" {
			return &replayConflict{appointmentID: conflict.AppointmentID}
		}
		return &pms.ValidationError{Reason: "conflicting booking request"}

	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusUnprocessableEntity:
		var fault apiFault
		if err := json.NewDecoder(resp.Body).Decode(&fault); err == nil && fault.Message != "" {
			return &pms.ValidationError{Field: fault.Field, Reason: fault.Message}
		}
		return &pms.ValidationError{Reason: fmt.Sprintf("%s rejected request with status %d", endpoint, resp.StatusCode)}

	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := time.Second
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return &pms.RateLimitError{Vendor: "eaglesoft", RetryAfter: retryAfter}

	default:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &pms.UpstreamError{
			Vendor:   "eaglesoft",
			Endpoint: endpoint,
			Status:   resp.StatusCode,
			Cause:    fmt.Errorf("%s", strings.TrimSpace(string(raw))),
		}
	}
}

// SearchPatients follows NextPage continuation tokens until exhausted.
func (c *Client) SearchPatients(ctx context.Context, query pms.PatientSearchQuery) ([]esPatient, error) {
	var all []esPatient
	next := ""
	for {
		req := patientSearchRequest{
			Phone:     query.Phone,
			Email:     query.Email,
			FirstName: query.FirstName,
			LastName:  query.LastName,
			Page:      next,
		}
		var out patientPage
		if err := c.do(ctx, "patients.search", http.MethodPost, "/patients/search", nil, req, &out); err != nil {
			return nil, err
		}
		all = append(all, out.Patients...)
		if out.NextPage == "" {
			return all, nil
		}
		next = out.NextPage
	}
}

func (c *Client) GetPatient(ctx context.Context, patientID string) (esPatient, error) {
	var out esPatient
	err := c.do(ctx, "patients.get", http.MethodGet, "/patients/"+url.PathEscape(patientID), nil, nil, &out)
	return out, err
}

func (c *Client) CreatePatient(ctx context.Context, req createPatientRequest) (esPatient, error) {
	var out esPatient
	err := c.do(ctx, "patients.create", http.MethodPost, "/patients", nil, req, &out)
	return out, err
}

func (c *Client) UpdatePatient(ctx context.Context, patientID string, req updatePatientRequest) (esPatient, error) {
	var out esPatient
	err := c.do(ctx, "patients.update", http.MethodPut, "/patients/"+url.PathEscape(patientID), nil, req, &out)
	return out, err
}

func (c *Client) ListSlots(ctx context.Context, providerID string, from, to time.Time) ([]esSlot, error) {
	var all []esSlot
	next := ""
	for {
		q := url.Values{}
		q.Set("ProviderId", providerID)
		q.Set("From", from.Format(time.RFC3339))
		q.Set("To", to.Format(time.RFC3339))
		if next != "" {
			q.Set("Page", next)
		}
		var out slotPage
		if err := c.do(ctx, "slots.list", http.MethodGet, "/schedule/openings", q, nil, &out); err != nil {
			return nil, err
		}
		all = append(all, out.Slots...)
		if out.NextPage == "" {
			return all, nil
		}
		next = out.NextPage
	}
}

// CreateAppointment books with a RequestId idempotency field. A repeated
// RequestId either replays the original 2xx response or returns a 409 naming
// the existing appointment; both resolve to the same record.
func (c *Client) CreateAppointment(ctx context.Context, req createAppointmentRequest) (esAppointment, error) {
	var out esAppointment
	err := c.do(ctx, "appointments.create", http.MethodPost, "/appointments", nil, req, &out)
	return out, err
}

func (c *Client) GetAppointment(ctx context.Context, appointmentID string) (esAppointment, error) {
	var out esAppointment
	err := c.do(ctx, "appointments.get", http.MethodGet, "/appointments/"+url.PathEscape(appointmentID), nil, nil, &out)
	return out, err
}

func (c *Client) CancelAppointment(ctx context.Context, appointmentID string) error {
	return c.do(ctx, "appointments.cancel", http.MethodDelete, "/appointments/"+url.PathEscape(appointmentID), nil, nil, nil)
}

func (c *Client) ListProviders(ctx context.Context) ([]esProvider, error) {
	var all []esProvider
	next := ""
	for {
		var out providerPage
		if err := c.do(ctx, "providers.list", http.MethodGet, "/providers", pageQuery(next), nil, &out); err != nil {
			return nil, err
		}
		all = append(all, out.Providers...)
		if out.NextPage == "" {
			return all, nil
		}
		next = out.NextPage
	}
}

func (c *Client) ListLocations(ctx context.Context) ([]esLocation, error) {
	var all []esLocation
	next := ""
	for {
		var out locationPage
		if err := c.do(ctx, "locations.list", http.MethodGet, "/locations", pageQuery(next), nil, &out); err != nil {
			return nil, err
		}
		all = append(all, out.Locations...)
		if out.NextPage == "" {
			return all, nil
		}
		next = out.NextPage
	}
}

func (c *Client) ListOperatories(ctx context.Context) ([]esOperatory, error) {
	var all []esOperatory
	next := ""
	for {
		var out operatoryPage
		if err := c.do(ctx, "operatories.list", http.MethodGet, "/operatories", pageQuery(next), nil, &out); err != nil {
			return nil, err
		}
		all = append(all, out.Operatories...)
		if out.NextPage == "" {
			return all, nil
		}
		next = out.NextPage
	}
}

func pageQuery(next string) url.Values {
	if next == "" {
		return nil
	}
	q := url.Values{}
	q.Set("Page", next)
	return q
}
