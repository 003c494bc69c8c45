// Package lifecycleclient is a thin HTTP client for the lifecycle service's
// /nexus/v1 API.
package lifecycleclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/nexuscrm/nexus/pkg/domain"
)

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Bearer     string
}

func New(baseURL, bearer string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{},
		Bearer:     bearer,
	}
}

// APIError is a non-2xx response in the service's error envelope. For rejected
// transitions Details holds the full transition result.
type APIError struct {
	Status    int
	RequestID string
	Code      string
	Message   string
	Details   json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("http %d %s: %s", e.Status, e.Code, e.Message)
}

type Preview struct {
	CanTransition bool                       `json:"can_transition"`
	FromStage     domain.Stage               `json:"from_stage"`
	ToStage       domain.Stage               `json:"to_stage"`
	CurrentStage  domain.Stage               `json:"current_stage"`
	Errors        []string                   `json:"errors"`
	Warnings      []domain.TransitionWarning `json:"warnings"`
}

type TransitionRequest struct {
	UserFeedback         string                     `json:"user_feedback,omitempty"`
	AcknowledgedWarnings []domain.TransitionWarning `json:"acknowledged_warnings,omitempty"`
	IdempotencyKey       string                     `json:"-"`
}

type TransitionResult struct {
	Success                             bool                       `json:"success"`
	TransitionID                        string                     `json:"transition_id"`
	FromStage                           domain.Stage               `json:"from_stage"`
	ToStage                             domain.Stage               `json:"to_stage"`
	Errors                              []string                   `json:"errors"`
	Warnings                            []domain.TransitionWarning `json:"warnings"`
	UnacknowledgedWarnings              []domain.TransitionWarning `json:"unacknowledged_warnings"`
	RejectionCode                       domain.RejectionCode       `json:"rejection_code,omitempty"`
	RejectionReason                     string                     `json:"rejection_reason,omitempty"`
	PspImplementationsCreated           int                        `json:"psp_implementations_created"`
	PaymentMethodImplementationsCreated int                        `json:"payment_method_implementations_created"`
}

func stagePath(to domain.Stage) (string, error) {
	switch to {
	case domain.StageImplementing:
		return "implementing", nil
	case domain.StageLive:
		return "live", nil
	}
	return "", fmt.Errorf("no transition into %q", to)
}

func (c *Client) PreviewTransition(ctx context.Context, merchantID string, to domain.Stage) (*Preview, error) {
	p, err := stagePath(to)
	if err != nil {
		return nil, err
	}
	var out struct {
		Preview Preview `json:"preview"`
	}
	if err := c.do(ctx, http.MethodPost, c.merchantURL(merchantID, "transitions", p+":preview"), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out.Preview, nil
}

// Transition executes a stage change. A committed rejection is returned as both a
// result with Success=false and an *APIError.
func (c *Client) Transition(ctx context.Context, merchantID string, to domain.Stage, in TransitionRequest) (*TransitionResult, error) {
	p, err := stagePath(to)
	if err != nil {
		return nil, err
	}
	headers := map[string]string{}
	if in.IdempotencyKey != "" {
		headers["Idempotency-Key"] = in.IdempotencyKey
	}
	var out struct {
		Result TransitionResult `json:"result"`
	}
	err = c.do(ctx, http.MethodPost, c.merchantURL(merchantID, "transitions", p), headers, in, &out)
	if err != nil {
		if apiErr, ok := err.(*APIError); ok && len(apiErr.Details) > 0 {
			var rejected TransitionResult
			if json.Unmarshal(apiErr.Details, &rejected) == nil && rejected.RejectionCode != "" {
				return &rejected, err
			}
		}
		return nil, err
	}
	return &out.Result, nil
}

func (c *Client) Transitions(ctx context.Context, merchantID string) ([]domain.StageTransition, error) {
	var out struct {
		Transitions []domain.StageTransition `json:"transitions"`
	}
	if err := c.do(ctx, http.MethodGet, c.merchantURL(merchantID, "transitions"), nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Transitions, nil
}

func (c *Client) merchantURL(merchantID string, parts ...string) string {
	u := c.BaseURL + "/nexus/v1/merchants/" + url.PathEscape(merchantID)
	for _, p := range parts {
		u += "/" + p
	}
	return u
}

func (c *Client) do(ctx context.Context, method, u string, headers map[string]string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.Bearer)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var env struct {
			RequestID string `json:"request_id"`
			Error     struct {
				Code    string          `json:"code"`
				Message string          `json:"message"`
				Details json.RawMessage `json:"details"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&env)
		return &APIError{
			Status:    resp.StatusCode,
			RequestID: env.RequestID,
			Code:      env.Error.Code,
			Message:   env.Error.Message,
			Details:   env.Error.Details,
		}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
