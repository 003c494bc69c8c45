package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuscrm/nexus/pkg/authn"
	"github.com/nexuscrm/nexus/pkg/domain"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/store"
)

type harness struct {
	srv   *httptest.Server
	mem   *store.Memory
	token string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mem := store.NewMemory()
	require.NoError(t, mem.ImportCatalog(context.Background(), store.CatalogFile{
		Processors: []domain.PlatformProcessor{
			{ProcessorID: "stripe", Name: "Stripe", Status: domain.PlatformLive},
		},
		Features: []domain.CountryProcessorFeature{
			{ProcessorID: "stripe", Country: "US", SupportedMethods: []string{"card"}, Status: domain.PlatformLive},
		},
	}))
	token, hash, err := authn.NewToken()
	require.NoError(t, err)
	mem.AddCredential(domain.Actor{ID: "usr_ops", Type: domain.ActorUser}, hash, nil)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(New(mem, WithLogger(logger)).Routes())
	t.Cleanup(srv.Close)
	return &harness{srv: srv, mem: mem, token: token}
}

func (h *harness) do(t *testing.T, method, path, token string, body any, headers ...string) (*http.Response, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rdr)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func (h *harness) seedMerchant(t *testing.T) string {
	t.Helper()
	resp, body := h.do(t, "POST", "/nexus/v1/merchants", h.token, map[string]any{"name": "Acme Shop"})
	require.Equal(t, 201, resp.StatusCode)
	return body["merchant"].(map[string]any)["merchant_id"].(string)
}

func (h *harness) scopeMerchant(t *testing.T, merchantID string) {
	t.Helper()
	resp, _ := h.do(t, "PATCH", "/nexus/v1/merchants/"+merchantID+"/scope", h.token, map[string]any{
		"source_type": "call",
		"updates": []map[string]any{
			{"field": "psps", "value": []string{"stripe", "acme"}},
			{"field": "countries", "value": []string{"US"}},
			{"field": "payment_methods", "value": []string{"card"}},
		},
	})
	require.Equal(t, 201, resp.StatusCode)
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestHealthIsPublic(t *testing.T) {
	h := newHarness(t)
	resp, _ := h.do(t, "GET", "/health", "", nil)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestMissingTokenIsUnauthorized(t *testing.T) {
	h := newHarness(t)
	resp, body := h.do(t, "GET", "/nexus/v1/merchants/mrc_x/readiness/scope", "", nil)
	assert.Equal(t, 401, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	resp, _ = h.do(t, "GET", "/nexus/v1/merchants/mrc_x/readiness/scope", "nxs_unknown", nil)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestScopeIsEnforcedPerRoute(t *testing.T) {
	h := newHarness(t)
	merchantID := h.seedMerchant(t)

	readOnly, hash, err := authn.NewToken()
	require.NoError(t, err)
	h.mem.AddCredential(domain.Actor{ID: "usr_viewer", Type: domain.ActorUser}, hash, []string{authn.ScopeRead})

	resp, _ := h.do(t, "GET", "/nexus/v1/merchants/"+merchantID+"/readiness/scope", readOnly, nil)
	assert.Equal(t, 200, resp.StatusCode)

	resp, body := h.do(t, "POST", "/nexus/v1/merchants/"+merchantID+"/transitions/implementing", readOnly, nil)
	assert.Equal(t, 403, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", errorCode(body))
}

func TestScopeReadinessWithoutDocument(t *testing.T) {
	h := newHarness(t)
	merchantID := h.seedMerchant(t)

	resp, body := h.do(t, "GET", "/nexus/v1/merchants/"+merchantID+"/readiness/scope", h.token, nil)
	require.Equal(t, 200, resp.StatusCode)
	r := body["readiness"].(map[string]any)
	assert.EqualValues(t, 0, r["score"])
	assert.EqualValues(t, 9, r["missing_fields"])
	assert.Equal(t, false, r["critical_fields_ready"])
}

func TestUnknownMerchantIsNotFound(t *testing.T) {
	h := newHarness(t)
	for _, path := range []string{
		"/nexus/v1/merchants/mrc_missing",
		"/nexus/v1/merchants/mrc_missing/readiness/scope",
		"/nexus/v1/merchants/mrc_missing/readiness/implementation",
		"/nexus/v1/merchants/mrc_missing/transitions",
		"/nexus/v1/merchants/mrc_missing/audit",
	} {
		resp, body := h.do(t, "GET", path, h.token, nil)
		assert.Equal(t, 404, resp.StatusCode, path)
		assert.Equal(t, "NOT_FOUND", errorCode(body), path)
	}
	resp, _ := h.do(t, "POST", "/nexus/v1/merchants/mrc_missing/transitions/implementing:preview", h.token, nil)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestPreviewReportsMissingFields(t *testing.T) {
	h := newHarness(t)
	merchantID := h.seedMerchant(t)

	resp, body := h.do(t, "POST", "/nexus/v1/merchants/"+merchantID+"/transitions/implementing:preview", h.token, nil)
	require.Equal(t, 200, resp.StatusCode)
	p := body["preview"].(map[string]any)
	assert.Equal(t, false, p["can_transition"])
	assert.Contains(t, p["errors"], "Missing required field: PSPs")
}

func TestExecuteRejectsMissingFieldsWith422(t *testing.T) {
	h := newHarness(t)
	merchantID := h.seedMerchant(t)

	resp, body := h.do(t, "POST", "/nexus/v1/merchants/"+merchantID+"/transitions/implementing", h.token, nil)
	require.Equal(t, 422, resp.StatusCode)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	_, hist := h.do(t, "GET", "/nexus/v1/merchants/"+merchantID+"/transitions", h.token, nil)
	rows := hist["transitions"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, "REJECTED", rows[0].(map[string]any)["status"])
}

func TestSkippingAStageIsInvalidNotConflict(t *testing.T) {
	h := newHarness(t)
	merchantID := h.seedMerchant(t)
	h.scopeMerchant(t, merchantID)

	resp, body := h.do(t, "POST", "/nexus/v1/merchants/"+merchantID+"/transitions/live", h.token, nil)
	require.Equal(t, 422, resp.StatusCode)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
	details := body["error"].(map[string]any)["details"].(map[string]any)
	assert.Equal(t, "SCOPING", details["current_stage"])

	_, hist := h.do(t, "GET", "/nexus/v1/merchants/"+merchantID+"/transitions", h.token, nil)
	assert.Empty(t, hist["transitions"])
}

func TestFullLifecycle(t *testing.T) {
	h := newHarness(t)
	merchantID := h.seedMerchant(t)
	h.scopeMerchant(t, merchantID)
	base := "/nexus/v1/merchants/" + merchantID

	resp, body := h.do(t, "POST", base+"/transitions/implementing:preview", h.token, nil)
	require.Equal(t, 200, resp.StatusCode)
	p := body["preview"].(map[string]any)
	assert.Equal(t, true, p["can_transition"])
	require.Len(t, p["warnings"], 1)

	resp, body = h.do(t, "POST", base+"/transitions/implementing", h.token, map[string]any{"user_feedback": "go"})
	require.Equal(t, 409, resp.StatusCode)
	assert.Equal(t, "WARNINGS_NOT_ACKNOWLEDGED", errorCode(body))
	details := body["error"].(map[string]any)["details"].(map[string]any)
	require.Len(t, details["unacknowledged_warnings"], 1)

	resp, body = h.do(t, "POST", base+"/transitions/implementing", h.token, map[string]any{
		"user_feedback":         "go",
		"acknowledged_warnings": []map[string]any{{"type": "PSP_NOT_SUPPORTED", "processor_id": "ACME"}},
	})
	require.Equal(t, 200, resp.StatusCode, body)
	result := body["result"].(map[string]any)
	assert.Equal(t, true, result["success"])
	assert.EqualValues(t, 2, result["psp_implementations_created"])
	assert.EqualValues(t, 1, result["payment_method_implementations_created"])

	resp, body = h.do(t, "POST", base+"/transitions/live:preview", h.token, nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, false, body["preview"].(map[string]any)["can_transition"])

	resp, body = h.do(t, "PATCH", base+"/implementations/psps/acme", h.token, map[string]any{"status": "BLOCKED"})
	require.Equal(t, 400, resp.StatusCode)
	assert.Equal(t, "BAD_REQUEST", errorCode(body))

	for path, update := range map[string]map[string]any{
		"/implementations/psps/stripe":          {"status": "LIVE"},
		"/implementations/psps/acme":            {"status": "NOT_REQUIRED", "not_required_reason": "dropped from deal"},
		"/implementations/payment-methods/card": {"status": "LIVE"},
	} {
		resp, _ := h.do(t, "PATCH", base+path, h.token, update)
		require.Equal(t, 200, resp.StatusCode, path)
	}

	resp, body = h.do(t, "GET", base+"/readiness/implementation", h.token, nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.EqualValues(t, 100, body["readiness"].(map[string]any)["score"])

	resp, body = h.do(t, "POST", base+"/transitions/live", h.token, nil)
	require.Equal(t, 200, resp.StatusCode, body)

	resp, body = h.do(t, "GET", base, h.token, nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "LIVE", body["merchant"].(map[string]any)["lifecycle_stage"])

	resp, body = h.do(t, "PATCH", base+"/scope", h.token, map[string]any{
		"updates": []map[string]any{{"field": "countries", "mode": "merge", "value": []string{"BR"}}},
	})
	assert.Equal(t, 400, resp.StatusCode)

	_, audit := h.do(t, "GET", base+"/audit", h.token, nil)
	entries := audit["entries"].([]any)
	stageChanges := 0
	for _, e := range entries {
		if e.(map[string]any)["change_type"] == "STAGE_CHANGE" {
			stageChanges++
		}
	}
	assert.Equal(t, 2, stageChanges)
}

func TestIdempotentReplay(t *testing.T) {
	h := newHarness(t)
	merchantID := h.seedMerchant(t)
	h.scopeMerchant(t, merchantID)
	path := "/nexus/v1/merchants/" + merchantID + "/transitions/implementing"
	req := map[string]any{"acknowledged_warnings": []map[string]any{{"type": "PSP_NOT_SUPPORTED", "processor_id": "acme"}}}

	resp, first := h.do(t, "POST", path, h.token, req, "Idempotency-Key", "k-1")
	require.Equal(t, 200, resp.StatusCode)

	resp, second := h.do(t, "POST", path, h.token, req, "Idempotency-Key", "k-1")
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get("Idempotent-Replay"))
	assert.Equal(t,
		first["result"].(map[string]any)["transition_id"],
		second["result"].(map[string]any)["transition_id"])

	resp, body := h.do(t, "POST", path, h.token, map[string]any{"user_feedback": "different"}, "Idempotency-Key", "k-1")
	assert.Equal(t, 409, resp.StatusCode)
	assert.Equal(t, "IDEMPOTENCY_CONFLICT", errorCode(body))

	resp, body = h.do(t, "POST", path, h.token, req)
	assert.Equal(t, 409, resp.StatusCode)
	assert.Equal(t, "TRANSITION_CONFLICT", errorCode(body))
}

func TestSupportCheck(t *testing.T) {
	h := newHarness(t)
	resp, body := h.do(t, "POST", "/nexus/v1/platform/support-check", h.token, map[string]any{
		"psps":            []string{"stripe"},
		"payment_methods": []string{"card", "pix"},
	})
	require.Equal(t, 200, resp.StatusCode)
	s := body["support"].(map[string]any)
	assert.Equal(t, false, s["fully_supported"])
	assert.Equal(t, []any{"pix"}, s["unsupported_payment_methods"])
}

func TestUnknownFieldIsBadJSON(t *testing.T) {
	h := newHarness(t)
	resp, body := h.do(t, "POST", "/nexus/v1/merchants", h.token, map[string]any{"name": "x", "bogus": 1})
	assert.Equal(t, 400, resp.StatusCode)
	assert.Equal(t, "BAD_JSON", errorCode(body))
}
