package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"content-hand/app"
	"content-hand/config"
	"content-hand/models"
)

const testAPIKey = "secret"

func newTestApp(t *testing.T) (*app.App, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		StorageDriver:      "memory",
		APISecretKey:       testAPIKey,
		FirstPartyDomains:  "example.com",
		AffiliateDomains:   "amzn.to",
		SLADeadlineDays:    5,
		DailyQuota:         3,
		PublishWindowStart: "09:00",
		PublishWindowEnd:   "17:00",
		PublishTimezone:    "UTC",
	}
	a, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	return a, newRouter(a)
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("X-API-KEY", testAPIKey)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestRouter_HealthAndAuth(t *testing.T) {
	_, r := newTestApp(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/content/1", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_ContentErrors(t *testing.T) {
	a, r := newTestApp(t)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/content/abc", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/content/999", "").Code)

	item := &models.ContentItem{OwnerID: "acme", Title: "Draft", Body: "<p>short</p>", Status: models.StatusDraft}
	require.NoError(t, a.Store.Create(context.Background(), item))
	path := "/content/" + strconv.FormatUint(uint64(item.ID), 10)

	assert.Equal(t, http.StatusConflict, do(r, http.MethodPost, path+"/publish", "").Code)
	assert.Equal(t, http.StatusConflict, do(r, http.MethodPost, path+"/approve", `{"reviewer":"ed"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, path+"/approve", `{}`).Code)

	w := do(r, http.MethodPost, path+"/submit", "")
	require.Equal(t, http.StatusOK, w.Code)
	validation := decode(t, w)["validation"].(map[string]any)
	assert.Equal(t, false, validation["passed"])

	w = do(r, http.MethodPatch, path, `{"title":"Renamed"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Renamed", decode(t, w)["title"])

	w = do(r, http.MethodPost, "/content/query", `{"owner_id":"acme","statuses":["draft"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	var items []models.ContentItem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
	require.Len(t, items, 1)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/content/query", `{"statuses":["archived"]}`).Code)

	assert.Equal(t, http.StatusOK, do(r, http.MethodDelete, path, "").Code)
	assert.Equal(t, http.StatusConflict, do(r, http.MethodDelete, path, "").Code)
}

func TestRouter_PipelineValidation(t *testing.T) {
	_, r := newTestApp(t)

	w := do(r, http.MethodPost, "/pipeline/execute", `{"topic":{"source":"rss"}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, decode(t, w)["fields"], "source")

	w = do(r, http.MethodPut, "/pipeline-configs/acme", `{"name":"x","settings":{"content_type":"listicle"}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(r, http.MethodGet, "/pipeline-configs/acme", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["default"])
}

func TestRouter_ValidatorsAndLinks(t *testing.T) {
	_, r := newTestApp(t)

	w := do(r, http.MethodPost, "/validate/publish-gate", `{"title":"t","body":"<p>too short</p>"}`)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode(t, w)
	assert.Equal(t, false, res["passed"])
	assert.NotEmpty(t, res["errors"])

	w = do(r, http.MethodPost, "/links/transform", `{"body":"<p><a href=\"https://www.example.com/a\">a</a> <a href=\"https://amzn.to/x\">b</a></p>"}`)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	counts := out["transformation_counts"].(map[string]any)
	assert.Equal(t, 1.0, counts["internal"])
	assert.Equal(t, 1.0, counts["affiliate"])
	assert.Contains(t, out["body"], `rel="sponsored nofollow"`)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/links/transform", `{}`).Code)
}

func TestRouter_Workflows(t *testing.T) {
	_, r := newTestApp(t)

	w := do(r, http.MethodPost, "/sla/escalate", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0.0, decode(t, w)["approved_count"])

	assert.Equal(t, http.StatusUnprocessableEntity, do(r, http.MethodPost, "/sla/escalate", `{"deadline_days":-1}`).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, do(r, http.MethodPost, "/schedule/run", `{"daily_quota":-1}`).Code)

	w = do(r, http.MethodPost, "/schedule/run", `{"daily_quota":2}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2.0, decode(t, w)["daily_remaining"])

	w = do(r, http.MethodPost, "/publish/due", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0.0, decode(t, w)["published_count"])
}
