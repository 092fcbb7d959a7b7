package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/apscustody/labcustody/internal/config"
	"github.com/apscustody/labcustody/internal/service"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		LedgerPath:   filepath.Join(dir, "ledger.jsonl"),
		RegistryPath: filepath.Join(dir, "registry.json"),
		DataDir:      dir,
		KeysDir:      filepath.Join(dir, "keys"),
	}
	svc, err := service.New(cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	srv := httptest.NewServer(New(svc, zap.NewNop().Sugar()))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, srv *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHTTPAPI_EnrollEmitOpenLifecycle(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv, "/ca/enroll", actorBody{ActorID: "LAB-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv, "/ca/enroll", actorBody{ActorID: "PAT-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv, "/reports", emitBody{
		ReportID:   "R1",
		LabID:      "LAB-1",
		PatientRef: "PAT-1",
		IssuedAt:   "2026-01-01T00:00:00Z",
		Content:    "hello",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/reports/R1?as=PAT-1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	decode(t, resp, &body)
	require.Equal(t, "hello", body["content"])

	resp, err = http.Get(srv.URL + "/reports/R1?as=HOSP-1")
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestHTTPAPI_ShareUnshareAndRevoke(t *testing.T) {
	srv := newTestServer(t)
	for _, id := range []string{"LAB-1", "PAT-1", "HOSP-1"} {
		resp := postJSON(t, srv, "/ca/enroll", actorBody{ActorID: id})
		resp.Body.Close()
	}
	resp := postJSON(t, srv, "/reports", emitBody{
		ReportID: "R1", LabID: "LAB-1", PatientRef: "PAT-1",
		IssuedAt: "2026-01-01T00:00:00Z", Content: "hello",
	})
	resp.Body.Close()

	resp = postJSON(t, srv, "/reports/R1/share", shareBody{PatientID: "PAT-1", TargetID: "HOSP-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/reports/R1?as=HOSP-1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv, "/reports/R1/revoke", revokeBody{LabID: "LAB-1", Reason: "contaminated"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/reports/R1/state")
	require.NoError(t, err)
	var state map[string]any
	decode(t, resp, &state)
	require.Equal(t, "REVOKED", state["status"])
}

func TestHTTPAPI_Healthz(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	decode(t, resp, &body)
	require.Contains(t, body, "uptimeSeconds")
}

func TestHTTPAPI_OpenMissingActorParamIsBadRequest(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/reports/R1")
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
