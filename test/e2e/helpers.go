package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

// Analyze posts an utterance and returns the decoded response. The endpoint
// answers 200 for every pipeline outcome, including failures.
func (app *TestApp) Analyze(t *testing.T, utterance, sessionID string) map[string]any {
	t.Helper()
	body := map[string]any{"utterance": utterance}
	if sessionID != "" {
		body["session_id"] = sessionID
	}
	status, resp := app.postJSON(t, "/analyze", body)
	require.Equal(t, http.StatusOK, status, "POST /analyze: %v", resp)
	return resp
}

// AnalyzeToApproval runs Analyze and requires a sql outcome, returning the
// session id and the synthesized statement.
func (app *TestApp) AnalyzeToApproval(t *testing.T, utterance string) (sessionID, sql string) {
	t.Helper()
	resp := app.Analyze(t, utterance, "")
	require.Equal(t, "sql", resp["kind"], "analyze outcome: %v", resp)
	sessionID, _ = resp["session_id"].(string)
	sql, _ = resp["sql"].(string)
	require.NotEmpty(t, sessionID)
	require.NotEmpty(t, sql)
	return sessionID, sql
}

// Execute posts approved SQL and returns the HTTP status with the decoded
// response. The status is returned rather than asserted: the session race
// scenarios legitimately see 200 and 404 for the same request.
func (app *TestApp) Execute(t *testing.T, sessionID, sql string) (int, map[string]any) {
	t.Helper()
	return app.postJSON(t, "/execute", map[string]any{
		"session_id":   sessionID,
		"approved_sql": sql,
	})
}

// History fetches the conversation transcript for a session.
func (app *TestApp) History(t *testing.T, sessionID string) (int, map[string]any) {
	t.Helper()
	return app.getJSON(t, "/history/"+sessionID)
}

// Health fetches the health endpoint.
func (app *TestApp) Health(t *testing.T) (int, map[string]any) {
	t.Helper()
	return app.getJSON(t, "/healthz")
}

// Version fetches the version endpoint.
func (app *TestApp) Version(t *testing.T) (int, map[string]any) {
	t.Helper()
	return app.getJSON(t, "/version")
}

func (app *TestApp) postJSON(t *testing.T, path string, body any) (int, map[string]any) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequestWithContext(context.Background(),
		http.MethodPost, app.BaseURL+path, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	return app.do(t, req)
}

func (app *TestApp) getJSON(t *testing.T, path string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(),
		http.MethodGet, app.BaseURL+path, nil)
	require.NoError(t, err)
	return app.do(t, req)
}

func (app *TestApp) do(t *testing.T, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := app.httpClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

// firstValue returns the single value of a one-column row object.
func firstValue(t *testing.T, row any) any {
	t.Helper()
	m, ok := row.(map[string]any)
	require.True(t, ok, "row is %T, want object", row)
	require.Len(t, m, 1)
	for _, v := range m {
		return v
	}
	return nil
}
