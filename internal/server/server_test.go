package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExchanger struct {
	codes []string
	err   error
}

func (f *fakeExchanger) Exchange(ctx context.Context, code string) error {
	f.codes = append(f.codes, code)
	return f.err
}

func testServer(t *testing.T, exchanger CodeExchanger, state string) *httptest.Server {
	t.Helper()
	srv := New("127.0.0.1:0", exchanger, state)
	mux := http.NewServeMux()
	srv.registerRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestHealthEndpoint(t *testing.T) {
	ts := testServer(t, &fakeExchanger{}, "")

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
}

func TestHealthEndpoint_RejectsPost(t *testing.T) {
	ts := testServer(t, &fakeExchanger{}, "")

	resp, err := http.Post(ts.URL+"/health", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestCallback(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		exchErr    error
		wantStatus int
		wantCodes  []string
	}{
		{"exchanges code", "?code=abc&state=s1", nil, http.StatusOK, []string{"abc"}},
		{"missing code", "?state=s1", nil, http.StatusBadRequest, nil},
		{"wrong state", "?code=abc&state=other", nil, http.StatusBadRequest, nil},
		{"exchange fails", "?code=abc&state=s1", errors.New("invalid_grant"), http.StatusBadGateway, []string{"abc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exchanger := &fakeExchanger{err: tt.exchErr}
			ts := testServer(t, exchanger, "s1")

			resp, err := http.Get(ts.URL + "/callback" + tt.query)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantCodes, exchanger.codes)
		})
	}
}

func TestCallback_NoStateConfigured(t *testing.T) {
	exchanger := &fakeExchanger{}
	ts := testServer(t, exchanger, "")

	resp, err := http.Get(ts.URL + "/callback?code=xyz")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "Authorization complete")
	assert.Equal(t, []string{"xyz"}, exchanger.codes)
}

func TestRun_StopsOnCancel(t *testing.T) {
	srv := New("127.0.0.1:0", &fakeExchanger{}, "")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	cancel()
	assert.NoError(t, <-done)
}
