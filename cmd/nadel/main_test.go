package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/russellyou/nadel/internal/config"
)

func captureOutput(t *testing.T, fn func() error) (stdout, stderr string, err error) {
	t.Helper()
	oldOut, oldErr := os.Stdout, os.Stderr
	defer func() {
		os.Stdout, os.Stderr = oldOut, oldErr
	}()

	outR, outW, _ := os.Pipe()
	errR, errW, _ := os.Pipe()
	os.Stdout, os.Stderr = outW, errW

	doneOut := make(chan struct{})
	var bufOut bytes.Buffer
	go func() { _, _ = io.Copy(&bufOut, outR); close(doneOut) }()

	doneErr := make(chan struct{})
	var bufErr bytes.Buffer
	go func() { _, _ = io.Copy(&bufErr, errR); close(doneErr) }()

	err = fn()
	outW.Close()
	errW.Close()
	<-doneOut
	<-doneErr
	stdout, stderr = bufOut.String(), bufErr.String()
	return
}

func TestHelp(t *testing.T) {
	out, _, err := captureOutput(t, func() error {
		return run([]string{"help", "serve"})
	})
	require.NoError(t, err)
	require.Contains(t, out, "serve FLAGS")

	_, stderr, err := captureOutput(t, func() error { return run(nil) })
	require.EqualError(t, err, "missing command")
	require.Contains(t, stderr, "USAGE")

	_, _, err = captureOutput(t, func() error { return run([]string{"deploy"}) })
	require.EqualError(t, err, `unknown command "deploy"`)
}

func TestCheck(t *testing.T) {
	out, _, err := captureOutput(t, func() error {
		return run([]string{"check", "-schema.root", filepath.Join("testdata", "schemas")})
	})
	require.NoError(t, err)
	require.Equal(t, "ok: 2 services (issues, users)\n", out)

	_, _, err = captureOutput(t, func() error {
		return run([]string{"check", "-config", filepath.Join("testdata", "nadel.yaml")})
	})
	require.NoError(t, err)

	_, _, err = captureOutput(t, func() error {
		return run([]string{"check", "-schema.root", filepath.Join("testdata", "broken")})
	})
	require.ErrorContains(t, err, "schema mapping violations found")
	require.ErrorContains(t, err, "Issue.title")
}

func TestCompileSDL(t *testing.T) {
	out, _, err := captureOutput(t, func() error {
		return run([]string{"compile-sdl", "-schema.root", filepath.Join("testdata", "schemas")})
	})
	require.NoError(t, err)
	require.Contains(t, out, "type Issue")
	require.Contains(t, out, "assignee: User")
	require.NotContains(t, out, "@hydrated")
	require.NotContains(t, out, "assigneeId")

	file := filepath.Join(t.TempDir(), "schema.graphql")
	_, _, err = captureOutput(t, func() error {
		return run([]string{"compile-sdl", "-schema.root", filepath.Join("testdata", "schemas"), "-out", file})
	})
	require.NoError(t, err)
	written, err := os.ReadFile(file)
	require.NoError(t, err)
	require.Equal(t, out, string(written))
}

// graphqlService answers every call with body.
func graphqlService(t *testing.T, body string, queries *[]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query string `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		*queries = append(*queries, req.Query)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestServe(t *testing.T) {
	var issueQueries, userQueries []string
	issues := graphqlService(t, `{"data": {"issue": {
		"title": "Bug",
		"nadel__hydration__assignee__assigneeId": "u1",
		"nadel__hydration__assignee____typename": "Issue"
	}}}`, &issueQueries)
	users := graphqlService(t, `{"data": {"user": {"name": "Ann"}}}`, &userQueries)

	cfg := config.Default()
	cfg.Schema.Root = filepath.Join("testdata", "schemas")
	cfg.Services = map[string]config.ServiceConfig{
		"issues": {URL: issues.URL},
		"users":  {URL: users.URL},
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, zap.NewNop(), ln) }()
	base := "http://" + ln.Addr().String()

	resp, err := http.Post(base+"/graphql", "application/json",
		strings.NewReader(`{"query":"{ issue(id: \"1\") { title assignee { name } } }"}`))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"data":{"issue":{"title":"Bug","assignee":{"name":"Ann"}}}}`, string(body))
	require.NotEmpty(t, resp.Header.Get("Nadel-Execution-Id"))

	require.Len(t, issueQueries, 1)
	require.Contains(t, issueQueries[0], "title: summary")
	require.Len(t, userQueries, 1)
	require.Contains(t, userQueries[0], `user(id: "u1")`)

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Contains(t, string(body), `nadel_service_calls_total{kind="hydration",outcome="ok",service="users"} 1`)

	cancel()
	require.NoError(t, <-done)
}

func TestServeRejectsMissingTransport(t *testing.T) {
	cfg := config.Default()
	cfg.Schema.Root = filepath.Join("testdata", "schemas")
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	err = serve(context.Background(), cfg, zap.NewNop(), ln)
	require.ErrorContains(t, err, `service "issues" has no transport configured`)
}
