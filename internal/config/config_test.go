package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
schema:
  root: ./schemas
server:
  addr: ":9090"
  timeout: 2s
  metadataHeaders: [Authorization]
engine:
  gracePeriod: 5s
transport:
  grpc:
    rpcTimeout: 500ms
services:
  issues:
    grpc: ["localhost:50051", "localhost:50052"]
  users:
    url: http://users.internal/graphql
`))
	require.NoError(t, err)

	want := Default()
	want.Schema.Root = "./schemas"
	want.Server.Addr = ":9090"
	want.Server.Timeout = 2 * time.Second
	want.Server.MetadataHeaders = []string{"Authorization"}
	want.Engine.GracePeriod = 5 * time.Second
	want.Transport.GRPC.RPCTimeout = 500 * time.Millisecond
	want.Services = map[string]ServiceConfig{
		"issues": {GRPC: []string{"localhost:50051", "localhost:50052"}},
		"users":  {URL: "http://users.internal/graphql"},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
	require.NoError(t, cfg.Validate([]string{"issues", "users"}))
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("server:\n  adr: \":1\"\n"))
	require.ErrorContains(t, err, "adr")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nadel.yaml")
	require.NoError(t, os.WriteFile(path, []byte("otel:\n  endpoint: collector:4317\n"), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "collector:4317", cfg.Otel.Endpoint)
	require.Equal(t, "nadel", cfg.Otel.Service)
	require.Equal(t, filepath.Dir(path), cfg.Schema.Root)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Services = map[string]ServiceConfig{
		"both":    {GRPC: []string{"a:1"}, URL: "http://b"},
		"neither": {},
		"extra":   {URL: "http://extra"},
	}
	err := cfg.Validate([]string{"both", "neither", "missing"})
	require.Error(t, err)
	for _, msg := range []string{
		`service "both" configures both grpc and url`,
		`service "neither" configures neither grpc nor url`,
		`service "missing" has no transport configured`,
		`service "extra" is configured but has no schema`,
	} {
		require.ErrorContains(t, err, msg)
	}
}
