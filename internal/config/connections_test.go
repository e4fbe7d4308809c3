package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConnections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "connections.yaml")
	contents := `
source:
  name: prod-tenant
  url: https://prod.example.com
  tenant-id: tenant-prod
  client-id: client-prod
targets:
  - name: staging
    url: https://staging.example.com
    tenant-id: tenant-staging
    client-id: client-staging
    client-secret-env: STAGING_CLIENT_SECRET
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cf, err := LoadConnections(path)
	require.NoError(t, err)

	assert.Equal(t, "prod-tenant", cf.Source.Name)
	assert.Equal(t, "https://prod.example.com", cf.Source.URL)

	target, ok := cf.Target("staging")
	require.True(t, ok)
	assert.Equal(t, "tenant-staging", target.TenantID)

	_, ok = cf.Target("nonexistent")
	assert.False(t, ok)
}

func TestConnectionSecretFromEnv(t *testing.T) {
	t.Setenv("MY_SECRET", "s3cr3t")
	c := ConnectionConfig{ClientSecretEnv: "MY_SECRET"}
	assert.Equal(t, "s3cr3t", c.ClientSecret())

	empty := ConnectionConfig{}
	assert.Equal(t, "", empty.ClientSecret())
}

func TestLoadConnectionsMissingFile(t *testing.T) {
	_, err := LoadConnections(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
