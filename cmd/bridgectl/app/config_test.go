// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sourcesYAML = `
sources:
  google-login:
    template: GoogleOIDC
    client_id: client-1
    client_secret: hush
    redirect_uri: https://sp.example.org/callback
  stub:
    provider: oauth2
    client_id: client-2
    client_secret: hush2
    redirect_uri: https://sp.example.org/callback
    authorization_endpoint: https://idp.example.org/authorize
    token_endpoint: https://idp.example.org/token
    userinfo_endpoint: https://idp.example.org/userinfo
    scopes:
      - profile
      - email
`

func TestLoadSources(t *testing.T) { //nolint:paralleltest // Uses the global viper config
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sourcesYAML), 0o600))

	viper.Set("config", path)
	t.Cleanup(func() { viper.Set("config", "") })

	sources, err := loadSources()
	require.NoError(t, err)
	require.Len(t, sources, 2)

	// The map key becomes the source id.
	google := sources["google-login"]
	assert.Equal(t, "google-login", google.SourceID)
	assert.Equal(t, "GoogleOIDC", google.Template)

	resolved, err := google.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "oidc", resolved.Provider)

	stub, err := loadSource("stub")
	require.NoError(t, err)
	assert.Equal(t, []string{"profile", "email"}, stub.Scopes)

	_, err = loadSource("missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `source "missing" not found`)
}

func TestLoadSourcesWithoutConfigFlag(t *testing.T) { //nolint:paralleltest // Uses the global viper config
	viper.Set("config", "")

	_, err := loadSources()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no configuration file")
}
