// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bootstrap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCatalogYAML = `
series:
  jammy:
    codename: jammy
    sources:
      linux:
        name: linux
        packages:
          main: linux
`

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	catalogPath := filepath.Join(dir, "kernel-series.yaml")
	require.NoError(t, os.WriteFile(catalogPath, []byte(testCatalogYAML), 0o600))

	configYAML := `
tracker:
  base_url: http://127.0.0.1:1
  credential_dir: ` + dir + `
catalog:
  path: ` + catalogPath + `
status:
  path: ` + filepath.Join(dir, "status.yaml") + `
  lock_path: ` + filepath.Join(dir, "swm.lock") + `
tracing:
  exporter: none
`
	configPath := filepath.Join(dir, "swmd.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(configYAML), 0o600))
	return configPath
}

func TestEngineWiresEveryCollaboratorFromConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir)

	eng, cleanup, err := Engine(Options{ConfigPath: configPath})
	require.NoError(t, err)
	require.NotNil(t, eng)
	defer cleanup()

	assert.NotNil(t, eng.Tracker)
	assert.NotNil(t, eng.Catalog)
	assert.NotNil(t, eng.Tag)
	assert.NotNil(t, eng.Publish)
	assert.NotNil(t, eng.Locks)
	assert.Equal(t, filepath.Join(dir, "status.yaml"), eng.StatusPath)
	_, ok := eng.Catalog.SeriesList["jammy"]
	assert.True(t, ok, "catalog file must be loaded into the engine")
}

func TestEngineErrorsOnMissingConfigFile(t *testing.T) {
	_, _, err := Engine(Options{ConfigPath: filepath.Join(t.TempDir(), "does-not-exist.yaml")})
	assert.Error(t, err)
}

func TestEngineErrorsOnMissingCatalogFile(t *testing.T) {
	dir := t.TempDir()
	configYAML := `
tracker:
  base_url: http://127.0.0.1:1
  credential_dir: ` + dir + `
catalog:
  path: ` + filepath.Join(dir, "nonexistent-catalog.yaml") + `
status:
  path: ` + filepath.Join(dir, "status.yaml") + `
  lock_path: ` + filepath.Join(dir, "swm.lock") + `
tracing:
  exporter: none
`
	configPath := filepath.Join(dir, "swmd.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(configYAML), 0o600))

	_, _, err := Engine(Options{ConfigPath: configPath})
	assert.Error(t, err)
}

func TestEngineUsesStagingEndpointsWhenRequested(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir)

	eng, cleanup, err := Engine(Options{ConfigPath: configPath, Staging: true})
	require.NoError(t, err)
	defer cleanup()
	assert.NotNil(t, eng.Tracker)
}
