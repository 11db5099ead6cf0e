package k8s

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKubeConfig = `apiVersion: v1
kind: Config
clusters:
- cluster:
    server: https://127.0.0.1:6443
  name: test
contexts:
- context:
    cluster: test
    user: test
  name: test
current-context: test
users:
- name: test
  user:
    token: secret
`

func TestNewClientsetFromKubeConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.WriteFile(path, []byte(testKubeConfig), 0o600))

	cs, err := NewClientset(path)
	require.NoError(t, err)
	assert.NotNil(t, cs)
}

func TestNewClientsetMissingFile(t *testing.T) {
	_, err := NewClientset(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
