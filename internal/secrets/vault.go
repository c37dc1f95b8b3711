// Package secrets wraps HashiCorp Vault for loading connection strings and
// module API keys, mirroring the teacher's packages/go-core/config pattern.
package secrets

import (
	"fmt"

	"github.com/hashicorp/vault/api"
)

// Manager wraps a Vault API client for reading KV secrets.
type Manager struct {
	client *api.Client
}

// NewManager creates a Vault client pointed at address and authenticated
// with token.
func NewManager(address, token string) (*Manager, error) {
	cfg := api.DefaultConfig()
	cfg.Address = address

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("secrets: vault client init: %w", err)
	}
	client.SetToken(token)

	return &Manager{client: client}, nil
}

// Get reads a secret at path and returns its raw data map.
func (m *Manager) Get(path string) (map[string]interface{}, error) {
	secret, err := m.client.Logical().Read(path)
	if err != nil {
		return nil, fmt.Errorf("secrets: read %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("secrets: no data at %s", path)
	}
	return secret.Data, nil
}

// GetKV2 reads from a KV v2 backend and unwraps the inner "data" envelope.
func (m *Manager) GetKV2(path string) (map[string]interface{}, error) {
	raw, err := m.Get(path)
	if err != nil {
		return nil, err
	}
	data, ok := raw["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("secrets: unexpected data shape at %s", path)
	}
	return data, nil
}

// String extracts a string value from a KV2 data map, defaulting to "" if
// absent or of the wrong type.
func String(data map[string]interface{}, key string) string {
	v, _ := data[key].(string)
	return v
}
