package provisioner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// SecretStore writes a deployment's secret map to the external secret
// store at a deterministic path. The Vault Secrets Operator CRD
// (ClusterGateway.BindSecretStore) later reconciles that path into a
// cluster-local Secret; this interface only concerns the write side.
//
// No Vault client library appears anywhere in the example pack, so this is
// implemented directly against Vault's KV v2 HTTP API with net/http rather
// than importing an unvetted third-party client (documented in DESIGN.md).
type SecretStore interface {
	WriteSecrets(ctx context.Context, path string, secrets map[string]string) error
}

// VaultKVStore is a minimal Vault KV v2 client: one PUT per call.
type VaultKVStore struct {
	Address string
	Token   string
	Mount   string
	http    *http.Client
}

func NewVaultKVStore(address, token, mount string) *VaultKVStore {
	return &VaultKVStore{Address: address, Token: token, Mount: mount, http: &http.Client{}}
}

func (v *VaultKVStore) WriteSecrets(ctx context.Context, path string, secrets map[string]string) error {
	body, err := json.Marshal(map[string]interface{}{"data": secrets})
	if err != nil {
		return fmt.Errorf("marshal secrets: %w", err)
	}

	url := fmt.Sprintf("%s/v1/%s/data/%s", v.Address, v.Mount, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build vault request: %w", err)
	}
	req.Header.Set("X-Vault-Token", v.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.http.Do(req)
	if err != nil {
		return fmt.Errorf("vault write %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("vault write %s: status %d", path, resp.StatusCode)
	}
	return nil
}
