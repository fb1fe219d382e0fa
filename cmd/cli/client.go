// cmd/cli/client.go – REST client for the vnsd HTTP surface
// -----------------------------------------------------------------------------
// Constructor-with-context, env/flag-resolved address convention, over
// net/http against the JSON REST surface this core exposes (§6).
// -----------------------------------------------------------------------------

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"

	"vns/core"
	"vns/pkg/utils"
)

// apiAddr resolves the vnsd HTTP base URL: VNS_API_ADDR env var, else
// viper's "network.api_addr" (config file), else a local default.
// network.api_addr is vnsd's listen address (":8787" in
// config/default.yaml), so a bare ":port" is taken as 127.0.0.1 and an
// address without a scheme gets "http://".
func apiAddr() string {
	if v := utils.EnvOrDefault("VNS_API_ADDR", ""); v != "" {
		return v
	}
	if v := viper.GetString("network.api_addr"); v != "" {
		if strings.HasPrefix(v, ":") {
			v = "127.0.0.1" + v
		}
		if !strings.Contains(v, "://") {
			v = "http://" + v
		}
		return v
	}
	return "http://127.0.0.1:8787"
}

type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient() *apiClient {
	return &apiClient{base: apiAddr(), http: &http.Client{Timeout: 10 * time.Second}}
}

type apiError struct {
	Status int
	Kind   string
	Detail string
}

func (e *apiError) Error() string {
	if e.Status == 0 {
		return e.Detail
	}
	if e.Kind == "" {
		if e.Detail != "" {
			return fmt.Sprintf("vnsd: %s (http %d)", e.Detail, e.Status)
		}
		return fmt.Sprintf("vnsd: http %d", e.Status)
	}
	return fmt.Sprintf("vnsd: %s (http %d)", e.Kind, e.Status)
}

func (c *apiClient) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return utils.Wrap(err, "encode request")
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return utils.Wrap(err, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return utils.Wrap(err, "vnsd unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errBody struct {
			Error string `json:"error"`
			Kind  string `json:"kind"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return &apiError{Status: resp.StatusCode, Kind: errBody.Kind, Detail: errBody.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *apiClient) register(ctx context.Context, reg core.Registration) (contentID string, err error) {
	var resp struct {
		OK        bool   `json:"ok"`
		ContentID string `json:"content_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/register", reg, &resp); err != nil {
		return "", err
	}
	return resp.ContentID, nil
}

func (c *apiClient) resolve(ctx context.Context, name string) (found bool, records []core.Record, owner string, expires int64, err error) {
	var resp struct {
		Found   bool          `json:"found"`
		Records []core.Record `json:"records"`
		Owner   string        `json:"owner"`
		Expires int64         `json:"expires"`
	}
	if err := c.do(ctx, http.MethodGet, "/resolve/"+name, nil, &resp); err != nil {
		return false, nil, "", 0, err
	}
	return resp.Found, resp.Records, resp.Owner, resp.Expires, nil
}

func (c *apiClient) transfer(ctx context.Context, name, newOwner string, signature []byte, currentOwner string, nowMs int64) (contentID string, version uint64, err error) {
	req := map[string]interface{}{
		"new_owner":     newOwner,
		"signature":     signature,
		"current_owner": currentOwner,
		"timestamp_ms":  nowMs,
	}
	var resp struct {
		OK        bool   `json:"ok"`
		ContentID string `json:"content_id"`
		Version   uint64 `json:"version"`
	}
	if err := c.do(ctx, http.MethodPost, "/transfer/"+name, req, &resp); err != nil {
		return "", 0, err
	}
	return resp.ContentID, resp.Version, nil
}

func (c *apiClient) query(ctx context.Context, owner string) ([]string, error) {
	var resp struct {
		Names []string `json:"names"`
	}
	if err := c.do(ctx, http.MethodGet, "/query?owner="+owner, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Names, nil
}
