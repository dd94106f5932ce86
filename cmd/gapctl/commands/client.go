// Package commands implements the gapctl CLI commands.
package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// errAPI wraps a non-2xx response from the admin API with the status and
// the server's {"error": "..."} body, the JSON analog of gobfdctl reading
// a ConnectRPC status code off the wire.
type errAPI struct {
	status int
	msg    string
}

func (e *errAPI) Error() string {
	return fmt.Sprintf("gapd: %s (status %d)", e.msg, e.status)
}

// apiClient is a thin REST client for gapd's admin HTTP API. There is no
// generated service client here (no .proto schema backs this API, see
// internal/server's own doc comment), so this plays the role
// bfdv1connect.BfdServiceClient plays in gobfdctl: one small type, built
// once in PersistentPreRunE, used by every subcommand.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(addr string) *apiClient {
	return &apiClient{
		baseURL: "http://" + addr,
		http:    http.DefaultClient,
	}
}

type peerView struct {
	ID                string `json:"id"`
	Address           string `json:"address"`
	Name              string `json:"name,omitempty"`
	Technology        string `json:"technology"`
	Bonded            bool   `json:"bonded"`
	Connected         bool   `json:"connected"`
	Temporary         bool   `json:"temporary"`
	ShouldAutoConnect bool   `json:"should_auto_connect,omitempty"`
}

func (c *apiClient) ListPeers(ctx context.Context) ([]peerView, error) {
	var out []peerView
	if err := c.do(ctx, http.MethodGet, "/peers", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *apiClient) GetPeer(ctx context.Context, id string) (peerView, error) {
	var out peerView
	if err := c.do(ctx, http.MethodGet, "/peers/"+id, nil, &out); err != nil {
		return peerView{}, err
	}
	return out, nil
}

func (c *apiClient) ListConnections(ctx context.Context) ([]string, error) {
	var out []string
	if err := c.do(ctx, http.MethodGet, "/connections", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *apiClient) Connect(ctx context.Context, id string, autoConnect bool) error {
	body := map[string]bool{"auto_connect": autoConnect}
	return c.do(ctx, http.MethodPost, "/peers/"+id+"/connect", body, nil)
}

func (c *apiClient) Disconnect(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/peers/"+id+"/disconnect", nil, nil)
}

func (c *apiClient) Pair(ctx context.Context, id, level string, bondable bool) error {
	body := map[string]any{"level": level, "bondable": bondable}
	return c.do(ctx, http.MethodPost, "/peers/"+id+"/pair", body, nil)
}

// do issues one request against the admin API, JSON-encoding reqBody (if
// non-nil) and JSON-decoding the response into respOut (if non-nil).
func (c *apiClient) do(ctx context.Context, method, path string, reqBody, respOut any) error {
	var bodyReader io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call gapd at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		if errBody.Error == "" {
			errBody.Error = resp.Status
		}
		return &errAPI{status: resp.StatusCode, msg: errBody.Error}
	}

	if respOut == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(respOut); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
