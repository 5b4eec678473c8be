package gcpclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/liunix61/uptane-server/internal/config"
)

var (
	ErrNotFound      = errors.New("gcp secret not found")
	ErrAlreadyExists = errors.New("gcp secret already exists")
)

// Client is a minimal Secret Manager v1 REST client authenticated with a
// bearer access token.
type Client struct {
	endpoint   string
	projectID  string
	token      string
	httpClient *http.Client
}

func New(endpoint, projectID, token string) *Client {
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		projectID:  projectID,
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func NewFromConfig(cfg config.Config) (*Client, error) {
	if cfg.GCPProjectID == "" || cfg.GCPAccessToken == "" {
		return nil, errors.New("GCP_PROJECT_ID and GCP_ACCESS_TOKEN are required")
	}
	endpoint := cfg.GCPSecretManagerEndpoint
	if endpoint == "" {
		endpoint = "https://secretmanager.googleapis.com"
	}
	return New(endpoint, cfg.GCPProjectID, cfg.GCPAccessToken), nil
}

func (c *Client) secretPath(secretID string) string {
	return "/v1/projects/" + url.PathEscape(c.projectID) + "/secrets/" + url.PathEscape(secretID)
}

// CreateSecret creates an empty, automatically replicated secret container.
func (c *Client) CreateSecret(ctx context.Context, secretID string) error {
	if secretID == "" {
		return errors.New("secret id is required")
	}
	path := "/v1/projects/" + url.PathEscape(c.projectID) + "/secrets?secretId=" + url.QueryEscape(secretID)
	_, err := c.do(ctx, http.MethodPost, path, map[string]any{
		"replication": map[string]any{"automatic": map[string]any{}},
	})
	return err
}

func (c *Client) AddSecretVersion(ctx context.Context, secretID string, payload []byte) error {
	if secretID == "" {
		return errors.New("secret id is required")
	}
	_, err := c.do(ctx, http.MethodPost, c.secretPath(secretID)+":addVersion", map[string]any{
		"payload": map[string]string{"data": base64.StdEncoding.EncodeToString(payload)},
	})
	return err
}

func (c *Client) AccessSecret(ctx context.Context, secretID string) ([]byte, error) {
	if secretID == "" {
		return nil, errors.New("secret id is required")
	}
	body, err := c.do(ctx, http.MethodGet, c.secretPath(secretID)+"/versions/latest:access", nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Payload struct {
			Data string `json:"data"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if resp.Payload.Data == "" {
		return nil, errors.New("secret payload missing")
	}
	return base64.StdEncoding.DecodeString(resp.Payload.Data)
}

func (c *Client) DeleteSecret(ctx context.Context, secretID string) error {
	if secretID == "" {
		return errors.New("secret id is required")
	}
	_, err := c.do(ctx, http.MethodDelete, c.secretPath(secretID), nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if c == nil {
		return nil, errors.New("gcp client is nil")
	}
	if c.endpoint == "" || c.projectID == "" || c.token == "" {
		return nil, errors.New("gcp client missing configuration")
	}
	var body io.Reader = http.NoBody
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return respBody, nil
	case http.StatusNotFound:
		return nil, ErrNotFound
	case http.StatusConflict:
		return nil, ErrAlreadyExists
	default:
		return nil, fmt.Errorf("gcp secret manager failed: status %d", resp.StatusCode)
	}
}
