package awsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/liunix61/uptane-server/internal/config"
)

const targetPrefix = "secretsmanager."

var (
	ErrNotFound      = errors.New("aws secret not found")
	ErrAlreadyExists = errors.New("aws secret already exists")
)

// Client speaks the Secrets Manager JSON protocol with SigV4 request
// signing.
type Client struct {
	endpoint   string
	signer     signer
	httpClient *http.Client
	clock      func() time.Time
}

func New(endpoint, region, accessKey, secretKey, sessionToken string) *Client {
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		signer: signer{
			service:      "secretsmanager",
			region:       region,
			accessKey:    accessKey,
			secretKey:    secretKey,
			sessionToken: sessionToken,
		},
		httpClient: &http.Client{Timeout: 10 * time.Second},
		clock:      time.Now,
	}
}

func NewFromConfig(cfg config.Config) (*Client, error) {
	if cfg.AWSRegion == "" || cfg.AWSAccessKeyID == "" || cfg.AWSSecretAccessKey == "" {
		return nil, errors.New("AWS_REGION, AWS_ACCESS_KEY_ID, and AWS_SECRET_ACCESS_KEY are required")
	}
	endpoint := cfg.AWSSecretsManagerEndpoint
	if endpoint == "" {
		endpoint = "https://secretsmanager." + cfg.AWSRegion + ".amazonaws.com"
	}
	return New(endpoint, cfg.AWSRegion, cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, cfg.AWSSessionToken), nil
}

func (c *Client) WithClock(clock func() time.Time) *Client {
	c.clock = clock
	return c
}

func (c *Client) GetSecret(ctx context.Context, secretID string) ([]byte, error) {
	if secretID == "" {
		return nil, errors.New("secret id is required")
	}
	body, err := c.call(ctx, "GetSecretValue", map[string]string{"SecretId": secretID})
	if err != nil {
		return nil, err
	}
	var resp struct {
		SecretString string `json:"SecretString"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if resp.SecretString == "" {
		return nil, errors.New("secret string missing")
	}
	return []byte(resp.SecretString), nil
}

func (c *Client) CreateSecret(ctx context.Context, secretID string, secret []byte) error {
	if secretID == "" {
		return errors.New("secret id is required")
	}
	_, err := c.call(ctx, "CreateSecret", map[string]any{
		"Name":         secretID,
		"SecretString": string(secret),
	})
	return err
}

// PutSecretValue stores a new current version of an existing secret.
func (c *Client) PutSecretValue(ctx context.Context, secretID string, secret []byte) error {
	if secretID == "" {
		return errors.New("secret id is required")
	}
	_, err := c.call(ctx, "PutSecretValue", map[string]any{
		"SecretId":     secretID,
		"SecretString": string(secret),
	})
	return err
}

// DeleteSecret removes a secret without a recovery window.
func (c *Client) DeleteSecret(ctx context.Context, secretID string) error {
	if secretID == "" {
		return errors.New("secret id is required")
	}
	_, err := c.call(ctx, "DeleteSecret", map[string]any{
		"SecretId":                   secretID,
		"ForceDeleteWithoutRecovery": true,
	})
	return err
}

func (c *Client) call(ctx context.Context, target string, payload any) ([]byte, error) {
	if c == nil {
		return nil, errors.New("aws client is nil")
	}
	if c.endpoint == "" || !c.signer.configured() {
		return nil, errors.New("aws client missing configuration")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-amz-json-1.1")
	req.Header.Set("X-Amz-Target", targetPrefix+target)

	if c.clock == nil {
		c.clock = time.Now
	}
	if err := c.signer.sign(req, body, c.clock().UTC()); err != nil {
		return nil, err
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
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(target, resp.StatusCode, respBody)
	}
	return respBody, nil
}

// apiError maps the "__type" of a Secrets Manager error body onto the
// package sentinels.
func apiError(target string, status int, body []byte) error {
	var envelope struct {
		Type    string `json:"__type"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &envelope)
	kind := envelope.Type
	if i := strings.LastIndex(kind, "#"); i >= 0 {
		kind = kind[i+1:]
	}
	switch kind {
	case "ResourceNotFoundException":
		return fmt.Errorf("%s: %w", target, ErrNotFound)
	case "ResourceExistsException":
		return fmt.Errorf("%s: %w", target, ErrAlreadyExists)
	}
	if kind == "" {
		return fmt.Errorf("aws secrets manager %s failed: status %d", target, status)
	}
	return fmt.Errorf("aws secrets manager %s failed: status %d: %s", target, status, kind)
}
