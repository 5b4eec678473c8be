package awsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/liunix61/uptane-server/internal/config"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func jsonResponse(status int, body any) *http.Response {
	payload, _ := json.Marshal(body)
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(payload)),
		Header:     make(http.Header),
	}
}

func TestClient_SecretLifecycle(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	secrets := map[string]string{}
	var targets []string

	client := New("https://secrets.example", "eu-west-1", "access", "secret", "session").WithClock(func() time.Time { return fixed })
	client.httpClient = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			if r.Header.Get("X-Amz-Date") != "20260102T030405Z" {
				t.Fatalf("unexpected X-Amz-Date: %s", r.Header.Get("X-Amz-Date"))
			}
			if r.Header.Get("X-Amz-Security-Token") != "session" {
				t.Fatal("missing session token")
			}
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "AWS4-HMAC-SHA256 Credential=access/20260102/eu-west-1/secretsmanager/aws4_request") {
				t.Fatalf("unexpected authorization header: %s", auth)
			}
			target := strings.TrimPrefix(r.Header.Get("X-Amz-Target"), targetPrefix)
			targets = append(targets, target)

			var req map[string]any
			body, _ := io.ReadAll(r.Body)
			if err := json.Unmarshal(body, &req); err != nil {
				t.Fatalf("decode %s: %v", target, err)
			}
			notFound := map[string]string{"__type": "ResourceNotFoundException", "message": "missing"}
			switch target {
			case "CreateSecret":
				name := req["Name"].(string)
				if _, ok := secrets[name]; ok {
					return jsonResponse(http.StatusBadRequest, map[string]string{"__type": "com.amazonaws#ResourceExistsException"}), nil
				}
				secrets[name] = req["SecretString"].(string)
				return jsonResponse(http.StatusOK, map[string]string{"Name": name}), nil
			case "PutSecretValue":
				id := req["SecretId"].(string)
				if _, ok := secrets[id]; !ok {
					return jsonResponse(http.StatusBadRequest, notFound), nil
				}
				secrets[id] = req["SecretString"].(string)
				return jsonResponse(http.StatusOK, map[string]string{}), nil
			case "GetSecretValue":
				v, ok := secrets[req["SecretId"].(string)]
				if !ok {
					return jsonResponse(http.StatusBadRequest, notFound), nil
				}
				return jsonResponse(http.StatusOK, map[string]string{"SecretString": v}), nil
			case "DeleteSecret":
				if req["ForceDeleteWithoutRecovery"] != true {
					t.Fatal("expected forced delete")
				}
				id := req["SecretId"].(string)
				if _, ok := secrets[id]; !ok {
					return jsonResponse(http.StatusBadRequest, notFound), nil
				}
				delete(secrets, id)
				return jsonResponse(http.StatusOK, map[string]string{}), nil
			}
			t.Fatalf("unexpected target %s", target)
			return nil, nil
		}),
	}

	ctx := context.Background()
	if err := client.CreateSecret(ctx, "s1", []byte("v1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := client.CreateSecret(ctx, "s1", []byte("v2")); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if err := client.PutSecretValue(ctx, "s1", []byte("v2")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := client.GetSecret(ctx, "s1")
	if err != nil || string(got) != "v2" {
		t.Fatalf("get: %q %v", got, err)
	}
	if err := client.DeleteSecret(ctx, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := client.GetSecret(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(targets) != 6 {
		t.Fatalf("unexpected call count: %v", targets)
	}
}

func TestNewFromConfig(t *testing.T) {
	if _, err := NewFromConfig(config.Config{}); err == nil {
		t.Fatal("expected error for missing credentials")
	}
	client, err := NewFromConfig(config.Config{AWSRegion: "us-east-1", AWSAccessKeyID: "a", AWSSecretAccessKey: "b"})
	if err != nil {
		t.Fatalf("new from config: %v", err)
	}
	if client.endpoint != "https://secretsmanager.us-east-1.amazonaws.com" {
		t.Fatalf("unexpected endpoint: %s", client.endpoint)
	}
}
