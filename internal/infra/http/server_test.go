package http

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/x509"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	pkcs12 "software.sslmate.com/src/go-pkcs12"

	"github.com/liunix61/uptane-server/internal/config"
	"github.com/liunix61/uptane-server/internal/domain"
	"github.com/liunix61/uptane-server/internal/infra/blob/fs"
	"github.com/liunix61/uptane-server/internal/infra/db"
	"github.com/liunix61/uptane-server/internal/infra/keys/soft"
	"github.com/liunix61/uptane-server/internal/infra/pki"
	"github.com/liunix61/uptane-server/internal/infra/ratelimit"
	"github.com/liunix61/uptane-server/internal/infra/tuf"
	"github.com/liunix61/uptane-server/internal/usecase"
)

type testEnv struct {
	server   *Server
	blobRoot string
	keys     *soft.Store
}

func testConfig() config.Config {
	cfg := config.FromEnv()
	cfg.AdminAPIKey = ""
	cfg.RateLimitRequests = 0
	cfg.DeviceGatewayHost = "gateway.example"
	return cfg
}

func newTestEnv(t *testing.T, cfg config.Config, limiter domain.RateLimiter) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	store := &db.Store{DB: gdb, Mode: db.ModeSQLite}
	require.NoError(t, store.Migrate())

	blobRoot := t.TempDir()
	blobs, err := fs.NewStore(blobRoot)
	require.NoError(t, err)
	keys := soft.NewStore()
	namespaces := db.NewNamespaceRepository(gdb)
	objects := db.NewObjectRepository(gdb)
	ca := pki.NewAuthority(cfg.CACertTTL, cfg.ProvisioningCertTTL)

	lifecycle := &usecase.NamespaceLifecycleManager{
		Namespaces: namespaces,
		Objects:    objects,
		Keys:       keys,
		Blobs:      blobs,
		CA:         ca,
		KeyType:    domain.KeyTypeEd25519,
		TTLs: map[domain.RepoKind]tuf.TTLs{
			domain.RepoImage:    cfg.ImageTTL.ByRole(),
			domain.RepoDirector: cfg.DirectorTTL.ByRole(),
		},
	}
	server := NewServer(cfg, ServerDeps{
		Namespaces: lifecycle,
		Objects:    &usecase.ObjectSyncCoordinator{Namespaces: namespaces, Objects: objects, Blobs: blobs},
		Provisioning: &usecase.ProvisioningService{
			Namespaces:  namespaces,
			Keys:        keys,
			Blobs:       blobs,
			CA:          ca,
			GatewayHost: cfg.DeviceGatewayHost,
		},
		Store:       store,
		StoreMode:   store.Mode,
		RateLimiter: limiter,
		Logger:      zerolog.Nop(),
	})
	return &testEnv{server: server, blobRoot: blobRoot, keys: keys}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createNamespace(t *testing.T) namespaceResponse {
	t.Helper()
	rec := e.do(httptest.NewRequest(http.MethodPost, "/namespaces", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var ns namespaceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ns))
	require.NotEmpty(t, ns.ID)
	return ns
}

func upload(path string, body []byte) *http.Request {
	return httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var out errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestNamespaces_CreateAndList(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	first := env.createNamespace(t)
	time.Sleep(50 * time.Millisecond)
	second := env.createNamespace(t)

	_, err := time.Parse(time.RFC3339, first.CreatedAt)
	require.NoError(t, err)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/namespaces", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []namespaceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)

	// 16 TUF key records plus the CA pair per namespace.
	perNamespace := len(domain.NamespaceKeyRefs(first.ID, true))
	assert.Equal(t, 18, perNamespace)
	assert.Equal(t, 2*perNamespace, env.keys.Len())
}

func TestObjects_UploadDownloadRoundTrip(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	ns := env.createNamespace(t)
	payload := []byte("ostree commit bytes")
	path := "/repo/" + ns.ID + "/objects/ab/cdef0123"

	rec := env.do(upload(path, payload))
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = env.do(httptest.NewRequest(http.MethodHead, path, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, payload, rec.Body.Bytes())
	assert.Equal(t, usecase.ObjectContentType, rec.Header().Get("Content-Type"))

	req := httptest.NewRequest(http.MethodGet, "/objects/ab/cdef0123", nil)
	req.Header.Set(NamespaceHeader, ns.ID)
	rec = env.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, payload, rec.Body.Bytes())

	_, err := os.Stat(filepath.Join(env.blobRoot, ns.ID, "ab", "cdef0123"))
	require.NoError(t, err)
}

func TestObjects_Summary(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	ns := env.createNamespace(t)

	rec := env.do(upload("/repo/"+ns.ID+"/summary", []byte("summary")))
	require.Equal(t, http.StatusNoContent, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/summary", nil)
	req.Header.Set(NamespaceHeader, ns.ID)
	rec = env.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "summary", rec.Body.String())

	_, err := os.Stat(filepath.Join(env.blobRoot, ns.ID, "summary"))
	require.NoError(t, err)

	sharded := "/repo/" + ns.ID + "/objects/su/mmary"
	rec = env.do(upload(sharded, []byte("overwrite")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION", decodeError(t, rec).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(httptest.NewRequest(http.MethodGet, sharded, nil)).Code)

	body, err := os.ReadFile(filepath.Join(env.blobRoot, ns.ID, "summary"))
	require.NoError(t, err)
	assert.Equal(t, "summary", string(body))
}

func TestObjects_UnscopedDownloadRequiresNamespace(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/objects/ab/cdef0123", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestObjects_UploadRejectsBadContentLength(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	ns := env.createNamespace(t)
	path := "/repo/" + ns.ID + "/objects/ab/cdef0123"

	cases := map[string]func(*http.Request){
		"missing": func(r *http.Request) {
			r.ContentLength = 0
			r.Header.Del("Content-Length")
		},
		"non-numeric": func(r *http.Request) { r.Header.Set("Content-Length", "abc") },
		"zero":        func(r *http.Request) { r.Header.Set("Content-Length", "0") },
		"negative":    func(r *http.Request) { r.Header.Set("Content-Length", "-4") },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := upload(path, []byte("data"))
			mutate(req)
			rec := env.do(req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "VALIDATION", decodeError(t, rec).Code)
		})
	}

	rec := env.do(httptest.NewRequest(http.MethodHead, path, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestObjects_UploadUnknownNamespace(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	rec := env.do(upload("/repo/does-not-exist/objects/ab/cdef0123", []byte("data")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestObjects_MissingObject(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	ns := env.createNamespace(t)
	path := "/repo/" + ns.ID + "/objects/ab/cdef0123"

	assert.Equal(t, http.StatusNotFound, env.do(httptest.NewRequest(http.MethodHead, path, nil)).Code)
	rec := env.do(httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Code)
}

func TestObjects_MissingBlobIsConsistencyFault(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	ns := env.createNamespace(t)
	path := "/repo/" + ns.ID + "/objects/ab/cdef0123"
	require.Equal(t, http.StatusNoContent, env.do(upload(path, []byte("data"))).Code)

	require.NoError(t, os.Remove(filepath.Join(env.blobRoot, ns.ID, "ab", "cdef0123")))

	assert.Equal(t, http.StatusOK, env.do(httptest.NewRequest(http.MethodHead, path, nil)).Code)
	rec := env.do(httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "CONSISTENCY_FAULT", decodeError(t, rec).Code)
}

func TestNamespaces_Delete(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	ns := env.createNamespace(t)
	path := "/repo/" + ns.ID + "/objects/ab/cdef0123"
	require.Equal(t, http.StatusNoContent, env.do(upload(path, []byte("data"))).Code)

	rec := env.do(httptest.NewRequest(http.MethodDelete, "/namespaces/"+ns.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, 0, env.keys.Len())
	_, err := os.Stat(filepath.Join(env.blobRoot, ns.ID))
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, http.StatusNotFound, env.do(httptest.NewRequest(http.MethodGet, path, nil)).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(upload(path, []byte("data"))).Code)

	rec = env.do(httptest.NewRequest(http.MethodDelete, "/namespaces/"+ns.ID, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "NAMESPACE_NOT_FOUND", decodeError(t, rec).Code)
}

func TestNamespaces_MalformedIDIsUnknownNamespace(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)

	rec := env.do(httptest.NewRequest(http.MethodDelete, "/namespaces/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "NAMESPACE_NOT_FOUND", decodeError(t, rec).Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/namespaces/not-a-uuid/provisioning-credentials", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	path := "/repo/not-a-uuid/objects/ab/cdef0123"
	assert.Equal(t, http.StatusBadRequest, env.do(upload(path, []byte("data"))).Code)
	assert.Equal(t, http.StatusNotFound, env.do(httptest.NewRequest(http.MethodHead, path, nil)).Code)
	assert.Equal(t, http.StatusNotFound, env.do(httptest.NewRequest(http.MethodGet, path, nil)).Code)
}

func TestNamespaces_ProvisioningCredentials(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	ns := env.createNamespace(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/namespaces/unknown/provisioning-credentials", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/namespaces/"+ns.ID+"/provisioning-credentials", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, archiveMediaType, rec.Header().Get("Content-Type"))

	data := rec.Body.Bytes()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	files := map[string][]byte{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		files[f.Name] = body
	}
	assert.Equal(t, "https://gateway.example/"+ns.ID, string(files[pki.ArchiveURLFile]))

	_, leaf, chain, err := pkcs12.DecodeChain(files[pki.ArchiveCredentialsFile], "")
	require.NoError(t, err)
	require.Len(t, chain, 1)
	assert.Equal(t, ns.ID, chain[0].Subject.CommonName)

	roots := x509.NewCertPool()
	roots.AddCert(chain[0])
	_, err = leaf.Verify(x509.VerifyOptions{
		Roots:     roots,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	})
	require.NoError(t, err)
}

func TestNamespaces_ProvisioningDisabled(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	env.server.provisioning = nil
	rec := env.do(httptest.NewRequest(http.MethodGet, "/namespaces/any/provisioning-credentials", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "PROVISIONING_DISABLED", decodeError(t, rec).Code)
}

func TestNamespaces_RootMetadata(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	ns := env.createNamespace(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/namespaces/"+ns.ID+"/image/root.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var doc tuf.RootDocument
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "root", doc.Signed.Type)
	assert.Equal(t, 1, doc.Signed.Version)
	assert.Empty(t, doc.Signatures)

	assert.Equal(t, http.StatusBadRequest, env.do(httptest.NewRequest(http.MethodGet, "/namespaces/"+ns.ID+"/bogus/root.json", nil)).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(httptest.NewRequest(http.MethodGet, "/namespaces/unknown/director/root.json", nil)).Code)
}

func TestNamespaces_AdminKey(t *testing.T) {
	cfg := testConfig()
	cfg.AdminAPIKey = "s3cret"
	env := newTestEnv(t, cfg, nil)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/namespaces", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/namespaces", nil)
	req.Header.Set(AdminKeyHeader, "wrong")
	assert.Equal(t, http.StatusUnauthorized, env.do(req).Code)

	req = httptest.NewRequest(http.MethodGet, "/namespaces", nil)
	req.Header.Set(AdminKeyHeader, "s3cret")
	assert.Equal(t, http.StatusOK, env.do(req).Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitRequests = 1
	cfg.RateLimitWindowSeconds = 60
	env := newTestEnv(t, cfg, ratelimit.NewMemoryLimiter(ratelimit.MemoryConfig{}))

	rec := env.do(httptest.NewRequest(http.MethodGet, "/namespaces", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("RateLimit-Remaining"))

	rec = env.do(httptest.NewRequest(http.MethodGet, "/namespaces", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "RATE_LIMITED", decodeError(t, rec).Code)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, int, time.Duration) (domain.RateLimitDecision, error) {
	return domain.RateLimitDecision{}, assert.AnError
}

func TestRateLimit_FailOpenAndClosed(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitRequests = 1
	env := newTestEnv(t, cfg, failingLimiter{})
	assert.Equal(t, http.StatusOK, env.do(httptest.NewRequest(http.MethodGet, "/namespaces", nil)).Code)

	cfg.RateLimitFailClosed = true
	env = newTestEnv(t, cfg, failingLimiter{})
	rec := env.do(httptest.NewRequest(http.MethodGet, "/namespaces", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMIT_UNAVAILABLE", decodeError(t, rec).Code)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, db.ModeSQLite, body["mode"])
}

func TestNoRoute(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
