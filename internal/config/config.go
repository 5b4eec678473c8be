package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/liunix61/uptane-server/internal/domain"
)

type Config struct {
	HTTPAddr    string
	PostgresDSN string
	SQLitePath  string
	LogLevel    string
	LogFormat   string

	AdminAPIKey string
	UptaneEnv   string

	TUFKeyType  string
	ImageTTL    RoleTTLs
	DirectorTTL RoleTTLs

	ProvisioningEnabled bool
	DeviceGatewayHost   string
	CACertTTL           time.Duration
	ProvisioningCertTTL time.Duration

	BlobBackend string
	BlobFSRoot  string
	S3Bucket    string
	S3Region    string
	S3Endpoint  string

	KeyBackend string
	VaultAddr  string
	VaultToken string

	AWSRegion                 string
	AWSAccessKeyID            string
	AWSSecretAccessKey        string
	AWSSessionToken           string
	AWSSecretsManagerEndpoint string
	GCPProjectID              string
	GCPAccessToken            string
	GCPSecretManagerEndpoint  string

	RateLimitRequests      int
	RateLimitWindowSeconds int
	RateLimitFailClosed    bool
	RateLimitMaxKeys       int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ReconcileSchedule string
	ReconcileGrace    time.Duration
}

// RoleTTLs is the metadata lifetime of each top-level role of one repository.
type RoleTTLs struct {
	Root      time.Duration
	Targets   time.Duration
	Snapshot  time.Duration
	Timestamp time.Duration
}

func (r RoleTTLs) ByRole() map[domain.Role]time.Duration {
	return map[domain.Role]time.Duration{
		domain.RoleRoot:      r.Root,
		domain.RoleTargets:   r.Targets,
		domain.RoleSnapshot:  r.Snapshot,
		domain.RoleTimestamp: r.Timestamp,
	}
}

const (
	day  = 24 * time.Hour
	year = 365 * day
)

// Load reads an optional .env file and then the process environment.
func Load() Config {
	_ = godotenv.Load()
	return FromEnv()
}

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		HTTPAddr:    addr,
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
		SQLitePath:  envDefault("SQLITE_PATH", "uptane.db"),
		LogLevel:    envDefault("LOG_LEVEL", "info"),
		LogFormat:   envDefault("LOG_FORMAT", "json"),
		AdminAPIKey: os.Getenv("ADMIN_API_KEY"),
		UptaneEnv:   envDefault("UPTANE_ENV", "dev"),
		TUFKeyType:  envDefault("TUF_KEY_TYPE", "ed25519"),
		ImageTTL: RoleTTLs{
			Root:      envDurationDefault("TUF_IMAGE_ROOT_TTL", year),
			Targets:   envDurationDefault("TUF_IMAGE_TARGETS_TTL", 31*day),
			Snapshot:  envDurationDefault("TUF_IMAGE_SNAPSHOT_TTL", 7*day),
			Timestamp: envDurationDefault("TUF_IMAGE_TIMESTAMP_TTL", day),
		},
		DirectorTTL: RoleTTLs{
			Root:      envDurationDefault("TUF_DIRECTOR_ROOT_TTL", year),
			Targets:   envDurationDefault("TUF_DIRECTOR_TARGETS_TTL", 31*day),
			Snapshot:  envDurationDefault("TUF_DIRECTOR_SNAPSHOT_TTL", 7*day),
			Timestamp: envDurationDefault("TUF_DIRECTOR_TIMESTAMP_TTL", day),
		},
		ProvisioningEnabled:       envBoolDefault("PROVISIONING_ENABLED", true),
		DeviceGatewayHost:         envDefault("DEVICE_GATEWAY_HOST", "gateway.localhost"),
		CACertTTL:                 envDurationDefault("CA_CERT_TTL", 10*year),
		ProvisioningCertTTL:       envDurationDefault("PROVISIONING_CERT_TTL", year),
		BlobBackend:               envDefault("BLOB_BACKEND", "fs"),
		BlobFSRoot:                envDefault("BLOB_FS_ROOT", "./data/objects"),
		S3Bucket:                  os.Getenv("S3_BUCKET"),
		S3Region:                  envDefault("S3_REGION", os.Getenv("AWS_REGION")),
		S3Endpoint:                os.Getenv("S3_ENDPOINT"),
		KeyBackend:                envDefault("KEY_BACKEND", "soft"),
		VaultAddr:                 os.Getenv("VAULT_ADDR"),
		VaultToken:                os.Getenv("VAULT_TOKEN"),
		AWSRegion:                 os.Getenv("AWS_REGION"),
		AWSAccessKeyID:            os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey:        os.Getenv("AWS_SECRET_ACCESS_KEY"),
		AWSSessionToken:           os.Getenv("AWS_SESSION_TOKEN"),
		AWSSecretsManagerEndpoint: os.Getenv("AWS_SECRETS_MANAGER_ENDPOINT"),
		GCPProjectID:              os.Getenv("GCP_PROJECT_ID"),
		GCPAccessToken:            os.Getenv("GCP_ACCESS_TOKEN"),
		GCPSecretManagerEndpoint:  os.Getenv("GCP_SECRET_MANAGER_ENDPOINT"),
		RateLimitRequests:         envIntDefault("RATE_LIMIT_REQUESTS", 0),
		RateLimitWindowSeconds:    envIntDefault("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitFailClosed:       envBoolDefault("RATE_LIMIT_FAIL_CLOSED", false),
		RateLimitMaxKeys:          envIntDefault("RATE_LIMIT_MAX_KEYS", 10000),
		RedisAddr:                 os.Getenv("REDIS_ADDR"),
		RedisPassword:             os.Getenv("REDIS_PASSWORD"),
		RedisDB:                   envIntDefault("REDIS_DB", 0),
		ReconcileSchedule:         envDefault("RECONCILE_SCHEDULE", "@every 5m"),
		ReconcileGrace:            envDurationDefault("RECONCILE_GRACE", 10*time.Minute),
	}
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "Yes":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "No":
		return false
	default:
		return def
	}
}

// envDurationDefault accepts Go duration syntax ("720h") or a plain number
// of days ("30").
func envDurationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if days, err := strconv.Atoi(v); err == nil {
		if days <= 0 {
			return def
		}
		return time.Duration(days) * day
	}
	parsed, err := time.ParseDuration(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func (c Config) RateLimitWindow() time.Duration {
	if c.RateLimitWindowSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}
