package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppName         = "Storefront"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultManagerIdleTTL  = 30 * time.Minute
	defaultLoginRateLimit  = 5
	defaultRecaptchaAnchor = "recaptcha-container"
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
	managerIdleEnvVar      = "MANAGER_IDLE_TTL"
	loginRateLimitEnvVar   = "LOGIN_RATE_LIMIT"

	// BackendMemory selects the in-process implementation of a collaborator.
	BackendMemory = "memory"
	// BackendPostgres stores profiles in PostgreSQL.
	BackendPostgres = "postgres"
	// BackendFirestore stores profiles in Cloud Firestore.
	BackendFirestore = "firestore"
	// BackendFirebase authenticates against Firebase Identity Toolkit.
	BackendFirebase = "firebase"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName           string
	AppEnv            string
	Port              string
	LogLevel          string
	DatabaseURL       string
	RedisURL          string
	ShutdownPeriod    time.Duration
	IdempotencyTTL    time.Duration
	ClientTokenSecret string
	AdminInviteCode   string
	ProfileBackend    string
	IdentityBackend   string
	RecaptchaAnchorID string
	LoginRateLimit    int
	ManagerIdleTTL    time.Duration
	Firebase          FirebaseConfig
}

// FirebaseConfig holds the hosted backend settings.
type FirebaseConfig struct {
	ProjectID          string
	ServiceAccountPath string
	WebAPIKey          string
}

// Load reads configuration values from the environment and populates a Config instance.
// A .env file in the working directory is applied first when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getEnv("APP_NAME", defaultAppName),
		AppEnv:            getEnv("APP_ENV", defaultAppEnv),
		Port:              getEnv("PORT", defaultPort),
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
		ShutdownPeriod:    defaultShutdownDelay,
		IdempotencyTTL:    defaultIdempotencyTTL,
		ClientTokenSecret: os.Getenv("CLIENT_TOKEN_SECRET"),
		AdminInviteCode:   os.Getenv("ADMIN_INVITE_CODE"),
		ProfileBackend:    strings.ToLower(getEnv("PROFILE_BACKEND", BackendMemory)),
		IdentityBackend:   strings.ToLower(getEnv("IDENTITY_BACKEND", BackendMemory)),
		RecaptchaAnchorID: getEnv("RECAPTCHA_ANCHOR_ID", defaultRecaptchaAnchor),
		LoginRateLimit:    defaultLoginRateLimit,
		ManagerIdleTTL:    defaultManagerIdleTTL,
		Firebase: FirebaseConfig{
			ProjectID:          os.Getenv("FIREBASE_PROJECT_ID"),
			ServiceAccountPath: os.Getenv("FIREBASE_SERVICE_ACCOUNT_PATH"),
			WebAPIKey:          os.Getenv("FIREBASE_WEB_API_KEY"),
		},
	}

	if v := os.Getenv(shutdownSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownSecondsEnvVar, err)
		}
		cfg.ShutdownPeriod = time.Duration(seconds) * time.Second
	} else if v := os.Getenv(shutdownDurationEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownDurationEnvVar, err)
		}
		cfg.ShutdownPeriod = d
	}

	if v := os.Getenv(idemTTLSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", idemTTLSecondsEnvVar, err)
		}
		cfg.IdempotencyTTL = time.Duration(seconds) * time.Second
	} else if v := os.Getenv(idemTTLDurEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", idemTTLDurEnvVar, err)
		}
		cfg.IdempotencyTTL = d
	}

	if v := os.Getenv(managerIdleEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", managerIdleEnvVar, err)
		}
		cfg.ManagerIdleTTL = d
	}

	if v := os.Getenv(loginRateLimitEnvVar); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", loginRateLimitEnvVar, err)
		}
		cfg.LoginRateLimit = n
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	switch c.ProfileBackend {
	case BackendMemory, BackendPostgres, BackendFirestore:
	default:
		return fmt.Errorf("unknown PROFILE_BACKEND %q", c.ProfileBackend)
	}
	switch c.IdentityBackend {
	case BackendMemory, BackendFirebase:
	default:
		return fmt.Errorf("unknown IDENTITY_BACKEND %q", c.IdentityBackend)
	}

	if c.ProfileBackend == BackendPostgres && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must be set when PROFILE_BACKEND=postgres")
	}
	if c.usesFirebase() && c.Firebase.ProjectID == "" {
		return fmt.Errorf("FIREBASE_PROJECT_ID must be set")
	}
	if c.IdentityBackend == BackendFirebase && c.Firebase.WebAPIKey == "" {
		return fmt.Errorf("FIREBASE_WEB_API_KEY must be set when IDENTITY_BACKEND=firebase")
	}

	if c.IsDev() {
		return nil
	}
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", c.AppEnv)
	}
	if c.ClientTokenSecret == "" {
		return fmt.Errorf("CLIENT_TOKEN_SECRET must be set when APP_ENV=%s", c.AppEnv)
	}
	return nil
}

func (c Config) usesFirebase() bool {
	return c.ProfileBackend == BackendFirestore || c.IdentityBackend == BackendFirebase
}

// UsesFirebase reports whether any collaborator needs a Firebase app.
func (c Config) UsesFirebase() bool {
	return c.usesFirebase()
}

// IsDev reports whether the app runs in a local development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
