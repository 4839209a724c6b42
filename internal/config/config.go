package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"

	defaultPort       = 8080
	defaultEnv        = "development"
	defaultDBHost     = "127.0.0.1"
	defaultDBPort     = 3306
	defaultDBUser     = "root"
	defaultDBPassword = "password"
	defaultDBName     = "lokatani"
	defaultDBCharset  = "utf8mb4"
	defaultDBLoc      = "Local"
	defaultRedisURL   = "redis://localhost:6379/0"

	// defaultEmailDomain restricts self-registration to company accounts.
	defaultEmailDomain = "lokatani.id"

	defaultModelKey = "models/vegetable-classifier.tflite"
)

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int                   `yaml:"port"`
	Env            string                `yaml:"env"` // "development" | "production"
	DSN            string                `yaml:"dsn"` // MySQL DSN
	Database       DatabaseRuntimeConfig `yaml:"database"`
	RedisURL       string                `yaml:"redis_url"`
	JWTSecret      string                `yaml:"jwt_secret"`
	DeviceAPIKey   string                `yaml:"device_api_key"`
	EmailDomain    string                `yaml:"email_domain"`
	AllowedOrigins []string              `yaml:"allowed_origins"`
	Timezone       string                `yaml:"timezone"`
	S3             S3Options             `yaml:"s3"`
	ML             MLOptions             `yaml:"ml"`
}

type DatabaseRuntimeConfig struct {
	DSN      string            `yaml:"dsn"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	User     string            `yaml:"user"`
	Password string            `yaml:"password"`
	Name     string            `yaml:"name"`
	Charset  string            `yaml:"charset"`
	Loc      string            `yaml:"loc"`
	Params   map[string]string `yaml:"params"`
}

// S3Options configures the blob storage collaborator.
type S3Options struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	CustomDomain    string `yaml:"custom_domain"`
	PathStyleAccess bool   `yaml:"path_style_access"`
}

// MLOptions configures the identification model.
type MLOptions struct {
	// ModelKey is the blob storage key of the model artifact loaded
	// lazily on first inference.
	ModelKey string `yaml:"model_key"`
}

// IsDev reports whether the app runs in development mode.
func (c *AppConfig) IsDev() bool { return c.Env != "production" }

// Load reads, normalizes and validates the YAML config at path.
// Secrets may also be supplied through the environment (JWT_SECRET,
// DEVICE_API_KEY, S3_ACCESS_KEY_ID, S3_SECRET_ACCESS_KEY) so that config
// files can be committed without credentials.
func Load(path string) (*AppConfig, error) {
	cfg := &AppConfig{}

	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		// Missing file is fine: defaults + environment.
	} else if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) normalize() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.Env == "" {
		c.Env = envOr("APP_ENV", defaultEnv)
	}
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))

	if c.DSN == "" {
		c.DSN = c.Database.DSN
	}
	if c.DSN == "" {
		c.DSN = buildDSN(c.Database)
	}
	c.DSN = ensureFoundRows(c.DSN)

	if c.RedisURL == "" {
		c.RedisURL = envOr("REDIS_URL", defaultRedisURL)
	}
	if c.JWTSecret == "" {
		c.JWTSecret = os.Getenv("JWT_SECRET")
	}
	if c.DeviceAPIKey == "" {
		c.DeviceAPIKey = os.Getenv("DEVICE_API_KEY")
	}
	if c.EmailDomain == "" {
		c.EmailDomain = defaultEmailDomain
	}
	if c.S3.AccessKeyID == "" {
		c.S3.AccessKeyID = os.Getenv("S3_ACCESS_KEY_ID")
	}
	if c.S3.SecretAccessKey == "" {
		c.S3.SecretAccessKey = os.Getenv("S3_SECRET_ACCESS_KEY")
	}
	if c.ML.ModelKey == "" {
		c.ML.ModelKey = defaultModelKey
	}
}

func (c *AppConfig) validate() error {
	if c.DeviceAPIKey == "" {
		return fmt.Errorf("device_api_key (or DEVICE_API_KEY) is required: device endpoints are authenticated by shared secret")
	}
	if !c.IsDev() && c.JWTSecret == "" {
		return fmt.Errorf("jwt_secret (or JWT_SECRET) is required in production")
	}
	return nil
}

func buildDSN(db DatabaseRuntimeConfig) string {
	host := valueOr(db.Host, defaultDBHost)
	port := db.Port
	if port == 0 {
		port = defaultDBPort
	}
	user := valueOr(db.User, defaultDBUser)
	password := valueOr(db.Password, defaultDBPassword)
	name := valueOr(db.Name, defaultDBName)
	charset := valueOr(db.Charset, defaultDBCharset)
	loc := valueOr(db.Loc, defaultDBLoc)

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=%s",
		user, password, host, port, name, charset, loc)
	for k, v := range db.Params {
		dsn += "&" + k + "=" + v
	}
	return dsn
}

// ensureFoundRows makes the driver report matched rows instead of
// changed rows. Conditional updates rely on RowsAffected to tell a won
// precondition from a lost one, and a no-op update (same values) must
// still count as a win.
func ensureFoundRows(dsn string) string {
	if strings.Contains(dsn, "clientFoundRows=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "clientFoundRows=true"
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
