package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
	"github.com/slighter12/go-lib/database/postgres"
)

const (
	defaultPath               = "."
	defaultMaxRequestBodySize = "100KB"
	defaultBasePath           = "/api/auth"
	defaultServiceName        = "auth-service"

	defaultTokenTTL    = 24 * time.Hour
	defaultTokenIssuer = "rssauth"

	defaultHashAlgorithm   = "bcrypt"
	defaultBcryptCost      = 10
	defaultArgon2Memory    = 64 * 1024
	defaultArgon2Time      = 3
	defaultArgon2Threads   = 1
	defaultArgon2SaltLen   = 16
	defaultArgon2KeyLen    = 32
	defaultStoreDriver     = "postgres"
	defaultStoreQueryLimit = 5 * time.Second
)

// Store drivers understood by the persistence layer.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	Env struct {
		Env         string `json:"env" yaml:"env"`
		ServiceName string `json:"serviceName" yaml:"serviceName"`
		Debug       bool   `json:"debug" yaml:"debug"`
		Log         Log    `json:"log" yaml:"log"`
	} `json:"env" yaml:"env"`

	HTTP struct {
		Port int `json:"port" yaml:"port"`
		// BasePath is the prefix the auth routes are mounted under; /health and /metrics stay at the root.
		BasePath           string `json:"basePath" yaml:"basePath"`
		MaxRequestBodySize string `json:"maxRequestBodySize" yaml:"maxRequestBodySize"`
		Timeouts           struct {
			ReadTimeout       time.Duration `json:"readTimeout" yaml:"readTimeout"`
			ReadHeaderTimeout time.Duration `json:"readHeaderTimeout" yaml:"readHeaderTimeout"`
			WriteTimeout      time.Duration `json:"writeTimeout" yaml:"writeTimeout"`
			IdleTimeout       time.Duration `json:"idleTimeout" yaml:"idleTimeout"`
		} `json:"timeouts" yaml:"timeouts"`
	} `json:"http" yaml:"http"`

	Store *StoreConfig `json:"store" yaml:"store"`

	Postgres *postgres.DBConn `json:"postgres" yaml:"postgres" mapstructure:"postgres"`

	Auth *AuthConfig `json:"auth" yaml:"auth"`

	Metrics *MetricsConfig `json:"metrics" yaml:"metrics"`
}

// StoreConfig selects and tunes the credential store.
type StoreConfig struct {
	// Driver is "postgres" or "memory".
	Driver string `json:"driver" yaml:"driver"`

	// QueryTimeout bounds every single store call.
	QueryTimeout time.Duration `json:"queryTimeout" yaml:"queryTimeout"`

	// AutoMigrate runs the embedded goose migrations when the service starts.
	AutoMigrate bool `json:"autoMigrate" yaml:"autoMigrate"`
}

// AuthConfig defines authentication-related configuration
type AuthConfig struct {
	Token  TokenConfig  `json:"token" yaml:"token"`
	Hasher HasherConfig `json:"hasher" yaml:"hasher"`

	// EqualizeLoginTiming runs a dummy hash comparison when the username is unknown.
	EqualizeLoginTiming *bool `json:"equalizeLoginTiming" yaml:"equalizeLoginTiming"`
}

// TokenConfig holds the signing key and validity window for issued tokens.
type TokenConfig struct {
	SigningKey string        `json:"signingKey" yaml:"signingKey"`
	TTL        time.Duration `json:"ttl" yaml:"ttl"`
	Issuer     string        `json:"issuer" yaml:"issuer"`
}

// HasherConfig selects the password hashing algorithm and its work factor.
type HasherConfig struct {
	Algorithm  string       `json:"algorithm" yaml:"algorithm"`
	BcryptCost int          `json:"bcryptCost" yaml:"bcryptCost"`
	Argon2     Argon2Config `json:"argon2" yaml:"argon2"`
}

// Argon2Config holds argon2id parameters. Memory is in KiB.
type Argon2Config struct {
	Memory  uint32 `json:"memory" yaml:"memory"`
	Time    uint32 `json:"time" yaml:"time"`
	Threads uint8  `json:"threads" yaml:"threads"`
	SaltLen int    `json:"saltLen" yaml:"saltLen"`
	KeyLen  uint32 `json:"keyLen" yaml:"keyLen"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

type Log struct {
	Pretty bool   `json:"pretty" yaml:"pretty"`
	Level  string `json:"level" yaml:"level"`
}

// ShouldEqualizeLoginTiming reports whether unknown-user logins pay the cost of a hash comparison.
func (a *AuthConfig) ShouldEqualizeLoginTiming() bool {
	if a == nil || a.EqualizeLoginTiming == nil {
		return true
	}

	return *a.EqualizeLoginTiming
}

// LoadWithEnv loads .yaml files through koanf.
func LoadWithEnv[T any](currEnv string, configPath ...string) (*T, error) {
	cfg := new(T)
	koanfInstance := koanf.New(".")

	// Explicit paths win over the working directory.
	searchPaths := make([]string, 0, len(configPath)+1)
	if len(configPath) != 0 {
		pwd, err := os.Getwd()
		if err != nil {
			return nil, errors.Wrap(err, "os.Getwd")
		}
		for _, path := range configPath {
			if filepath.IsAbs(path) {
				searchPaths = append(searchPaths, path)

				continue
			}
			searchPaths = append(searchPaths, filepath.Join(pwd, path))
		}
	}
	searchPaths = append(searchPaths, defaultPath)

	var configFile string
	for _, path := range searchPaths {
		candidate := filepath.Join(path, currEnv+".yaml")
		if _, err := os.Stat(candidate); err == nil {
			configFile = candidate

			break
		}
	}

	if configFile == "" {
		return nil, errors.Errorf("config file %s.yaml not found in any search path", currEnv)
	}

	if err := koanfInstance.Load(file.Provider(configFile), yaml.Parser()); err != nil {
		return nil, errors.Wrapf(err, "read %s config failed", currEnv)
	}

	existingConfigMap := koanfInstance.Raw()

	// ENV_VAR_NAME is aligned segment by segment with the YAML keys,
	// e.g. AUTH_TOKEN_SIGNINGKEY -> auth.token.signingKey.
	if err := koanfInstance.Load(env.Provider(".", env.Opt{
		TransformFunc: func(k, v string) (string, any) {
			return canonicalizeEnvKey(k, existingConfigMap), v
		},
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load env variables failed")
	}

	if err := koanfInstance.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
			MatchName: func(mapKey, fieldName string) bool {
				return strings.EqualFold(mapKey, fieldName)
			},
		},
	}); err != nil {
		return nil, errors.Wrapf(err, "unmarshal %s config failed", currEnv)
	}

	return cfg, nil
}

// New loads config.yaml from the usual locations, or from the directory named by RSSAUTH_CONFIG_DIR.
func New() (*Config, error) {
	paths := []string{"config", "../config", "../../config"}
	if dir := os.Getenv("RSSAUTH_CONFIG_DIR"); dir != "" {
		paths = append([]string{dir}, paths...)
	}

	cfg, err := LoadWithEnv[Config]("config", paths...)
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	if cfg.Postgres != nil {
		// POSTGRES_REPLICAS_0_HOST, POSTGRES_REPLICAS_0_PORT, ...
		cfg.Postgres.Replicas = buildReplicasFromEnv()
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.HTTP.MaxRequestBodySize) == "" {
		cfg.HTTP.MaxRequestBodySize = defaultMaxRequestBodySize
	}
	if strings.TrimSpace(cfg.HTTP.BasePath) == "" {
		cfg.HTTP.BasePath = defaultBasePath
	}
	if cfg.Env.ServiceName == "" {
		cfg.Env.ServiceName = defaultServiceName
	}

	if cfg.Store == nil {
		cfg.Store = &StoreConfig{}
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = defaultStoreDriver
	}
	if cfg.Store.QueryTimeout <= 0 {
		cfg.Store.QueryTimeout = defaultStoreQueryLimit
	}

	if cfg.Auth == nil {
		cfg.Auth = &AuthConfig{}
	}
	if cfg.Auth.Token.TTL <= 0 {
		cfg.Auth.Token.TTL = defaultTokenTTL
	}
	if cfg.Auth.Token.Issuer == "" {
		cfg.Auth.Token.Issuer = defaultTokenIssuer
	}

	hasher := &cfg.Auth.Hasher
	if hasher.Algorithm == "" {
		hasher.Algorithm = defaultHashAlgorithm
	}
	if hasher.BcryptCost == 0 {
		hasher.BcryptCost = defaultBcryptCost
	}
	if hasher.Argon2.Memory == 0 {
		hasher.Argon2.Memory = defaultArgon2Memory
	}
	if hasher.Argon2.Time == 0 {
		hasher.Argon2.Time = defaultArgon2Time
	}
	if hasher.Argon2.Threads == 0 {
		hasher.Argon2.Threads = defaultArgon2Threads
	}
	if hasher.Argon2.SaltLen == 0 {
		hasher.Argon2.SaltLen = defaultArgon2SaltLen
	}
	if hasher.Argon2.KeyLen == 0 {
		hasher.Argon2.KeyLen = defaultArgon2KeyLen
	}

	if cfg.Metrics == nil {
		cfg.Metrics = &MetricsConfig{Enabled: true}
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func canonicalizeEnvKey(rawKey string, existing map[string]any) string {
	segments := strings.Split(strings.ToLower(rawKey), "_")
	canonical := make([]string, 0, len(segments))
	current := existing

	for _, segment := range segments {
		if segment == "" {
			continue
		}

		if matched, next, ok := findExistingSegment(current, segment); ok {
			canonical = append(canonical, matched)
			current = next
		} else {
			canonical = append(canonical, segment)
			current = nil
		}
	}

	return strings.Join(canonical, ".")
}

func findExistingSegment(current map[string]any, segment string) (matched string, next map[string]any, ok bool) {
	if len(current) == 0 {
		return "", nil, false
	}

	needle := normalizeToken(segment)
	for key, value := range current {
		if normalizeToken(key) != needle {
			continue
		}

		child, _ := value.(map[string]any)

		return key, child, true
	}

	return "", nil, false
}

func normalizeToken(s string) string {
	var normalized strings.Builder
	normalized.Grow(len(s))

	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		normalized.WriteRune(unicode.ToLower(r))
	}

	return normalized.String()
}

// buildReplicasFromEnv reads POSTGRES_REPLICAS_{index}_{HOST,PORT,USERNAME,PASSWORD}
// until the first index without a host or port.
func buildReplicasFromEnv() []postgres.ConnectionConfig {
	var replicas []postgres.ConnectionConfig

	for i := 0; ; i++ {
		prefix := "POSTGRES_REPLICAS_" + strconv.Itoa(i) + "_"

		host := os.Getenv(prefix + "HOST")
		port := os.Getenv(prefix + "PORT")
		if host == "" || port == "" {
			break
		}

		replicas = append(replicas, postgres.ConnectionConfig{
			Host:     host,
			Port:     port,
			UserName: os.Getenv(prefix + "USERNAME"),
			Password: os.Getenv(prefix + "PASSWORD"),
		})
	}

	return replicas
}
