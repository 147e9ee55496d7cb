// Package config resolves tracker configuration from the environment and
// from the shared ~/.agentsea/config.yaml file.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Environment variable names read by the tracker.
const (
	EnvEncryptionKey = "ENCRYPTION_KEY"
	EnvHubAPIKey     = "HUB_API_KEY"
	EnvRedisStorage  = "REDIS_CACHE_STORAGE"
	EnvDBName        = "TASKS_DB_NAME"
	EnvDBURL         = "TASKS_DB_URL"
	EnvDBHost        = "TASKS_DB_HOST"
	EnvDBUser        = "TASKS_DB_USER"
	EnvDBPass        = "TASKS_DB_PASS"
	EnvServerPort    = "TASK_SERVER_PORT"
	EnvServerNoAuth  = "TASK_SERVER_NO_AUTH"
	EnvHubAuthURL    = "AGENTSEA_AUTH_URL"
)

// Config carries the resolved server configuration.
type Config struct {
	Port     int
	NoAuth   bool
	DBURL    string
	DBName   string
	RedisURL string
	AuthURL  string
}

// Load reads configuration from the environment with defaults.
func Load() Config {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault(EnvServerPort, 9070)
	v.SetDefault(EnvDBName, "tasks")
	v.SetDefault(EnvDBHost, "localhost:5432")
	v.SetDefault(EnvDBUser, "postgres")
	v.SetDefault(EnvDBPass, "postgres")
	v.SetDefault(EnvHubAuthURL, "https://auth.hub.agentsea.ai")

	cfg := Config{
		Port:     v.GetInt(EnvServerPort),
		NoAuth:   v.GetBool(EnvServerNoAuth),
		DBURL:    v.GetString(EnvDBURL),
		DBName:   v.GetString(EnvDBName),
		RedisURL: v.GetString(EnvRedisStorage),
		AuthURL:  strings.TrimRight(v.GetString(EnvHubAuthURL), "/"),
	}
	if cfg.DBURL == "" {
		cfg.DBURL = fmt.Sprintf("postgres://%s:%s@%s/%s",
			url.QueryEscape(v.GetString(EnvDBUser)),
			url.QueryEscape(v.GetString(EnvDBPass)),
			v.GetString(EnvDBHost), cfg.DBName)
	}
	return cfg
}

// GlobalConfig mirrors the shared agentsea config file. The API key is the
// fallback credential for remote tracker calls.
type GlobalConfig struct {
	APIKey     string `yaml:"api_key"`
	HubAddress string `yaml:"hub_address"`
}

func globalConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".agentsea", "config.yaml"), nil
}

// ReadGlobalConfig loads ~/.agentsea/config.yaml, returning an empty config
// when the file does not exist.
func ReadGlobalConfig() GlobalConfig {
	var cfg GlobalConfig
	path, err := globalConfigPath()
	if err != nil {
		return cfg
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}
	_ = yaml.Unmarshal(data, &cfg)
	return cfg
}

// Write persists the global config file, creating the directory as needed.
func (c GlobalConfig) Write() error {
	path, err := globalConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// RemoteAuthToken resolves the bearer token used for remote tracker calls
// when the task itself carries none: HUB_API_KEY first, then the global
// config file.
func RemoteAuthToken() string {
	if key := os.Getenv(EnvHubAPIKey); key != "" {
		return key
	}
	return ReadGlobalConfig().APIKey
}
