package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// SSH holds the settings for the remote privileged execution channel.
// All fields are optional; commands that need the channel validate them
// explicitly via ValidateSSH.
type SSH struct {
	Host      string `yaml:"host"       mapstructure:"host"`
	User      string `yaml:"user"       mapstructure:"user"`
	KeyPath   string `yaml:"key_path"   mapstructure:"key_path"`
	WorkDir   string `yaml:"work_dir"   mapstructure:"work_dir"`
	FieldsCmd string `yaml:"fields_cmd" mapstructure:"fields_cmd"`
	DatesCmd  string `yaml:"dates_cmd"  mapstructure:"dates_cmd"`
}

// Config holds connection settings for both systems plus local state paths.
type Config struct {
	KaitenURL        string   `yaml:"kaiten_url"         mapstructure:"kaiten_url"`
	KaitenToken      string   `yaml:"kaiten_token"       mapstructure:"kaiten_token"`
	BitrixWebhookURL string   `yaml:"bitrix_webhook_url" mapstructure:"bitrix_webhook_url"`
	MappingsDir      string   `yaml:"mappings_dir"       mapstructure:"mappings_dir"`
	ExcludedSpaces   []string `yaml:"excluded_spaces"    mapstructure:"excluded_spaces"`
	SSH              SSH      `yaml:"ssh"                mapstructure:"ssh"`
}

// DefaultPath returns the default config file path (~/.kaiten-to-bitrix.yaml).
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kaiten-to-bitrix.yaml"
	}
	return filepath.Join(home, ".kaiten-to-bitrix.yaml")
}

// Load reads config from the YAML file and applies env var overrides.
// configPath may be empty to use the default path.
func Load(configPath string) (Config, error) {
	v := viper.New()

	if configPath == "" {
		configPath = DefaultPath()
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// Env var overrides
	v.BindEnv("kaiten_url", "KAITEN_URL")
	v.BindEnv("kaiten_token", "KAITEN_TOKEN")
	v.BindEnv("bitrix_webhook_url", "BITRIX_WEBHOOK_URL")
	v.BindEnv("mappings_dir", "MAPPINGS_DIR")
	v.BindEnv("ssh.host", "SSH_HOST")
	v.BindEnv("ssh.user", "SSH_USER")
	v.BindEnv("ssh.key_path", "SSH_KEY_PATH")

	v.SetDefault("mappings_dir", "mappings")
	v.SetDefault("ssh.user", "root")
	v.SetDefault("ssh.work_dir", "/root/kaiten-to-bitrix")

	// Read the config file (ignore "not found" errors so env vars still work)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Only ignore file-not-found; other errors (e.g. parse) are real
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required fields are present.
func (c Config) Validate() error {
	if c.KaitenURL == "" {
		return fmt.Errorf("Kaiten URL is required (set in config file or KAITEN_URL env var)")
	}
	if c.KaitenToken == "" {
		return fmt.Errorf("Kaiten API token is required (set in config file or KAITEN_TOKEN env var)")
	}
	if c.BitrixWebhookURL == "" {
		return fmt.Errorf("Bitrix24 webhook URL is required (set in config file or BITRIX_WEBHOOK_URL env var)")
	}
	return nil
}

// ValidateSSH checks the fields required by the remote execution channel.
func (c Config) ValidateSSH() error {
	if c.SSH.Host == "" {
		return fmt.Errorf("SSH host is required (set ssh.host in config file or SSH_HOST env var)")
	}
	if c.SSH.KeyPath == "" {
		return fmt.Errorf("SSH key path is required (set ssh.key_path in config file or SSH_KEY_PATH env var)")
	}
	return nil
}

// SSHConfigured reports whether the remote channel can be used at all.
func (c Config) SSHConfigured() bool {
	return c.SSH.Host != "" && c.SSH.KeyPath != ""
}

// Save writes the config to the given path (or default path if empty).
func Save(cfg Config, configPath string) error {
	if configPath == "" {
		configPath = DefaultPath()
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
