package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MinSecretLength is the shortest SESSION_SECRET_KEY accepted.
const MinSecretLength = 16

// Config holds everything the server needs. It is built once at startup
// and passed down explicitly.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`

	// Bucket is the Cloud Storage bucket clips are written to.
	Bucket string `yaml:"bucket"`
	// LocalDir, when set, stores clips on disk instead of in Bucket.
	LocalDir string `yaml:"local_dir"`

	SessionSecret string `yaml:"session_secret"`
	SecureCookies bool   `yaml:"secure_cookies"`

	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	TLSSelfSigned bool `yaml:"tls_self_signed"`

	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// Words maps each prompt word to the number of clips wanted for it.
	Words []WordQuota `yaml:"words"`

	Log LogConfig `yaml:"log"`
}

type WordQuota struct {
	Word  string `yaml:"word" json:"word"`
	Count int    `yaml:"count" json:"count"`
}

type LogConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	Development bool   `yaml:"development"`
}

// DefaultWords is the prompt list: twenty command words five times each,
// ten filler words once.
func DefaultWords() []WordQuota {
	var words []WordQuota
	for _, w := range []string{
		"Zero", "One", "Two", "Three", "Four", "Five", "Six", "Seven", "Eight", "Nine",
		"On", "Off", "Stop", "Go", "Up", "Down", "Left", "Right", "Yes", "No",
	} {
		words = append(words, WordQuota{Word: w, Count: 5})
	}
	for _, w := range []string{"Dog", "Cat", "Bird", "Tree", "Marvin", "Sheila", "House", "Bed", "Wow", "Happy"} {
		words = append(words, WordQuota{Word: w, Count: 1})
	}
	return words
}

func DefaultConfig() *Config {
	return &Config{
		ListenAddr:     ":8080",
		MaxUploadBytes: 10 << 20,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		Words:          DefaultWords(),
		Log:            LogConfig{Level: "info"},
	}
}

// Load reads the YAML file at path, if any, then applies environment
// overrides. A missing file yields defaults. Call Validate before use.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("CLOUD_STORAGE_BUCKET"); v != "" {
		c.Bucket = v
	}
	if v := os.Getenv("SESSION_SECRET_KEY"); v != "" {
		c.SessionSecret = v
	}
	if v := os.Getenv("LOCAL_STORAGE_DIR"); v != "" {
		c.LocalDir = v
	}
	// PORT is what most PaaS runtimes hand us.
	if v := os.Getenv("PORT"); v != "" {
		c.ListenAddr = ":" + v
	}
	if v := os.Getenv("SECURE_COOKIES"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SECURE_COOKIES: %w", err)
		}
		c.SecureCookies = b
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	return nil
}

// Validate reports every missing or malformed setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.SessionSecret == "" {
		errs = append(errs, errors.New("SESSION_SECRET_KEY is not set"))
	} else if len(c.SessionSecret) < MinSecretLength {
		errs = append(errs, fmt.Errorf("SESSION_SECRET_KEY must be at least %d bytes", MinSecretLength))
	}
	if c.Bucket == "" && c.LocalDir == "" {
		errs = append(errs, errors.New("CLOUD_STORAGE_BUCKET is not set (or set LOCAL_STORAGE_DIR)"))
	}
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen address is empty"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("max_upload_bytes must be positive"))
	}
	for _, w := range c.Words {
		if w.Word == "" || w.Count <= 0 {
			errs = append(errs, fmt.Errorf("invalid word quota %+v", w))
		}
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Log.Level))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
