package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tanq16/rangeget/internal/types"
	"github.com/tanq16/rangeget/internal/utils"
)

type Config struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
	Path string `mapstructure:"path" yaml:"path"`

	ChunkSize   string        `mapstructure:"chunk_size" yaml:"chunk_size"`
	Workers     int           `mapstructure:"workers" yaml:"workers"`
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	SHA256      string        `mapstructure:"sha256" yaml:"sha256"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	DialTimeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	Backoff     time.Duration `mapstructure:"backoff" yaml:"backoff"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`

	Output        string   `mapstructure:"output" yaml:"output"`
	UserAgent     string   `mapstructure:"user_agent" yaml:"user_agent"`
	Proxy         string   `mapstructure:"proxy" yaml:"proxy"`
	ProxyUsername string   `mapstructure:"proxy_username" yaml:"proxy_username"`
	ProxyPassword string   `mapstructure:"proxy_password" yaml:"proxy_password"`
	Headers       []string `mapstructure:"headers" yaml:"headers"`
	Parallel      int      `mapstructure:"parallel" yaml:"parallel"`
	Debug         bool     `mapstructure:"debug" yaml:"debug"`
}

// flagKeys maps command line flag names to config keys.
var flagKeys = map[string]string{
	"host":           "host",
	"port":           "port",
	"path":           "path",
	"chunk-size":     "chunk_size",
	"workers":        "workers",
	"max-attempts":   "max_attempts",
	"sha256":         "sha256",
	"timeout":        "timeout",
	"dial-timeout":   "dial_timeout",
	"backoff":        "backoff",
	"max-backoff":    "max_backoff",
	"output":         "output",
	"user-agent":     "user_agent",
	"proxy":          "proxy",
	"proxy-username": "proxy_username",
	"proxy-password": "proxy_password",
	"header":         "headers",
	"parallel":       "parallel",
	"debug":          "debug",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "127.0.0.1")
	v.SetDefault("port", 8080)
	v.SetDefault("path", "/")
	v.SetDefault("chunk_size", "64KiB")
	v.SetDefault("workers", types.DefaultWorkers)
	v.SetDefault("max_attempts", types.DefaultMaxAttempts)
	v.SetDefault("timeout", types.DefaultRequestTimeout)
	v.SetDefault("dial_timeout", types.DefaultDialTimeout)
	v.SetDefault("backoff", types.DefaultBackoff)
	v.SetDefault("max_backoff", types.DefaultMaxBackoff)
	v.SetDefault("sha256", "")
	v.SetDefault("output", "")
	v.SetDefault("user_agent", utils.ToolUserAgent)
	v.SetDefault("proxy", "")
	v.SetDefault("proxy_username", "")
	v.SetDefault("proxy_password", "")
	v.SetDefault("debug", false)
	v.SetDefault("headers", []string{})
	v.SetDefault("parallel", 1)
}

// Load layers defaults, the YAML file at path (optional), RANGEGET_* environment
// variables and any flags the user set, in increasing precedence.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("RANGEGET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("error binding flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error decoding configuration: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	size, err := utils.ParseSize(c.ChunkSize)
	if err != nil {
		return fmt.Errorf("chunk_size: %w", err)
	}
	if size <= 0 {
		return errors.New("chunk_size must be positive")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts cannot be negative, got %d (use 0 for unlimited)", c.MaxAttempts)
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.Backoff < 0 || c.MaxBackoff < 0 {
		return errors.New("backoff durations cannot be negative")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.SHA256 != "" {
		digest := strings.TrimSpace(c.SHA256)
		if len(digest) != 64 || strings.Trim(strings.ToLower(digest), "0123456789abcdef") != "" {
			return fmt.Errorf("sha256 must be 64 hex characters, got %q", c.SHA256)
		}
	}
	if c.Parallel <= 0 {
		c.Parallel = 1
	}
	return nil
}

// SourceURL is the URL given on the command line, or one built from host,
// port and path.
func (c *Config) SourceURL(arg string) (string, error) {
	if arg == "" {
		return utils.SourceURL(c.Host, c.Port, c.Path), nil
	}
	parsed, err := url.Parse(arg)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", fmt.Errorf("invalid URL %q", arg)
	}
	return arg, nil
}

// DownloadConfig resolves the session settings for one source URL.
func (c *Config) DownloadConfig(sourceURL, sha string) types.DownloadConfig {
	size, _ := utils.ParseSize(c.ChunkSize)
	userAgent := c.UserAgent
	if userAgent == "randomize" {
		userAgent = utils.GetRandomUserAgent()
	}
	proxyURL, proxyUser, proxyPass := c.Proxy, c.ProxyUsername, c.ProxyPassword
	if parsed, err := url.Parse(proxyURL); err == nil && parsed.User != nil && proxyUser == "" {
		proxyUser = parsed.User.Username()
		if password, set := parsed.User.Password(); set {
			proxyPass = password
		}
		parsed.User = nil
		proxyURL = parsed.String()
	}
	if sha == "" {
		sha = c.SHA256
	}
	return types.DownloadConfig{
		URL:            sourceURL,
		MaxChunkSize:   size,
		Workers:        c.Workers,
		MaxAttempts:    c.MaxAttempts,
		ExpectedSHA256: sha,
		RequestTimeout: c.Timeout,
		Backoff:        c.Backoff,
		MaxBackoff:     c.MaxBackoff,
		HTTPClientConfig: types.HTTPClientConfig{
			Timeout:       c.DialTimeout,
			ProxyURL:      proxyURL,
			ProxyUsername: proxyUser,
			ProxyPassword: proxyPass,
			UserAgent:     userAgent,
			Headers:       utils.ParseHeaderArgs(c.Headers),
		},
	}
}
