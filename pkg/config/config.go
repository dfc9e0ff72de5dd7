package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Duration wraps time.Duration so YAML values can be written either as Go
// duration strings ("15m", "2h") or as integral milliseconds.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %v", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}
	var ms int64
	if err := unmarshal(&ms); err != nil {
		return fmt.Errorf("duration must be a string or integral milliseconds")
	}
	*d = Duration(time.Duration(ms) * time.Millisecond)
	return nil
}

// Server holds the HTTP listener configuration.
type Server struct {
	ListenAddress  string   `yaml:"listenAddress"`
	TLSCertFile    string   `yaml:"tlsCertFile"`
	TLSKeyFile     string   `yaml:"tlsKeyFile"`
	TrustedProxies []string `yaml:"trustedProxies"` // IPs/CIDRs to trust for X-Forwarded-For headers
	FrontendDir    string   `yaml:"frontendDir"`
}

// Auth holds token issuance and verification settings. The service is its own
// token issuer; Secret signs and verifies every credential it accepts.
type Auth struct {
	Secret   string   `yaml:"secret"`
	Issuer   string   `yaml:"issuer"`
	Audience string   `yaml:"audience"`
	TokenTTL Duration `yaml:"tokenTTL"`
}

// RateLimit configures the fixed-window per-IP limiter.
type RateLimit struct {
	Window  Duration `yaml:"window"`
	AuthMax int      `yaml:"authMax"` // register/login endpoints
	APIMax  int      `yaml:"apiMax"`  // everything else under /api
}

// Throttle configures the per-account credential failure throttle.
type Throttle struct {
	Window      Duration `yaml:"window"`
	MaxFailures int      `yaml:"maxFailures"`
}

// Flash configures the external build tool and sketch resolution.
type Flash struct {
	CLIPath           string   `yaml:"cliPath"`
	SketchRoot        string   `yaml:"sketchRoot"`
	AllowedExtensions []string `yaml:"allowedExtensions"`
	Timeout           Duration `yaml:"timeout"`
	MaxOutputBytes    int      `yaml:"maxOutputBytes"`
}

// Weather configures the outbound forecast/geocoding proxy.
type Weather struct {
	ForecastBaseURL string   `yaml:"forecastBaseURL"`
	GeocodeBaseURL  string   `yaml:"geocodeBaseURL"`
	Timeout         Duration `yaml:"timeout"`
	UpstreamRate    float64  `yaml:"upstreamRate"` // requests per second towards the upstream API
	UpstreamBurst   int      `yaml:"upstreamBurst"`
}

// Users selects the user repository backend.
type Users struct {
	Store    string `yaml:"store"` // "memory" or "bolt"
	BoltPath string `yaml:"boltPath"`
}

type Config struct {
	Server    Server    `yaml:"server"`
	Auth      Auth      `yaml:"auth"`
	RateLimit RateLimit `yaml:"rateLimit"`
	Throttle  Throttle  `yaml:"throttle"`
	Flash     Flash     `yaml:"flash"`
	Weather   Weather   `yaml:"weather"`
	Users     Users     `yaml:"users"`
}

// Load loads the flashgate configuration from a file path.
// If configPath is empty, defaults to "./config.yaml". The path can also be
// overridden via the FLASHGATE_CONFIG_PATH environment variable. Individual
// fields can then be overridden through FLASHGATE_* environment variables.
func Load(configPath ...string) (Config, error) {
	var path string

	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	} else if env := os.Getenv("FLASHGATE_CONFIG_PATH"); env != "" {
		path = env
	} else {
		path = "./config.yaml"
	}

	var config Config

	content, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("trying to open flashgate config file %s: %v", path, err)
	}

	err = yaml.Unmarshal(content, &config)
	if err != nil {
		return config, fmt.Errorf("error unmarshaling YAML %s: %v", path, err)
	}
	config.applyEnv()
	return config, nil
}

// Defaults fills zero values with the defaults the service ships with.
func (c *Config) Defaults() {
	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = ":8080"
	}
	if c.Server.FrontendDir == "" {
		c.Server.FrontendDir = "./frontend/dist/"
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "flashgate"
	}
	if c.Auth.Audience == "" {
		c.Auth.Audience = "flashgate-api"
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = Duration(24 * time.Hour)
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = Duration(15 * time.Minute)
	}
	if c.RateLimit.AuthMax == 0 {
		c.RateLimit.AuthMax = 10
	}
	if c.RateLimit.APIMax == 0 {
		c.RateLimit.APIMax = 500
	}
	if c.Throttle.Window == 0 {
		c.Throttle.Window = Duration(10 * time.Minute)
	}
	if c.Throttle.MaxFailures == 0 {
		c.Throttle.MaxFailures = 5
	}
	if c.Flash.CLIPath == "" {
		c.Flash.CLIPath = "arduino-cli"
	}
	if c.Flash.SketchRoot == "" {
		c.Flash.SketchRoot = "./sketches"
	}
	if len(c.Flash.AllowedExtensions) == 0 {
		c.Flash.AllowedExtensions = []string{".ino", ".hex", ".bin"}
	}
	if c.Flash.Timeout == 0 {
		c.Flash.Timeout = Duration(120 * time.Second)
	}
	if c.Flash.MaxOutputBytes == 0 {
		c.Flash.MaxOutputBytes = 64 * 1024
	}
	if c.Weather.ForecastBaseURL == "" {
		c.Weather.ForecastBaseURL = "https://api.open-meteo.com/v1"
	}
	if c.Weather.GeocodeBaseURL == "" {
		c.Weather.GeocodeBaseURL = "https://geocoding-api.open-meteo.com/v1"
	}
	if c.Weather.Timeout == 0 {
		c.Weather.Timeout = Duration(10 * time.Second)
	}
	if c.Weather.UpstreamRate == 0 {
		c.Weather.UpstreamRate = 5
	}
	if c.Weather.UpstreamBurst == 0 {
		c.Weather.UpstreamBurst = 10
	}
	if c.Users.Store == "" {
		c.Users.Store = "memory"
	}
	if c.Users.BoltPath == "" {
		c.Users.BoltPath = "./flashgate.db"
	}
}

// Validate rejects configurations that must not reach production.
func (c *Config) Validate(debug bool) error {
	if c.Auth.Secret == "" && !debug {
		return fmt.Errorf("auth.secret must be set (or FLASHGATE_AUTH_SECRET exported)")
	}
	switch c.Users.Store {
	case "", "memory", "bolt":
	default:
		return fmt.Errorf("users.store must be \"memory\" or \"bolt\", got %q", c.Users.Store)
	}
	return nil
}

// applyEnv maps FLASHGATE_* environment variables onto config fields so the
// core knobs can be tuned without editing the YAML file.
func (c *Config) applyEnv() {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setDurationMS := func(key string, dst *Duration) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = Duration(time.Duration(n) * time.Millisecond)
			}
		}
	}

	setString("FLASHGATE_AUTH_SECRET", &c.Auth.Secret)
	setDurationMS("FLASHGATE_RATELIMIT_WINDOW_MS", &c.RateLimit.Window)
	setInt("FLASHGATE_RATELIMIT_AUTH_MAX", &c.RateLimit.AuthMax)
	setInt("FLASHGATE_RATELIMIT_API_MAX", &c.RateLimit.APIMax)
	setDurationMS("FLASHGATE_THROTTLE_WINDOW_MS", &c.Throttle.Window)
	setInt("FLASHGATE_THROTTLE_MAX_FAILURES", &c.Throttle.MaxFailures)
	setString("FLASHGATE_CLI_PATH", &c.Flash.CLIPath)
	setString("FLASHGATE_SKETCH_ROOT", &c.Flash.SketchRoot)
	setDurationMS("FLASHGATE_FLASH_TIMEOUT_MS", &c.Flash.Timeout)
	setInt("FLASHGATE_FLASH_MAX_OUTPUT_BYTES", &c.Flash.MaxOutputBytes)
	if v := os.Getenv("FLASHGATE_SKETCH_EXTENSIONS"); v != "" {
		parts := strings.Split(v, ",")
		exts := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if !strings.HasPrefix(p, ".") {
				p = "." + p
			}
			exts = append(exts, p)
		}
		if len(exts) > 0 {
			c.Flash.AllowedExtensions = exts
		}
	}
}
