package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
	Contact ContactConfig `mapstructure:"contact" yaml:"contact"`
	Captcha CaptchaConfig `mapstructure:"captcha" yaml:"captcha"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Journal JournalConfig `mapstructure:"journal" yaml:"journal"`
	Profile ProfileConfig `mapstructure:"profile" yaml:"profile"`
	Hunter  HunterConfig  `mapstructure:"hunter" yaml:"hunter"`
}

// LoggerConfig controls the zap logger setup.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig maps log levels to terminal colors for the console encoder.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig controls the chromedp allocator and tab lifecycle.
type BrowserConfig struct {
	Headless bool     `mapstructure:"headless" yaml:"headless"`
	Args     []string `mapstructure:"args" yaml:"args"`
	// Window size is drawn per run from these bounds so sessions do not share
	// a fixed, fingerprintable viewport.
	WindowMinWidth  int `mapstructure:"window_min_width" yaml:"window_min_width"`
	WindowMaxWidth  int `mapstructure:"window_max_width" yaml:"window_max_width"`
	WindowMinHeight int `mapstructure:"window_min_height" yaml:"window_min_height"`
	WindowMaxHeight int `mapstructure:"window_max_height" yaml:"window_max_height"`
	// A platform session is recycled once either ceiling is exceeded.
	RestartAfterActions int           `mapstructure:"restart_after_actions" yaml:"restart_after_actions"`
	RestartAfterAge     time.Duration `mapstructure:"restart_after_age" yaml:"restart_after_age"`
	NavigationTimeout   time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	Humanoid            HumanoidConfig `mapstructure:"humanoid" yaml:"humanoid"`
	Stealth             StealthConfig  `mapstructure:"stealth" yaml:"stealth"`
}

// HumanoidConfig exposes the coarse behavioral knobs of the input simulation.
// The fine-grained physics parameters live with the simulation itself; these
// are the values operators actually tune.
type HumanoidConfig struct {
	Enabled                bool    `mapstructure:"enabled" yaml:"enabled"`
	TypoRate               float64 `mapstructure:"typo_rate" yaml:"typo_rate"`
	DistractionProbability float64 `mapstructure:"distraction_probability" yaml:"distraction_probability"`
	KeyPauseMeanMs         float64 `mapstructure:"key_pause_mean_ms" yaml:"key_pause_mean_ms"`
	ClickHoldMinMs         int     `mapstructure:"click_hold_min_ms" yaml:"click_hold_min_ms"`
	ClickHoldMaxMs         int     `mapstructure:"click_hold_max_ms" yaml:"click_hold_max_ms"`
}

// StealthConfig overrides the default browser persona.
type StealthConfig struct {
	UserAgent string   `mapstructure:"user_agent" yaml:"user_agent"`
	Platform  string   `mapstructure:"platform" yaml:"platform"`
	Locale    string   `mapstructure:"locale" yaml:"locale"`
	Timezone  string   `mapstructure:"timezone" yaml:"timezone"`
	Languages []string `mapstructure:"languages" yaml:"languages"`
}

// SessionConfig controls cookie persistence and login detection.
type SessionConfig struct {
	// DataDir holds cookie snapshots, the ledger database, snapshots and the
	// attempt journal. Tilde paths are expanded.
	DataDir            string        `mapstructure:"data_dir" yaml:"data_dir"`
	ValidateInterval   time.Duration `mapstructure:"validate_interval" yaml:"validate_interval"`
	ProbeTimeout       time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`
	ManualLoginTimeout time.Duration `mapstructure:"manual_login_timeout" yaml:"manual_login_timeout"`
	ManualLoginPoll    time.Duration `mapstructure:"manual_login_poll" yaml:"manual_login_poll"`
}

// ContactConfig carries the timing envelope of the form state machine.
type ContactConfig struct {
	// Hydration debounce: proceed once the form region has been quiet for
	// StabilizeSettle, but never wait longer than StabilizeCeiling.
	StabilizeSettle  time.Duration `mapstructure:"stabilize_settle" yaml:"stabilize_settle"`
	StabilizeCeiling time.Duration `mapstructure:"stabilize_ceiling" yaml:"stabilize_ceiling"`
	// Re-observation delay catching a framework revert after enforcement.
	PersistCheckDelay  time.Duration `mapstructure:"persist_check_delay" yaml:"persist_check_delay"`
	EnforceMaxAttempts int           `mapstructure:"enforce_max_attempts" yaml:"enforce_max_attempts"`
	EnforceBackoffBase time.Duration `mapstructure:"enforce_backoff_base" yaml:"enforce_backoff_base"`
	ShuffleStrategies  bool          `mapstructure:"shuffle_strategies" yaml:"shuffle_strategies"`
	VerifyTimeout      time.Duration `mapstructure:"verify_timeout" yaml:"verify_timeout"`
	VerifyPoll         time.Duration `mapstructure:"verify_poll" yaml:"verify_poll"`
	SnapshotDir        string        `mapstructure:"snapshot_dir" yaml:"snapshot_dir"`
	DryRun             bool          `mapstructure:"dry_run" yaml:"dry_run"`
}

// CaptchaConfig controls the challenge pause/resume protocol.
type CaptchaConfig struct {
	// Mode selects how a detected challenge resolves: "manual" polls for the
	// challenge element to disappear, "external" asks the configured solver.
	Mode         string        `mapstructure:"mode" yaml:"mode"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// StorageConfig selects and configures the contact ledger backend.
type StorageConfig struct {
	// Driver is "sqlite" (default, single machine) or "postgres" (shared).
	Driver      string `mapstructure:"driver" yaml:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	PostgresURL string `mapstructure:"postgres_url" yaml:"postgres_url"`
}

// JournalConfig controls the append-only attempt journal.
type JournalConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// ProfileConfig is the applicant profile used to populate contact forms.
type ProfileConfig struct {
	FirstName  string `mapstructure:"first_name" yaml:"first_name"`
	LastName   string `mapstructure:"last_name" yaml:"last_name"`
	Email      string `mapstructure:"email" yaml:"email"`
	Phone      string `mapstructure:"phone" yaml:"phone"`
	Salutation string `mapstructure:"salutation" yaml:"salutation"`
	// Message supports {field} placeholders expanded from listing metadata.
	Message string `mapstructure:"message" yaml:"message"`
}

// HunterConfig bounds the multi-listing runner.
type HunterConfig struct {
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
	// AttemptsPerMinute feeds the per-platform politeness limiter.
	AttemptsPerMinute float64 `mapstructure:"attempts_per_minute" yaml:"attempts_per_minute"`
}

// NewDefaultConfig returns a configuration populated with defaults only.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults always unmarshal; a failure here is a programming error.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults registers a default for every configuration key.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "doorknock")
	v.SetDefault("logger.log_file", "doorknock.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.window_min_width", 1366)
	v.SetDefault("browser.window_max_width", 1920)
	v.SetDefault("browser.window_min_height", 768)
	v.SetDefault("browser.window_max_height", 1080)
	v.SetDefault("browser.restart_after_actions", 100)
	v.SetDefault("browser.restart_after_age", 2*time.Hour)
	v.SetDefault("browser.navigation_timeout", 90*time.Second)

	// -- Humanoid --
	v.SetDefault("browser.humanoid.enabled", true)
	v.SetDefault("browser.humanoid.typo_rate", 0.04)
	v.SetDefault("browser.humanoid.distraction_probability", 0.10)
	v.SetDefault("browser.humanoid.key_pause_mean_ms", 70.0)
	v.SetDefault("browser.humanoid.click_hold_min_ms", 50)
	v.SetDefault("browser.humanoid.click_hold_max_ms", 120)

	// -- Stealth --
	v.SetDefault("browser.stealth.locale", "de-AT")
	v.SetDefault("browser.stealth.timezone", "Europe/Vienna")
	v.SetDefault("browser.stealth.languages", []string{"de-AT", "de", "en"})

	// -- Session --
	v.SetDefault("session.data_dir", "~/.doorknock")
	v.SetDefault("session.validate_interval", 2*time.Hour)
	v.SetDefault("session.probe_timeout", 15*time.Second)
	v.SetDefault("session.manual_login_timeout", 5*time.Minute)
	v.SetDefault("session.manual_login_poll", 2*time.Second)

	// -- Contact --
	v.SetDefault("contact.stabilize_settle", 500*time.Millisecond)
	v.SetDefault("contact.stabilize_ceiling", 2*time.Second)
	v.SetDefault("contact.persist_check_delay", 500*time.Millisecond)
	v.SetDefault("contact.enforce_max_attempts", 3)
	v.SetDefault("contact.enforce_backoff_base", 500*time.Millisecond)
	v.SetDefault("contact.shuffle_strategies", true)
	v.SetDefault("contact.verify_timeout", 20*time.Second)
	v.SetDefault("contact.verify_poll", 500*time.Millisecond)
	v.SetDefault("contact.snapshot_dir", "~/.doorknock/snapshots")
	v.SetDefault("contact.dry_run", false)

	// -- Captcha --
	v.SetDefault("captcha.mode", "manual")
	v.SetDefault("captcha.poll_interval", 2*time.Second)
	v.SetDefault("captcha.timeout", 5*time.Minute)

	// -- Storage --
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlite_path", "~/.doorknock/contacted.db")

	// -- Journal --
	v.SetDefault("journal.path", "~/.doorknock/attempts.jsonl")

	// -- Hunter --
	v.SetDefault("hunter.concurrency", 2)
	v.SetDefault("hunter.attempts_per_minute", 2.0)
}

// NewConfigFromViper unmarshals, expands and validates a configuration.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Secrets come from the environment, never the config file.
	v.BindEnv("storage.postgres_url", "DOORKNOCK_DATABASE_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.ExpandPaths(); err != nil {
		return nil, fmt.Errorf("error expanding config paths: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ExpandPaths resolves tilde prefixes in all path-valued settings.
func (c *Config) ExpandPaths() error {
	for _, p := range []*string{
		&c.Session.DataDir,
		&c.Contact.SnapshotDir,
		&c.Storage.SQLitePath,
		&c.Journal.Path,
	} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expanding %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Hunter.Concurrency <= 0 {
		return fmt.Errorf("hunter.concurrency must be a positive integer")
	}
	if c.Hunter.AttemptsPerMinute <= 0 {
		return fmt.Errorf("hunter.attempts_per_minute must be positive")
	}
	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("storage.postgres_url is required for the postgres driver (DOORKNOCK_DATABASE_URL)")
		}
	default:
		return fmt.Errorf("unsupported storage.driver %q", c.Storage.Driver)
	}
	switch c.Captcha.Mode {
	case "manual", "external":
	default:
		return fmt.Errorf("captcha.mode must be \"manual\" or \"external\", got %q", c.Captcha.Mode)
	}
	if c.Contact.EnforceMaxAttempts <= 0 {
		return fmt.Errorf("contact.enforce_max_attempts must be a positive integer")
	}
	if c.Contact.StabilizeSettle > c.Contact.StabilizeCeiling {
		return fmt.Errorf("contact.stabilize_settle must not exceed contact.stabilize_ceiling")
	}
	if c.Browser.WindowMinWidth > c.Browser.WindowMaxWidth ||
		c.Browser.WindowMinHeight > c.Browser.WindowMaxHeight {
		return fmt.Errorf("browser window bounds are inverted")
	}
	if c.Browser.Humanoid.ClickHoldMinMs > c.Browser.Humanoid.ClickHoldMaxMs {
		return fmt.Errorf("browser.humanoid.click_hold_min_ms must not exceed click_hold_max_ms")
	}
	return nil
}
