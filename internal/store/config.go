package store

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds the non-secret tunables loaded from a YAML file. Secrets and
// connection parameters are layered on top from the environment by
// LoadConfig.
type Config struct {
	LLM struct {
		Provider    string  `yaml:"provider"`
		Model       string  `yaml:"model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float32 `yaml:"temperature"`
		MaxRetries  int     `yaml:"max_retries"`
		BaseDelayMS int     `yaml:"base_delay_ms"`
	} `yaml:"llm"`

	Forum struct {
		DefaultChannels []string `yaml:"default_channels"`
		RequestsPerMin  int      `yaml:"requests_per_minute"`
	} `yaml:"forum"`

	Calendar struct {
		BaseURL            string  `yaml:"base_url"`
		MinDelaySeconds     float64 `yaml:"min_delay_seconds"`
		MaxJitterSeconds    float64 `yaml:"max_jitter_seconds"`
		MaxRetriesPerWeek   int     `yaml:"max_retries_per_week"`
	} `yaml:"calendar"`

	Aggregator struct {
		LookbackHours int `yaml:"lookback_hours"`
	} `yaml:"aggregator"`

	Monitor struct {
		IntervalSeconds int    `yaml:"interval_seconds"`
		Pair            string `yaml:"pair"`
		// ChannelsByCurrency maps a currency code (e.g. "EUR") to the forum
		// channels relevant to it, so the Monitor Loop can scope each tick's
		// forum harvest to the configured pair's legs. Currencies have no
		// automatic mapping to channel names the way tickers do, so this
		// must come from the operator.
		ChannelsByCurrency map[string][]string `yaml:"channels_by_currency"`
	} `yaml:"monitor"`

	Backfill struct {
		CheckpointPath string `yaml:"checkpoint_path"`
		MaxAttempts    int    `yaml:"max_attempts"`
	} `yaml:"backfill"`

	// DB fields are populated from environment, not YAML (see LoadConfig).
	DB DBConfig `yaml:"-"`

	// LLMAPIKey, ForumClientID/Secret are populated from environment.
	LLMAPIKey         string `yaml:"-"`
	ForumClientID     string `yaml:"-"`
	ForumClientSecret string `yaml:"-"`
}

// DBConfig holds Postgres connection parameters.
type DBConfig struct {
	Host        string
	Port        int
	Name        string
	User        string
	Password    string
	PoolSize    int
	MaxOverflow int
}

func (c *DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", c.User, c.Password, c.Host, c.Port, c.Name)
}

// Validate checks required fields are sane.
func (c *Config) Validate() error {
	if c.LLM.Provider == "" {
		return fmt.Errorf("llm.provider must be set")
	}
	if len(c.Forum.DefaultChannels) == 0 {
		return fmt.Errorf("forum.default_channels cannot be empty")
	}
	if c.DB.Host == "" {
		return fmt.Errorf("DB_HOST must be set")
	}
	return nil
}

// LoadConfig reads YAML configuration from path, then overlays environment
// variables for secrets and connection parameters, applies defaults, and
// validates the result.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	applyDefaults(&c)
	loadFromEnv(&c)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

func applyDefaults(c *Config) {
	if c.LLM.MaxRetries == 0 {
		c.LLM.MaxRetries = 3
	}
	if c.LLM.BaseDelayMS == 0 {
		c.LLM.BaseDelayMS = 1000
	}
	if c.Forum.RequestsPerMin == 0 {
		c.Forum.RequestsPerMin = 30
	}
	if len(c.Forum.DefaultChannels) == 0 {
		c.Forum.DefaultChannels = []string{"wallstreetbets", "stocks", "investing", "options", "Economics", "finance"}
	}
	if c.Calendar.MinDelaySeconds == 0 {
		c.Calendar.MinDelaySeconds = 1.5
	}
	if c.Calendar.MaxJitterSeconds == 0 {
		c.Calendar.MaxJitterSeconds = 0.5
	}
	if c.Calendar.MaxRetriesPerWeek == 0 {
		c.Calendar.MaxRetriesPerWeek = 3
	}
	if c.Aggregator.LookbackHours == 0 {
		c.Aggregator.LookbackHours = 168
	}
	if c.Monitor.IntervalSeconds == 0 {
		c.Monitor.IntervalSeconds = 30 * 60
	}
	if c.Backfill.CheckpointPath == "" {
		c.Backfill.CheckpointPath = "backfill_checkpoint.json"
	}
	if c.Backfill.MaxAttempts == 0 {
		c.Backfill.MaxAttempts = 3
	}
	if c.DB.PoolSize == 0 {
		c.DB.PoolSize = 5
	}
	if c.DB.MaxOverflow == 0 {
		c.DB.MaxOverflow = 10
	}
}

func loadFromEnv(c *Config) {
	c.LLMAPIKey = os.Getenv("LLM_API_KEY")
	c.ForumClientID = os.Getenv("FORUM_CLIENT_ID")
	c.ForumClientSecret = os.Getenv("FORUM_CLIENT_SECRET")

	c.DB.Host = getEnvOr(c.DB.Host, "DB_HOST")
	c.DB.Name = getEnvOr(c.DB.Name, "DB_NAME")
	c.DB.User = getEnvOr(c.DB.User, "DB_USER")
	c.DB.Password = getEnvOr(c.DB.Password, "DB_PASSWORD")

	if v := os.Getenv("DB_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.DB.Port = n
		}
	}
	if c.DB.Port == 0 {
		c.DB.Port = 5432
	}
	if v := os.Getenv("DB_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.DB.PoolSize = n
		}
	}
	if v := os.Getenv("DB_MAX_OVERFLOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.DB.MaxOverflow = n
		}
	}
}

func getEnvOr(current, key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return current
}
