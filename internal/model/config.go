package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the complete mediclaim configuration.
// Precedence: CLI flags > MEDICLAIM_* env > config file > DefaultConfig.
type Config struct {
	Pipeline        PipelineConfig       `yaml:"pipeline" mapstructure:"pipeline"`
	Scoring         ScoringConfig        `yaml:"scoring" mapstructure:"scoring"`
	Recommendations RecommendationConfig `yaml:"recommendations" mapstructure:"recommendations"`
	Cache           CacheConfig          `yaml:"cache" mapstructure:"cache"`
	Server          ServerConfig         `yaml:"server" mapstructure:"server"`
	RateLimiting    RateLimitConfig      `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Concurrency     ConcurrencyConfig    `yaml:"concurrency" mapstructure:"concurrency"`
	LLM             LLMConfig            `yaml:"llm" mapstructure:"llm"`
	Logging         LoggingConfig        `yaml:"logging" mapstructure:"logging"`
	Output          OutputConfig         `yaml:"output" mapstructure:"output"`
}

// PipelineConfig controls stage sequencing
type PipelineConfig struct {
	Stages     []string      `yaml:"stages" mapstructure:"stages"`           // Ordered stage labels, at least one
	StageDelay time.Duration `yaml:"stage_delay" mapstructure:"stage_delay"` // Simulated work per stage (0 disables)
	RunTimeout time.Duration `yaml:"run_timeout" mapstructure:"run_timeout"` // checked between stages; expiry fails the run
}

// ScoringConfig selects the scoring strategy and its thresholds
type ScoringConfig struct {
	Strategy         string                  `yaml:"strategy" mapstructure:"strategy"`                   // rules, demo, llm
	RiskMediumAbove  float64                 `yaml:"risk_medium_above" mapstructure:"risk_medium_above"` // amount > this is at least medium
	RiskHighAbove    float64                 `yaml:"risk_high_above" mapstructure:"risk_high_above"`     // amount > this is high
	RequiredMetadata []string                `yaml:"required_metadata" mapstructure:"required_metadata"` // Keys scoring cannot proceed without
	Coverage         map[string]CoverageRule `yaml:"coverage" mapstructure:"coverage"`                   // Keyed by claim type
}

// CoverageRule holds the policy terms applied to one claim type
type CoverageRule struct {
	Covered    bool    `yaml:"covered" mapstructure:"covered"`
	Percentage int     `yaml:"percentage" mapstructure:"percentage"`
	Deductible int     `yaml:"deductible" mapstructure:"deductible"`
	PolicyMax  float64 `yaml:"policy_max" mapstructure:"policy_max"` // 0 means no ceiling
}

// RecommendationConfig controls the recommendation generator
type RecommendationConfig struct {
	Baseline            []string `yaml:"baseline" mapstructure:"baseline"`
	LargeClaimThreshold float64  `yaml:"large_claim_threshold" mapstructure:"large_claim_threshold"`
	FraudAlertThreshold float64  `yaml:"fraud_alert_threshold" mapstructure:"fraud_alert_threshold"`
}

// CacheConfig controls where analysis results are kept after delivery
type CacheConfig struct {
	Enabled       bool          `yaml:"enabled" mapstructure:"enabled"`
	Backend       string        `yaml:"backend" mapstructure:"backend"` // memory, layered, redis
	Dir           string        `yaml:"dir" mapstructure:"dir"`
	TTL           time.Duration `yaml:"ttl" mapstructure:"ttl"`
	MemoryTTL     time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	RedisAddr     string        `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string        `yaml:"redis_password,omitempty" mapstructure:"redis_password"`
	RedisDB       int           `yaml:"redis_db" mapstructure:"redis_db"`
}

// ServerConfig controls the HTTP API
type ServerConfig struct {
	Addr            string        `yaml:"addr" mapstructure:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// RateLimitConfig controls per-client request limits
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// ConcurrencyConfig controls batch parallelism
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// LLMConfig configures the model-backed fraud strategy
type LLMConfig struct {
	Provider   string `yaml:"provider" mapstructure:"provider"` // openai or empty
	Model      string `yaml:"model" mapstructure:"model"`
	APIKey     string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL    string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout    int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens  int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	HTTPProxy  string `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy    string `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`

	// per-provider throttle on model calls; zero disables it
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// LoggingConfig controls structured logging
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // text or json
}

// OutputConfig controls CLI rendering
type OutputConfig struct {
	Verbose bool `yaml:"verbose" mapstructure:"verbose"`
}

// DefaultStages returns the stage labels of the standard evaluation sequence
func DefaultStages() []string {
	return []string{
		"Document upload and validation",
		"OCR text extraction and analysis",
		"Medical code verification",
		"Fraud detection algorithms",
		"Eligibility and coverage check",
		"Risk assessment calculation",
		"Final recommendation generation",
	}
}

// DefaultBaseline returns the affirmative findings every successful analysis starts from
func DefaultBaseline() []string {
	return []string{
		"All documents verified successfully",
		"Treatment codes match diagnosis",
		"Patient eligibility confirmed",
		"No duplicate claims found",
	}
}

// DefaultConfig returns the configuration used when nothing else is set
func DefaultConfig() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			Stages:     DefaultStages(),
			StageDelay: 800 * time.Millisecond,
			RunTimeout: 2 * time.Minute,
		},
		Scoring: ScoringConfig{
			Strategy:         "rules",
			RiskMediumAbove:  1000,
			RiskHighAbove:    5000,
			RequiredMetadata: []string{"patient_id"},
			Coverage: map[string]CoverageRule{
				string(ClaimTypeOutpatient):   {Covered: true, Percentage: 80, Deductible: 250, PolicyMax: 10000},
				string(ClaimTypePrescription): {Covered: true, Percentage: 90, Deductible: 100, PolicyMax: 2000},
				string(ClaimTypeEmergency):    {Covered: true, Percentage: 90, Deductible: 500, PolicyMax: 50000},
				string(ClaimTypeDental):       {Covered: true, Percentage: 70, Deductible: 150, PolicyMax: 3000},
				string(ClaimTypeInpatient):    {Covered: true, Percentage: 85, Deductible: 600, PolicyMax: 100000},
			},
		},
		Recommendations: RecommendationConfig{
			Baseline:            DefaultBaseline(),
			LargeClaimThreshold: 3000,
			FraudAlertThreshold: 0.5,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Backend:   "memory",
			Dir:       ".mediclaim-cache",
			TTL:       24 * time.Hour,
			MemoryTTL: time.Hour,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    2 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
		RateLimiting: RateLimitConfig{
			RequestsPerSecond: 5,
			BurstSize:         10,
		},
		Concurrency: ConcurrencyConfig{
			Workers: 4,
		},
		LLM: LLMConfig{
			Timeout:   30,
			MaxTokens: 200,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate rejects configurations the pipeline cannot run with
func (c *Config) Validate() error {
	var errs []error

	if len(c.Pipeline.Stages) == 0 {
		errs = append(errs, errors.New("pipeline.stages: at least one stage is required"))
	}
	for i, label := range c.Pipeline.Stages {
		if strings.TrimSpace(label) == "" {
			errs = append(errs, fmt.Errorf("pipeline.stages[%d]: empty label", i))
		}
	}
	if c.Pipeline.StageDelay < 0 {
		errs = append(errs, errors.New("pipeline.stage_delay: must not be negative"))
	}

	if c.Scoring.RiskMediumAbove < 0 || c.Scoring.RiskHighAbove < c.Scoring.RiskMediumAbove {
		errs = append(errs, fmt.Errorf("scoring: risk thresholds must satisfy 0 <= medium (%.2f) <= high (%.2f)",
			c.Scoring.RiskMediumAbove, c.Scoring.RiskHighAbove))
	}
	for claimType, rule := range c.Scoring.Coverage {
		if rule.Percentage < 0 || rule.Percentage > 100 {
			errs = append(errs, fmt.Errorf("scoring.coverage.%s.percentage: %d out of range [0,100]", claimType, rule.Percentage))
		}
		if rule.Deductible < 0 {
			errs = append(errs, fmt.Errorf("scoring.coverage.%s.deductible: must not be negative", claimType))
		}
	}

	if c.Recommendations.LargeClaimThreshold < 0 {
		errs = append(errs, errors.New("recommendations.large_claim_threshold: must not be negative"))
	}

	return errors.Join(errs...)
}
