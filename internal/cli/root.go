package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/mediclaim/internal/logging"
	"github.com/ppiankov/mediclaim/internal/model"
)

// Version is overridden at build time with -ldflags "-X .../cli.Version=..."
var Version = "v0.1.0"

var (
	cfgFile   string
	verbose   bool
	logLevel  string
	logFormat string

	// appConfig is the merged configuration, loaded before any subcommand runs
	appConfig *model.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "mediclaim",
	Short: "Mediclaim - staged medical claim analysis",
	Long: `Mediclaim runs a medical insurance claim through a fixed sequence of
evaluation stages and produces a structured assessment: confidence, risk
tier, fraud probability, document verification, eligibility and
recommendations.

It can analyze a single claim, a batch file of claims, or serve the
analysis over HTTP and websocket.

Results are decision support for a human adjuster, not decisions.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		appConfig = cfg
		logging.Init(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
		return nil
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number of mediclaim.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "mediclaim %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.mediclaim/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json)")

	// Bind flags to viper
	_ = viper.BindPFlag("output.verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		// Search for config in home directory
		viper.AddConfigPath(filepath.Join(home, ".mediclaim"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match MEDICLAIM_* (llm.api_key -> MEDICLAIM_LLM_API_KEY)
	viper.SetEnvPrefix("MEDICLAIM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Conventional provider variables work too
	_ = viper.BindEnv("llm.api_key", "MEDICLAIM_LLM_API_KEY", "OPENAI_API_KEY")
	_ = viper.BindEnv("llm.base_url", "MEDICLAIM_LLM_BASE_URL", "OLLAMA_BASE_URL")
	_ = viper.BindEnv("cache.redis_addr", "MEDICLAIM_CACHE_REDIS_ADDR", "REDIS_ADDR")
	_ = viper.BindEnv("cache.redis_password", "MEDICLAIM_CACHE_REDIS_PASSWORD", "REDIS_PASSWORD")

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig merges defaults, config file, environment and flags into a Config
func loadConfig() (*model.Config, error) {
	if err := registerDefaults(); err != nil {
		return nil, err
	}

	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// registerDefaults makes every config key known to viper so that
// AutomaticEnv can override keys the config file does not mention.
func registerDefaults() error {
	data, err := yaml.Marshal(model.DefaultConfig())
	if err != nil {
		return fmt.Errorf("marshal defaults: %w", err)
	}

	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("unmarshal defaults: %w", err)
	}

	setDefaults("", tree)
	return nil
}

func setDefaults(prefix string, tree map[string]any) {
	for k, v := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			setDefaults(key, sub)
			continue
		}
		viper.SetDefault(key, v)
	}
}
