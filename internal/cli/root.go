package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ozodon/fedmarket/internal/model"
	"github.com/ozodon/fedmarket/internal/pipeline"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "fedmarketd",
	Short: "Fedmarket - federated marketplace hub",
	Long: `Fedmarket is a federated marketplace hub. It ingests signed claims
from the federation (product offers, trust assertions, abuse reports),
maintains a web-of-trust graph, and replicates accepted claims to peer
hubs.

Trust is transitive but decayed: the score between two actors is the
strongest product-of-weights path through the trust graph, bounded in
depth, so a chain of weak links never outranks a direct endorsement.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("fedmarketd v0.3.1")
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.fedmarket/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}
		viper.AddConfigPath(home + "/.fedmarket")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("FEDMARKET")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig layers the config file and environment over the defaults
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	registerDefaults(cfg)
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// registerDefaults teaches viper the built-in values so partial config
// files do not zero out the rest of the struct.
func registerDefaults(cfg *model.Config) {
	viper.SetDefault("hub.id", cfg.Hub.ID)
	viper.SetDefault("hub.name", cfg.Hub.Name)
	viper.SetDefault("hub.description", cfg.Hub.Description)
	viper.SetDefault("storage.path", cfg.Storage.Path)
	viper.SetDefault("trust.max_depth", cfg.Trust.MaxDepth)
	viper.SetDefault("trust.cache_ttl", cfg.Trust.CacheTTL)
	viper.SetDefault("trust.public_root", cfg.Trust.PublicRoot)
	viper.SetDefault("moderation.threshold", cfg.Moderation.Threshold)
	viper.SetDefault("rank.multiplier", cfg.Rank.Multiplier)
	viper.SetDefault("rank.max_results", cfg.Rank.MaxResults)
	viper.SetDefault("replication.timeout", cfg.Replication.Timeout)
	viper.SetDefault("replication.rate_per_peer", cfg.Replication.RatePerPeer)
	viper.SetDefault("replication.burst", cfg.Replication.Burst)
}

// newLogger builds the CLI logger; verbose switches to development output
func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

// openPipeline assembles the hub from config for a command invocation
func openPipeline() (*pipeline.Pipeline, *model.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger()
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	p, err := pipeline.New(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return p, cfg, nil
}
