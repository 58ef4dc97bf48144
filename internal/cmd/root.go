package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/foreman/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "foreman",
	Short: "Adaptive task coordinator for autonomous workers",
	Long: `Foreman distributes tasks across a pool of autonomous workers, tracks
each worker's load and health, raises alerts for bottlenecks, and adapts its
coordination mode (normal, optimizing, emergency) to what it observes.

Run the control loop with 'foreman run'. Other commands inspect or edit the
state directory it checkpoints into.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $XDG_CONFIG_HOME/foreman/config.yaml)")
	rootCmd.PersistentFlags().String("state-dir", "", "state directory (default is ./.foreman)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("paths.state_dir", rootCmd.PersistentFlags().Lookup("state-dir"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix(config.EnvPrefix)
	// Replace dots with underscores for nested keys in env vars
	// e.g., FOREMAN_COORDINATOR_STRATEGY for coordinator.strategy
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
