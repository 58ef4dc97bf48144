package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/foreman/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage foreman configuration",
	Long: `View and manage foreman configuration.

Configuration is loaded from (highest precedence first):
  1. Command-line flags
  2. Environment variables (FOREMAN_ prefix, e.g. FOREMAN_COORDINATOR_STRATEGY)
  3. The config file ($XDG_CONFIG_HOME/foreman/config.yaml, then ./config.yaml)
  4. Built-in defaults`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default config file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Check a config file for errors",
	Long: `Check a config file for errors. Without a path, the effective
configuration (file, environment, and flags) is checked.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configInitCmd, configPathCmd, configValidateCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintf(out, "# loaded from %s\n", used)
	} else {
		fmt.Fprintln(out, "# no config file found; defaults with environment overrides")
	}
	_, err = out.Write(data)
	return err
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := config.ConfigFile()
	if len(args) == 1 {
		path = args[0]
	}
	if err := config.Default().WriteFile(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintln(out, used)
		return nil
	}
	fmt.Fprintf(out, "%s (not created)\n", config.ConfigFile())
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	var (
		cfg    *config.Config
		source string
		err    error
	)
	if len(args) == 1 {
		source = args[0]
		cfg, err = config.ReadFile(source)
		if err != nil {
			return err
		}
	} else {
		source = "effective configuration"
		cfg = new(config.Config)
		if err := viper.Unmarshal(cfg); err != nil {
			return fmt.Errorf("failed to decode configuration: %w", err)
		}
	}

	errs := cfg.Validate()
	out := cmd.OutOrStdout()
	if len(errs) == 0 {
		fmt.Fprintf(out, "%s: ok\n", source)
		return nil
	}
	fmt.Fprintf(out, "%s:\n", source)
	for _, e := range errs {
		fmt.Fprintf(out, "  %s\n", strings.TrimSpace(e.Error()))
	}
	return config.ValidationErrors(errs)
}
