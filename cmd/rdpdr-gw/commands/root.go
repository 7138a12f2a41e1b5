// Package commands implements the rdpdr-gw CLI commands.
package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/corerdp/rdpdr/internal/logger"
	"github.com/corerdp/rdpdr/pkg/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "rdpdr-gw",
	Short: "RDP Device Redirection gateway client",
	Long: `rdpdr-gw dials a Remote Desktop Gateway (TSG) over RPC-over-HTTP and
bridges an RDPDR (Device Redirection) virtual channel to locally configured
drives, printers, serial, parallel, and smartcard devices.

Use "rdpdr-gw [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/rdpdr-gw/config.yaml)")

	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}

// Exit prints an error and exits with code 1.
func Exit(format string, args ...any) {
	PrintErr(format, args...)
	os.Exit(1)
}

// InitLogger configures the process-wide logger from cfg.
func InitLogger(cfg *config.Config) error {
	return logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.Printf("rdpdr-gw %s (commit %s, built %s)\n", Version, Commit, Date)
		return nil
	},
}
