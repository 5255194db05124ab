// Package cli is the opl3relay command line.
package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/chase3718/opl3relay/internal/config"
	"github.com/chase3718/opl3relay/internal/logging"
)

var (
	configPath string
	debug      bool
	logger     = slog.Default()
)

var rootCmd = &cobra.Command{
	Use:           "opl3relay",
	Short:         "Relay MIDI to a RetroWave OPL3 board over serial",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Read(configPath); err != nil {
			return err
		}
		c, err := config.Load()
		if err != nil {
			return err
		}
		level := c.Log.Level
		if debug {
			level = "debug"
		}
		logger = logging.Init(level, c.Log.Format)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(
		&configPath,
		"config",
		"c",
		"",
		"Optional absolute path to toml config file")
	rootCmd.PersistentFlags().BoolVar(
		&debug,
		"debug",
		false,
		"enable debug logging (adds source location)")

	rootCmd.AddCommand(runCmd, portsCmd, banksCmd)
}

// Run executes the command line.
func Run() error {
	return rootCmd.Execute()
}
