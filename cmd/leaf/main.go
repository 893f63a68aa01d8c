package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagHome      string
	flagConfig    string
	flagLogLevel  string
	flagLogStderr bool
	flagGuest     string
)

var rootCmd = &cobra.Command{
	Use:   "leaf",
	Short: "Boot manager for guest programs",
	Long: `leaf shows a menu of configured guests, checks that the chosen guest can
run on this host, prepares its isolated environment and runs it. The guest's
exit status decides what happens next: shutdown, reboot, reboot to recovery
or halt.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runBoot,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagHome, "home", "", "leaf home directory (default ~/.leaf, or $LEAF_HOME)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default <home>/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&flagLogStderr, "log-stderr", false, "log to stderr instead of <home>/leaf.log")
	rootCmd.Flags().StringVarP(&flagGuest, "guest", "g", "", "boot the guest with this key without showing the menu")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
