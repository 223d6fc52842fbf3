package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/beatwizard/config"
	"github.com/RyanBlaney/beatwizard/logging"
)

var (
	configPath string
	logLevel   string
	version    = "0.3.0"

	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "beatwizard",
	Short: "Extract musical features from beats",
	Long: `BeatWizard decodes audio files and extracts a fixed vector of rhythm,
energy, spectral, harmonic/percussive and timbre features, estimates the key,
and keeps a catalog of analyzed beats for similarity search.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute runs the root command, cancelling on SIGINT/SIGTERM
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a JSON config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides the config file")

	rootCmd.SetVersionTemplate("beatwizard version {{.Version}}\n")
	rootCmd.Version = version

	rootCmd.AddCommand(analyzeCmd, serveCmd, similarCmd)
}

// setup loads the configuration and configures the global logger before
// any component captures it
func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logging.SetLevel(level)

	appConfig = cfg
	return nil
}
