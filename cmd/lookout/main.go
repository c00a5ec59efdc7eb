package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/lookout/pkg/config"
	"github.com/cuemby/lookout/pkg/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "lookout",
	Short: "Lookout - host event agent",
	Long: `Lookout turns filesystem changes, kernel audit records and process
activity into a uniform stream of events, dispatched to subscribers and
stored for later queries.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Lookout version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the YAML configuration file")

	runCmd.Flags().String("data-dir", "", "Override data_dir from the configuration")
	runCmd.Flags().String("log-level", "", "Override log.level from the configuration")

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(configCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Lookout version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent",
	Long: `Run the agent in the foreground.

Publishers are started for every enabled source, subscribers persist rows
into the data directory, and the configuration file is watched for
changes. The agent stops on SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := loadViper(cmd)
		if err != nil {
			return err
		}
		if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
			v.Set("data_dir", dataDir)
		}
		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			v.Set("log.level", level)
		}

		cfg, err := config.Load(v)
		if err != nil {
			return err
		}
		log.Init(cfg.LogConfig())

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newAgent(cfg)
		if err != nil {
			return fmt.Errorf("failed to create agent: %w", err)
		}
		if err := a.Start(ctx); err != nil {
			a.Stop()
			return fmt.Errorf("failed to start agent: %w", err)
		}
		if v.ConfigFileUsed() != "" {
			config.Watch(ctx, v, a.Reload)
		}

		log.Logger.Info().Str("version", Version).Msg("Agent is running")

		select {
		case <-ctx.Done():
			log.Info("Shutting down")
		case err := <-a.Errors():
			log.Logger.Error().Err(err).Msg("Server failed, shutting down")
		}

		a.Stop()
		log.Info("Shutdown complete")
		return log.Close()
	},
}

func loadViper(cmd *cobra.Command) (*viper.Viper, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.New(path)
}
