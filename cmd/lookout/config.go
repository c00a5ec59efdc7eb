package main

import (
	"fmt"
	"os"

	"github.com/cuemby/lookout/pkg/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the agent configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Long: `Print the effective configuration: defaults, then the configuration
file, then LOOKOUT_* environment variables.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := loadViper(cmd)
		if err != nil {
			return err
		}
		cfg, err := config.Load(v)
		if err != nil {
			return err
		}
		out, err := cfg.Render()
		if err != nil {
			return fmt.Errorf("failed to render configuration: %w", err)
		}
		_, err = os.Stdout.Write(out)
		return err
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration for errors",
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := loadViper(cmd)
		if err != nil {
			return err
		}
		if _, err := config.Load(v); err != nil {
			return err
		}
		if path := v.ConfigFileUsed(); path != "" {
			fmt.Printf("✓ Configuration is valid: %s\n", path)
		} else {
			fmt.Println("✓ Configuration is valid (defaults)")
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}
