package main

import (
	"fmt"
	"os"

	"github.com/gofiber/fiber/v2/log"
	"github.com/spf13/cobra"

	"github.com/ManuelReschke/ReportFox/internal/pkg/config"
	"github.com/ManuelReschke/ReportFox/internal/pkg/env"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "reportctl",
		Short:         "ReportFox operations: migrations, maintenance and accounts",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if err := env.SetupEnvFile(); err != nil {
				log.Debug("[reportctl] No .env file found, using process environment")
			}
		},
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(createManagementUserCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
