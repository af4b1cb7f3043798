package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/ReportFox/app/repository"
	"github.com/ManuelReschke/ReportFox/internal/pkg/authflow"
	"github.com/ManuelReschke/ReportFox/internal/pkg/database"
)

func createManagementUserCmd() *cobra.Command {
	var name, email, password string

	cmd := &cobra.Command{
		Use:   "create-management-user",
		Short: "Create an active management account",
		Long: `Create an active management account. When --password is omitted it is
read from the first line of standard input, e.g.

  echo "$PASSWORD" | reportctl create-management-user --name "Ops" --email ops@example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				line, err := bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password from stdin: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := database.SetupDatabase(cfg.DB)
			if err != nil {
				return fmt.Errorf("database: %w", err)
			}

			u, err := authflow.CreateManagementUser(repository.NewUserRepository(db), name, email, password)
			if err != nil {
				return err
			}
			fmt.Printf("Management user %d (%s) created\n", u.ID, u.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "login email address")
	cmd.Flags().StringVar(&password, "password", "", "initial password (read from stdin when empty)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
