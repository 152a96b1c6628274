package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/yungbote/revisioned/internal/app"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update story tables and their history tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		recreate, _ := cmd.Flags().GetBool("recreate")

		a, err := app.New(cmd.Context(), configPath(cmd))
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		return a.Migrate(recreate)
	},
}

func init() {
	migrateCmd.Flags().Bool("recreate", false, "Drop and recreate every table (destroys all rows)")
}
