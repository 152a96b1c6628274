package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/yungbote/revisioned/internal/app"
	"github.com/yungbote/revisioned/internal/pkg/dbctx"
)

var versionsCmd = &cobra.Command{
	Use:   "versions <story-id>",
	Short: "Print the stored versions of a story, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil || id == 0 {
			return fmt.Errorf("invalid story id %q", args[0])
		}

		a, err := app.New(cmd.Context(), configPath(cmd))
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		versions, err := a.Repos.Story.ListVersions(dbctx.Context{Ctx: cmd.Context()}, uint(id))
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(versions)
	},
}
