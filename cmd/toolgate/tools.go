package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/artpar/toolgate/domain/tool"
	"github.com/spf13/cobra"
)

// toolsFile is the import format: tool records plus optional changelog
// entries.
type toolsFile struct {
	Tools     []tool.Tool           `json:"tools"`
	Changelog []tool.ChangelogEntry `json:"changelog"`
}

func newToolsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Manage tool records",
	}
	cmd.AddCommand(newToolsImportCmd(opts))
	return cmd
}

func newToolsImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Create or replace tool records from a JSON file",
		Long: `Import tool records from a JSON file of the form:

  {
    "tools": [{"slug": "claude", "name": "Claude", "category": "assistant", ...}],
    "changelog": [{"slug": "claude", "version": "2024.1", "date": "2024-01-15T00:00:00Z", "summary": "..."}]
  }

Every record is validated before anything is written.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			var file toolsFile
			if err := json.Unmarshal(data, &file); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			now := time.Now().UTC()
			for i := range file.Tools {
				file.Tools[i].Slug = tool.NormalizeSlug(file.Tools[i].Slug)
				if file.Tools[i].UpdatedAt.IsZero() {
					file.Tools[i].UpdatedAt = now
				}
				if err := file.Tools[i].Validate(); err != nil {
					return fmt.Errorf("tools[%d]: %w", i, err)
				}
			}
			for i := range file.Changelog {
				file.Changelog[i].Slug = tool.NormalizeSlug(file.Changelog[i].Slug)
				if file.Changelog[i].Date.IsZero() {
					file.Changelog[i].Date = now
				}
				if err := file.Changelog[i].Validate(); err != nil {
					return fmt.Errorf("changelog[%d]: %w", i, err)
				}
			}

			_, stores, err := opts.openStores()
			if err != nil {
				return err
			}
			defer stores.Close()

			ctx := context.Background()
			var created, updated int
			for _, t := range file.Tools {
				isNew, err := stores.Tools.Upsert(ctx, t)
				if err != nil {
					return fmt.Errorf("store %s: %w", t.Slug, err)
				}
				if isNew {
					created++
				} else {
					updated++
				}
			}
			for _, e := range file.Changelog {
				if err := stores.Tools.AppendChangelog(ctx, e); err != nil {
					return fmt.Errorf("changelog %s %s: %w", e.Slug, e.Version, err)
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s Imported %d tools (%d created, %d updated), %d changelog entries\n",
				checkMark, len(file.Tools), created, updated, len(file.Changelog))
			return nil
		},
	}
}
