package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/localwebapp/internal/domain/manifest"
	"github.com/GriffinCanCode/localwebapp/internal/shared/types"
)

const starterPage = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>%s</title>
</head>
<body>
  <h1>%s</h1>
</body>
</html>
`

func newInitCmd(a *app) *cobra.Command {
	var appID, title, ver string

	cmd := &cobra.Command{
		Use:   "init <dir>",
		Short: "Write a starter descriptor and entry page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			if title == "" {
				title = appID
			}
			m := types.Manifest{ID: appID, DisplayName: title, Version: ver}
			if err := manifest.Validate(&m); err != nil {
				return err
			}

			if existing, err := manifest.Find(dir); err == nil {
				return fmt.Errorf("%s already has a descriptor", existing)
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create %s: %w", dir, err)
			}

			doc, err := manifest.New(filepath.Join(dir, manifest.FileNames[0]), m)
			if err != nil {
				return err
			}
			if err := doc.Save(); err != nil {
				return err
			}

			entry := filepath.Join(dir, m.EntryDocument())
			if _, err := os.Stat(entry); errors.Is(err, os.ErrNotExist) {
				page := fmt.Sprintf(starterPage, title, title)
				if err := os.WriteFile(entry, []byte(page), 0o644); err != nil {
					return fmt.Errorf("write %s: %w", entry, err)
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, successStyle.Render("✓ initialized ")+idStyle.Render(appID))
			field(out, "manifest", doc.Path)
			field(out, "entry", entry)
			return nil
		},
	}
	cmd.Flags().StringVar(&appID, "id", "", "application id, e.g. com.example.notes (required)")
	cmd.Flags().StringVar(&title, "title", "", "display name (defaults to the id)")
	cmd.Flags().StringVar(&ver, "version", "1.0.0", "initial version")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
