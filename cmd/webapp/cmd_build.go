package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/localwebapp/internal/domain/integrity"
)

func newBuildCmd(a *app) *cobra.Command {
	var verify bool

	cmd := &cobra.Command{
		Use:   "build <dir>",
		Short: "Package a source directory into a .webapp archive with digest files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			pkg, err := rt.Package(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, successStyle.Render("✓ built ")+idStyle.Render(pkg.Manifest.ID)+" "+pkg.Manifest.Version)
			field(out, "archive", pkg.ArchiveFile)
			field(out, "sha256", pkg.Digests.SHA256)
			field(out, "sha512", pkg.Digests.SHA512)
			for _, w := range pkg.Warnings {
				fmt.Fprintln(out, warningStyle.Render("  ! "+w))
			}

			if !verify {
				return nil
			}
			predicate, err := integrity.ParsePredicate(a.cfg.Host.DigestPolicy)
			if err != nil {
				return err
			}
			ok, mismatch, err := integrity.New(integrity.WithPredicate(predicate), integrity.WithLogger(a.logger.Logger)).VerifyFile(pkg.ArchiveFile)
			switch {
			case err != nil:
				fmt.Fprintln(out, warningStyle.Render("  ! unverified: "+err.Error()))
			case !ok:
				fmt.Fprintln(out, warningStyle.Render("  ! unverified: "+mismatch.Error()))
			default:
				fmt.Fprintln(out, successStyle.Render("✓ verified"))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&verify, "verify", false, "re-read the archive and check it against its digest files")
	return cmd
}
