package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/localwebapp/internal/domain/archive"
	"github.com/GriffinCanCode/localwebapp/internal/domain/host"
	"github.com/GriffinCanCode/localwebapp/internal/domain/integrity"
	"github.com/GriffinCanCode/localwebapp/internal/infrastructure/server"
	"github.com/GriffinCanCode/localwebapp/internal/shared/types"
)

// packageFor builds a source directory or describes an existing archive
func packageFor(ctx context.Context, rt *host.Runtime, path string) (*types.Package, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return rt.Package(ctx, path)
	}
	if filepath.Ext(path) != archive.Extension {
		return nil, fmt.Errorf("%s is neither a source directory nor a %s archive", path, archive.Extension)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return &types.Package{ArchiveFile: abs, DigestFiles: integrity.SidecarPaths(abs)}, nil
}

func newServeCmd(a *app) *cobra.Command {
	var addrHost, port string

	cmd := &cobra.Command{
		Use:   "serve <archive|dir>...",
		Short: "Load applications and serve their content and bridge over HTTP",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if addrHost != "" {
				a.cfg.Server.Host = addrHost
			}
			if port != "" {
				a.cfg.Server.Port = port
			}
			rt, err := a.runtime()
			if err != nil {
				return err
			}

			srv := server.NewServer(a.cfg, rt, a.metrics, a.logger.Logger)
			defer srv.Close()

			out := cmd.OutOrStdout()
			for _, path := range args {
				pkg, err := packageFor(cmd.Context(), rt, path)
				if err != nil {
					return err
				}
				handle, err := rt.Load(cmd.Context(), pkg, host.LoadOptions{Verify: a.cfg.Host.Verify})
				if err != nil {
					return fmt.Errorf("load %s: %w", path, err)
				}

				m := handle.Manifest
				fmt.Fprintln(out, successStyle.Render("✓ loaded ")+idStyle.Render(m.ID)+" "+m.Version)
				field(out, "url", fmt.Sprintf("http://%s/apps/%s/", srv.Addr(), m.ID))
				if a.cfg.Host.Verify && !handle.IsVerified {
					fmt.Fprintln(out, warningStyle.Render("  ! unverified: digests do not match the archive"))
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addrHost, "host", "", "listen host; overrides HOST")
	cmd.Flags().StringVar(&port, "port", "", "listen port; overrides PORT")
	return cmd
}
