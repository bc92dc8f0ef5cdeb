package main

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/localwebapp/internal/api/ws"
	"github.com/GriffinCanCode/localwebapp/internal/bridge"
)

func newCallCmd(a *app) *cobra.Command {
	var (
		addr       string
		reqContext string
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "call <appId> <capability.command> [json-data]",
		Short: "Send one command to a loaded app over a running host's bridge",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			appID, command := args[0], args[1]

			var data interface{}
			if len(args) == 3 {
				if err := sonic.UnmarshalString(args[2], &data); err != nil {
					return fmt.Errorf("data is not valid JSON: %w", err)
				}
			}
			var ctxMap map[string]interface{}
			if reqContext != "" {
				if err := sonic.UnmarshalString(reqContext, &ctxMap); err != nil {
					return fmt.Errorf("context is not a JSON object: %w", err)
				}
			}

			if addr == "" {
				addr = net.JoinHostPort(a.cfg.Server.Host, a.cfg.Server.Port)
			}
			if timeout <= 0 {
				timeout = a.cfg.Bridge.Timeout
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout+5*time.Second)
			defer cancel()

			endpoint := (&url.URL{Scheme: "ws", Host: addr, Path: "/bridge/" + appID}).String()
			client, err := ws.Dial(ctx, endpoint, a.logger.Logger, bridge.WithTimeout(timeout), bridge.WithMetrics(a.metrics))
			if err != nil {
				return err
			}
			defer client.Close()

			resp, err := client.Bridge().Call(ctx, command, data, ctxMap, "")
			if err != nil {
				return err
			}

			body, err := sonic.ConfigStd.MarshalIndent(resp, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(body))
			if resp.Error {
				msg := "command failed"
				if resp.Message != nil {
					msg = *resp.Message
				}
				return fmt.Errorf("%s: %s", command, msg)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "host address (defaults to HOST:PORT)")
	cmd.Flags().StringVar(&reqContext, "context", "", "JSON object echoed back in the response")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "response timeout (defaults to BRIDGE_TIMEOUT)")
	return cmd
}
