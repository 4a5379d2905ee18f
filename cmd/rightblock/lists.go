package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"rightblock/internal/controller"
	"rightblock/internal/engine"
)

func importCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import [usernames...]",
		Short: "Queue usernames for the background worker (reads stdin without args)",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := strings.Join(args, " ")
			if raw == "" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				raw = string(data)
			}

			ctx := cmd.Context()
			st, _, err := a.openState(ctx, true)
			if err != nil {
				return err
			}
			defer st.Store().Close()

			added, err := st.Import(ctx, raw)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued %d users\n", len(added))
			return nil
		},
	}
}

func exportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Print the block history, one username per line",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, _, err := a.openState(ctx, true)
			if err != nil {
				return err
			}
			defer st.Store().Close()

			for _, u := range st.History(ctx) {
				fmt.Fprintln(cmd.OutOrStdout(), u)
			}
			return nil
		},
	}
}

func statusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the worker status and list sizes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, _, err := a.openState(ctx, true)
			if err != nil {
				return err
			}
			defer st.Store().Close()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, engine.StatusLine(st.Status(ctx)))
			fmt.Fprintf(out, "mode: %s\n", st.Mode(ctx))
			fmt.Fprintf(out, "queued: %d  failed: %d  blocked: %d\n",
				len(st.Queue(ctx)), len(st.Failed(ctx)), len(st.History(ctx)))
			if st.InCooldown(ctx) {
				fmt.Fprintf(out, "cooldown until %s\n", st.CooldownUntil(ctx).Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}

func stopCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Ask the running worker to halt at its next step",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, _, err := a.openState(ctx, true)
			if err != nil {
				return err
			}
			defer st.Store().Close()
			return st.RequestStop(ctx)
		},
	}
}

func retryCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "retry-failed",
		Short: "Move the Failed Queue back to the Active Queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, _, err := a.openState(ctx, true)
			if err != nil {
				return err
			}
			defer st.Store().Close()

			n, err := st.RetryFailed(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "re-queued %d users\n", n)
			return nil
		},
	}
}

func listenCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Print the worker debug broadcast",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			st, _, err := a.openState(ctx, true)
			if err != nil {
				return err
			}
			defer st.Store().Close()

			lines, err := st.Store().Listen(ctx)
			if err != nil {
				return err
			}
			for line := range lines {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rightblock %s\n", controller.Version)
		},
	}
}
