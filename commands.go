package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"cisdel-notifier/config"
	"cisdel-notifier/pkg/notifier"
	"cisdel-notifier/poll"
	"cisdel-notifier/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and the HTTP API",
	RunE:  runServe,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one check cycle and exit",
	RunE:  runCheck,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch and print the current announcements",
	RunE:  runFetch,
}

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Print the stored debug info as JSON",
	RunE:  runDebug,
}

func init() {
	rootCmd.AddCommand(serveCmd, checkCmd, fetchCmd, debugCmd)
}

// withApp loads the config, wires the app and runs fn with a context cancelled on SIGINT or SIGTERM.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func runServe(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		srv := server.New(&server.Config{
			Sessions:         a.sessions,
			Monitor:          a.monitor,
			Scheduler:        a.scheduler,
			Logger:           a.logger,
			AnnouncementsURL: a.portal.AnnouncementsURL(),
		})

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		errc := make(chan error, 1)
		go func() { errc <- a.scheduler.Run(ctx) }()

		err := srv.ListenAndServe(ctx, a.cfg.Server.Port)
		cancel()
		if schedErr := <-errc; !errors.Is(schedErr, context.Canceled) && err == nil {
			err = schedErr
		}
		return err
	})
}

func runCheck(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		if err := a.monitor.Check(ctx); err != nil {
			return fmt.Errorf("check failed (%s): %w", poll.FailedStatus(err), err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "check completed")
		return nil
	})
}

func runFetch(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		res := a.monitor.FetchAnnouncements(ctx)
		if !res.Success {
			return fmt.Errorf("fetch failed: %s (open %s)", res.Error, res.DirectURL)
		}
		renderAnnouncements(cmd.OutOrStdout(), &res)
		return nil
	})
}

func runDebug(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		info, err := a.monitor.DebugInfo(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	})
}

func renderAnnouncements(w io.Writer, res *poll.FetchResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"#", "ID", "Title", "Date", "Sender", "Read"})
	for i := range res.Announcements {
		a := &res.Announcements[i]
		t.AppendRow(table.Row{i + 1, a.ID, a.Title, a.Date, a.Sender, readMark(a)})
	}
	source := "portal"
	if res.FromCache {
		source = "cache"
	}
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d announcements from %s", len(res.Announcements), source), "", res.Strategy, ""})
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func readMark(a *notifier.Announcement) string {
	if a.Read {
		return "yes"
	}
	return ""
}
