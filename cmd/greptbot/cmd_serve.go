package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/greptbot/internal/dispatcher"
	"github.com/user/greptbot/internal/gateway"
	"github.com/user/greptbot/internal/governor"
	"github.com/user/greptbot/internal/indexer"
	"github.com/user/greptbot/internal/reporter"
	"github.com/user/greptbot/internal/scheduler"
	"github.com/user/greptbot/internal/store"
	"github.com/user/greptbot/internal/telegram"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the greptbot daemon",
	RunE:  runServe,
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, "greptbot.pid")
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	db, err := store.Open(filepath.Join(cfg.DataDir, "greptbot.db"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.SeedOwner(ctx, cfg.Telegram.OwnerID); err != nil {
		return fmt.Errorf("seed owner: %w", err)
	}

	client := gateway.New(cfg.Upstream.BaseURL, cfg.Upstream.APIKey, cfg.Upstream.GitHubToken,
		gateway.WithTimeout(time.Duration(cfg.Upstream.TimeoutSeconds)*time.Second))

	gov := governor.New(db.Usage(), db.Config(), cfg.Telegram.OwnerID)

	ix := indexer.New(client, db.Repos(),
		indexer.WithPollInterval(time.Duration(cfg.Indexer.PollIntervalSeconds)*time.Second),
		indexer.WithAdvisoryAfter(time.Duration(cfg.Indexer.AdvisoryAfterHours)*time.Hour))

	disp, err := dispatcher.New(client, gov, db.Repos(), db.Config(), cfg.MaxConcurrent)
	if err != nil {
		return fmt.Errorf("create dispatcher: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	// The /restart command rides the same path as an external SIGHUP.
	restart := func() { sigChan <- syscall.SIGHUP }

	adapter, err := telegram.New(cfg.Telegram.Token, disp, ix, db.Repos(),
		db.Config(), db.Whitelist(), cfg.Telegram.OwnerID, restart)
	if err != nil {
		return fmt.Errorf("create telegram adapter: %w", err)
	}
	go adapter.Start(ctx)
	slog.Info("telegram adapter started")

	rep := reporter.New(adapter.Send, db.Config(), reporter.WithOwner(cfg.Telegram.OwnerID))
	adapter.SetIncidents(rep)

	sched := scheduler.New(client, db.Repos(), db.Usage(), rep)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	slog.Info("greptbot started",
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"max_concurrent", cfg.MaxConcurrent,
		"upstream", cfg.Upstream.BaseURL,
		"pid_file", pidPath,
	)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			slog.Info("received SIGHUP, restarting")
			execPath, err := os.Executable()
			if err != nil {
				slog.Error("failed to get executable path", "error", err)
				continue
			}
			// Clean up PID file before re-exec
			os.Remove(pidPath)
			if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
				slog.Error("failed to re-exec", "error", err)
				if _, writeErr := writePIDFile(cfg.DataDir); writeErr != nil {
					slog.Error("failed to re-write PID file", "error", writeErr)
				}
				continue
			}
		}
		// SIGINT or SIGTERM
		slog.Info("shutting down", "signal", sig)
		return nil
	}
}
