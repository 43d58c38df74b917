// Command ledgerline is a terminal client for the Ledgerline business
// backend. It keeps working offline: writes are captured in a local
// queue and replayed when connectivity returns, and backend events are
// polled in the background and surfaced as on-screen alerts.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ledgerline/ledgerline/internal/alertq"
	"github.com/ledgerline/ledgerline/internal/api"
	"github.com/ledgerline/ledgerline/internal/app"
	"github.com/ledgerline/ledgerline/internal/connectivity"
	"github.com/ledgerline/ledgerline/internal/model"
	"github.com/ledgerline/ledgerline/internal/notify"
	"github.com/ledgerline/ledgerline/internal/queue"
	"github.com/ledgerline/ledgerline/internal/session"
	"github.com/ledgerline/ledgerline/internal/store"
)

const probeInterval = 15 * time.Second

func main() {
	configPath := flag.String("config", model.DefaultConfigPath(), "path to config file")
	dbPath := flag.String("db", model.DefaultDataPath(), "path to local database")
	flag.Parse()

	if err := run(*configPath, *dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "ledgerline: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, dbPath string) error {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.API.BaseURL == "" {
		return fmt.Errorf(
			"no backend configured: set api.base_url in %s", configPath,
		)
	}

	st, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	sess := session.NewManager(session.KeyringStore{})

	client := api.NewClient(
		cfg.API.BaseURL,
		sess.Token,
		time.Duration(cfg.API.TimeoutSec)*time.Second,
	)

	monitor := connectivity.New(client.Health, probeInterval)
	q := queue.New(st, client, monitor)

	alerts := alertq.New(alertq.Options{
		MaxVisible:    cfg.Alerts.MaxVisible,
		SweepInterval: 100 * time.Millisecond,
		Ceiling:       time.Duration(cfg.Alerts.CeilingSec) * time.Second,
	})

	poller := notify.New(client, st, alerts, notify.Options{
		PollInterval:     time.Duration(cfg.Notify.PollIntervalSec) * time.Second,
		FetchTimeout:     time.Duration(cfg.API.TimeoutSec) * time.Second,
		RateFloor:        time.Duration(cfg.Notify.RateFloorSec) * time.Second,
		Debounce:         time.Duration(cfg.Notify.DebounceMs) * time.Millisecond,
		DedupWindow:      time.Duration(cfg.Notify.DedupWindowSec) * time.Second,
		BackoffThreshold: cfg.Notify.BackoffThreshold,
		BackoffBase:      time.Duration(cfg.Notify.PollIntervalSec) * time.Second,
		BackoffMax:       time.Duration(cfg.Notify.BackoffMaxSec) * time.Second,
		MaxNotifications: cfg.Notify.MaxNotifications,
	})

	alerts.Start()
	monitor.Start()
	if sess.LoggedIn() {
		poller.Start()
	}

	// Drop synced mutations past their retention window before the UI
	// comes up; stale rows only grow the database.
	pruneCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	_, _ = q.PruneSynced(pruneCtx, time.Duration(cfg.Sync.RetentionHours)*time.Hour)
	cancel()

	m := app.New(app.Deps{
		Queue:   q,
		Poller:  poller,
		Alerts:  alerts,
		Monitor: monitor,
		Session: sess,
	})

	p := tea.NewProgram(m, tea.WithAltScreen())
	_, runErr := p.Run()

	// The quit path inside the UI stops these too; Stop is idempotent.
	poller.Stop()
	monitor.Stop()
	alerts.Stop()

	return runErr
}
