// Command bookpilot schedules and runs timed browser bookings. Tasks are
// added with a day-of-month and a time-of-day; the run command keeps a
// polling scheduler alive that fires each task's booking workflow inside
// its scheduling window.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"bookpilot/internal/browser"
	"bookpilot/internal/history"
	"bookpilot/internal/logging"
	"bookpilot/internal/siteconfig"
	"bookpilot/internal/task"
)

type appOptions struct {
	dataDir    string
	sitesPath  string
	debug      bool
	headless   bool
	browserBin string
}

func newRootCmd() *cobra.Command {
	opts := &appOptions{}

	root := &cobra.Command{
		Use:           "bookpilot",
		Short:         "Scheduled browser booking runner",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.dataDir == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return fmt.Errorf("resolve home dir: %w", err)
				}
				opts.dataDir = filepath.Join(home, ".bookpilot")
			}
			if opts.sitesPath == "" {
				opts.sitesPath = filepath.Join(opts.dataDir, "sites.yaml")
			}
			return logging.Initialize(opts.dataDir, opts.debug)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logging.Sync()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.dataDir, "data-dir", "", "data directory (default ~/.bookpilot)")
	pf.StringVar(&opts.sitesPath, "sites", "", "site selector config file (default <data-dir>/sites.yaml)")
	pf.BoolVar(&opts.debug, "debug", false, "mirror debug logs to stderr")
	pf.BoolVar(&opts.headless, "headless", false, "launch browsers headless")
	pf.StringVar(&opts.browserBin, "browser-bin", "", "browser binary (default auto-detected)")

	root.AddCommand(
		newRunCmd(opts),
		newAddCmd(opts),
		newListCmd(opts),
		newRemoveCmd(opts),
		newClearCmd(opts),
		newHistoryCmd(opts),
		newSitesCmd(opts),
	)
	return root
}

func (o *appOptions) tasksPath() string   { return filepath.Join(o.dataDir, "tasks.json") }
func (o *appOptions) credsPath() string   { return filepath.Join(o.dataDir, "credentials.json") }
func (o *appOptions) historyPath() string { return filepath.Join(o.dataDir, "history.db") }

// openManager wires the task manager from persisted state. With watch set
// the site config hot-reloads on file changes. The returned closer releases
// the watcher and the history database.
func (o *appOptions) openManager(sink browser.ProgressFunc, watch bool) (*task.Manager, func(), error) {
	creds, err := task.LoadCredentials(o.credsPath())
	if err != nil {
		return nil, nil, err
	}
	store := task.NewStore(o.tasksPath())
	tasks, err := store.Load(creds)
	if err != nil {
		return nil, nil, err
	}

	registry, err := siteconfig.NewRegistry(o.sitesPath)
	if err != nil {
		return nil, nil, err
	}
	if watch {
		if err := registry.Watch(); err != nil {
			return nil, nil, err
		}
	}

	hist, err := history.Open(o.historyPath())
	if err != nil {
		return nil, nil, err
	}

	profiles, err := loadProfiles(filepath.Join(o.dataDir, "profiles.json"))
	if err != nil {
		return nil, nil, err
	}

	deps := task.RunDeps{
		Launcher: &browser.ChromeLauncher{
			Bin:         o.browserBin,
			Headless:    o.headless,
			UserDataDir: filepath.Join(o.dataDir, "profiles"),
		},
		Sites:    registry,
		Sink:     sink,
		Profiles: profiles,
	}

	mgr := task.NewManager(tasks, store, deps, hist)
	closer := func() {
		_ = registry.Close()
		_ = hist.Close()
	}
	return mgr, closer, nil
}
