package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"bookpilot/internal/task"
)

func newAddCmd(opts *appOptions) *cobra.Command {
	var params task.Params
	var roundIndex int

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a scheduled booking task",
		RunE: func(cmd *cobra.Command, args []string) error {
			if params.Site == "" || params.Day == "" || params.Time == "" {
				return fmt.Errorf("--site, --day and --time are required")
			}
			if cmd.Flags().Changed("round-index") {
				params.RoundIndex = &roundIndex
			}

			mgr, closer, err := opts.openManager(nil, false)
			if err != nil {
				return err
			}
			defer closer()

			t, err := mgr.Add(params)
			if err != nil {
				return err
			}
			fmt.Printf("added task %s (day %s at %s on %s)\n", t.ID, params.Day, params.Time, params.Site)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&params.Site, "site", "", "site key from the selector config")
	f.StringVar(&params.Profile, "profile", "default", "browser profile name")
	f.StringVar(&params.Branch, "branch", "", "branch label to select")
	f.StringVar(&params.Day, "day", "", "day of month to fire on")
	f.StringVar(&params.Time, "time", "", "time of day to fire at (HH:MM)")
	f.IntVar(&roundIndex, "round-index", 0, "pick the Nth enabled time slot instead of matching a label")
	f.Float64Var(&params.StepDelaySeconds, "step-delay", 0, "seconds to wait before each click")
	f.Float64Var(&params.EnableBudgetSecond, "enable-budget", 0, "seconds to wait for register to enable (0 = unbounded)")
	f.BoolVar(&params.HumanRegister, "human-register", false, "wait for a manual register click")
	f.BoolVar(&params.HumanConfirm, "human-confirm", false, "wait for a manual final confirm")
	f.BoolVar(&params.AutoLogin, "auto-login", false, "log in with the linked identity before booking")
	f.StringVar(&params.IdentityKey, "identity", "", "identity key in the credential store")
	f.StringVar(&params.ProfileRef, "profile-ref", "", "named personal-data profile for the form")
	f.BoolVar(&params.FallbackFirstEnabled, "fallback-first", false, "fall back to the first enabled branch/date when the exact one is unavailable")
	return cmd
}

func newListCmd(opts *appOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, closer, err := opts.openManager(nil, false)
			if err != nil {
				return err
			}
			defer closer()

			tasks := mgr.Tasks()
			if len(tasks) == 0 {
				fmt.Println("no tasks")
				return nil
			}
			for _, t := range tasks {
				p := t.Params
				slot := p.Time
				if p.RoundIndex != nil {
					slot = fmt.Sprintf("slot #%d", *p.RoundIndex)
				}
				fmt.Printf("%s  %-9s  site=%s branch=%q day=%s %s\n",
					t.ID, t.Status(), p.Site, p.Branch, p.Day, slot)
			}
			return nil
		},
	}
}

func newRemoveCmd(opts *appOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <task-id>",
		Short: "Cancel and remove a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, closer, err := opts.openManager(nil, false)
			if err != nil {
				return err
			}
			defer closer()

			if err := mgr.Remove(args[0]); err != nil {
				return err
			}
			fmt.Printf("removed %s\n", args[0])
			return nil
		},
	}
}

func newClearCmd(opts *appOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Cancel and remove every task",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, closer, err := opts.openManager(nil, false)
			if err != nil {
				return err
			}
			defer closer()
			return mgr.Clear()
		},
	}
}
