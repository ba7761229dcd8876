package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRunCmd(opts *appOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the scheduler and fire pending tasks at their windows",
		RunE: func(cmd *cobra.Command, args []string) error {
			sink := func(msg string) { fmt.Println(msg) }

			mgr, closer, err := opts.openManager(sink, true)
			if err != nil {
				return err
			}
			defer closer()

			pending := 0
			for _, t := range mgr.Tasks() {
				if !t.Status().Terminal() {
					pending++
				}
			}
			fmt.Printf("scheduler running, %d pending task(s). Ctrl-C to stop.\n", pending)

			mgr.Start()
			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			<-sig

			fmt.Println("stopping...")
			mgr.Stop()
			return nil
		},
	}
}
