package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/benaskins/leaf/internal/guest"
	"github.com/benaskins/leaf/internal/preflight"
	"github.com/benaskins/leaf/internal/watch"
)

type checkResult struct {
	Key    string `json:"key"`
	Name   string `json:"name,omitempty"`
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

var checkCmd = &cobra.Command{
	Use:   "check [key]",
	Short: "Run preflight checks on configured guests",
	Long:  "Load the guest registry and check that every guest (or the one named by key) can be launched on this host. Nothing is built or launched.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().Bool("json", false, "output results as JSON")
	checkCmd.Flags().Bool("watch", false, "re-check whenever the registry file changes")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	jsonOut, _ := cmd.Flags().GetBool("json")
	watching, _ := cmd.Flags().GetBool("watch")

	a, err := loadApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	key := ""
	if len(args) > 0 {
		key = args[0]
	}

	if !watching {
		return checkOnce(cmd.Context(), a, key, jsonOut)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	report := func() {
		if err := checkOnce(ctx, a, key, jsonOut); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
	report()
	return watch.File(ctx, a.cfg.Registry, watch.DefaultDebounce, func() {
		a.registry, a.regErr = guest.Load(a.cfg.Registry)
		fmt.Println()
		report()
	})
}

func checkOnce(ctx context.Context, a *app, key string, jsonOut bool) error {
	if a.regErr != nil {
		return a.regErr
	}

	descs := a.registry.All()
	if key != "" {
		d, err := a.registry.Lookup(key)
		if err != nil {
			return err
		}
		descs = []*guest.Descriptor{d}
	}
	if len(descs) == 0 {
		return fmt.Errorf("no guests configured in %s", a.cfg.Registry)
	}

	v := a.validator()
	var results []checkResult
	var failed int
	for _, d := range descs {
		r := checkResult{Key: d.Key, Name: d.Name, Valid: true}
		if err := v.Check(ctx, d); err != nil {
			r.Valid = false
			r.Error = err.Error()
			var f *preflight.Failure
			if errors.As(err, &f) {
				r.Reason = string(f.Reason)
			}
			failed++
		}
		results = append(results, r)
	}

	if jsonOut {
		if err := printJSON(results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r.Valid {
				fmt.Printf("OK    %s. %s\n", r.Key, r.Name)
			} else {
				fmt.Fprintf(os.Stderr, "FAIL  %s. %s (%s)\n      %v\n", r.Key, r.Name, r.Reason, r.Error)
			}
		}
		if len(results) > 1 {
			passed := len(results) - failed
			fmt.Printf("\n%d/%d guests launchable on %s\n", passed, len(results), a.cfg.Host)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d guest(s) failed preflight", failed)
	}
	return nil
}
