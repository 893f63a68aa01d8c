package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/benaskins/leaf/internal/audit"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent boots and how they ended",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntP("lines", "n", 20, "number of entries to show")
	historyCmd.Flags().Bool("json", false, "output as JSON")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	n, _ := cmd.Flags().GetInt("lines")
	jsonOut, _ := cmd.Flags().GetBool("json")

	a, err := loadApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := audit.Tail(a.cfg.HistoryFile, n)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(entries)
	}
	if len(entries) == 0 {
		fmt.Println("No boots recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tGUEST\tOUTCOME\tEXIT\tACTION\tERROR")
	for _, e := range entries {
		code := "-"
		if e.ExitCode != nil {
			code = fmt.Sprint(*e.ExitCode)
		}
		guestKey := e.Guest
		if guestKey == "" {
			guestKey = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format(time.DateTime), guestKey, e.Outcome, code, e.Action, e.Error)
	}
	return w.Flush()
}
