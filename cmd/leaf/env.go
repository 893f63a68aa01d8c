package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Manage isolated guest environments",
}

var envListCmd = &cobra.Command{
	Use:   "list",
	Short: "List environments and whether they are usable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")
		a, err := loadApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.envs.List()
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(list)
		}
		if len(list) == 0 {
			fmt.Printf("No environments in %s\n", a.envs.Root())
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "IDENTIFIER\tSTATUS\tEXECUTABLE")
		for _, e := range list {
			status := "ready"
			if !e.Valid {
				status = "broken"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", e.Identifier, status, e.Executable)
		}
		return w.Flush()
	},
}

var envRebuildCmd = &cobra.Command{
	Use:   "rebuild <identifier>",
	Short: "Destroy and recreate an environment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.envs.Invalidate(args[0]); err != nil {
			return err
		}
		exe, err := a.envs.Ensure(cmd.Context(), args[0], true)
		if err != nil {
			return err
		}
		fmt.Printf("Environment %s rebuilt: %s\n", args[0], exe)
		return nil
	},
}

var envRemoveCmd = &cobra.Command{
	Use:   "remove <identifier>",
	Short: "Remove an environment; the next boot rebuilds it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.envs.Invalidate(args[0]); err != nil {
			return err
		}
		fmt.Printf("Environment %s removed\n", args[0])
		return nil
	},
}

func init() {
	envListCmd.Flags().Bool("json", false, "output as JSON")
	envCmd.AddCommand(envListCmd, envRebuildCmd, envRemoveCmd)
	rootCmd.AddCommand(envCmd)
}
