package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"coffeeleaf/internal/analytics"
	"coffeeleaf/internal/identity"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List the storage keys owned by a namespace",
	RunE: func(cmd *cobra.Command, args []string) error {
		ns := namespace()
		keys, err := store.ListKeys(cmd.Context(), ns)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s\n", color.CyanString("namespace:"), ns.String())
		if len(keys) == 0 {
			fmt.Println(color.YellowString("no keys"))
			return nil
		}
		for _, k := range keys {
			fmt.Printf("  %s\n", k)
		}
		fmt.Printf("\n%d key(s)\n", len(keys))
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every key of a namespace",
	Long: `Remove every key of a namespace in one storage call.

Examples:
  leafctl clear                # wipe the guest namespace
  leafctl clear --user 42      # wipe user 42`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ns := namespace()
		n, err := store.ClearNamespace(cmd.Context(), ns)
		if err != nil {
			return err
		}
		fmt.Printf("%s removed %d key(s) from %s\n", color.GreenString("✓"), n, ns.String())
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy every key from one namespace into another",
	Long: `Copy every key from one namespace into another, overwriting keys the
target already has under the same name. Source keys are left in place.

Examples:
  leafctl migrate --to 42              # attribute guest data to user 42
  leafctl migrate --from 7 --to 42     # copy user 7 into user 42`,
	RunE: func(cmd *cobra.Command, args []string) error {
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		src, dst := identity.ForUser(from), identity.ForUser(to)
		if src == dst {
			return fmt.Errorf("source and target are both %s", src.String())
		}
		n, err := store.MigrateNamespace(cmd.Context(), src, dst)
		if err != nil {
			return err
		}
		fmt.Printf("%s copied %d key(s) from %s to %s\n", color.GreenString("✓"), n, src.String(), dst.String())
		return nil
	},
}

var legacyCmd = &cobra.Command{
	Use:   "legacy",
	Short: "Move un-namespaced keys from older app versions into a user namespace",
	RunE: func(cmd *cobra.Command, args []string) error {
		ns := namespace()
		if ns.IsGuest() {
			return fmt.Errorf("--user is required")
		}
		n, err := store.MigrateLegacy(cmd.Context(), ns)
		if err != nil {
			return err
		}
		if n == 0 {
			fmt.Println(color.YellowString("nothing to migrate"))
			return nil
		}
		fmt.Printf("%s moved %d legacy key(s) into %s\n", color.GreenString("✓"), n, ns.String())
		return nil
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Remove message logs whose conversation no longer exists",
	Long: `Remove message logs whose conversation is missing from the namespace's
conversation list. Without --user every namespace is swept.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if !cmd.Flags().Changed("user") {
			n, err := store.ReconcileAll(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%s removed %d orphaned message log(s)\n", color.GreenString("✓"), n)
			return nil
		}
		ns := namespace()
		orphans, err := store.ReconcileOrphans(ctx, ns)
		if err != nil {
			return err
		}
		for _, id := range orphans {
			fmt.Printf("  %s %s\n", color.RedString("-"), id)
		}
		fmt.Printf("%s removed %d orphaned message log(s) from %s\n", color.GreenString("✓"), len(orphans), ns.String())
		return nil
	},
}

var namespacesCmd = &cobra.Command{
	Use:   "namespaces",
	Short: "List every namespace that holds data",
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := store.Namespaces(cmd.Context())
		if err != nil {
			return err
		}
		for _, ns := range list {
			fmt.Println(ns.String())
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize a namespace's scan history",
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := loadCatalog()
		if err != nil {
			return err
		}
		records, err := store.ScanHistory(cmd.Context(), namespace())
		if err != nil {
			return err
		}
		stats := analytics.ComputeStats(records, catalog)
		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			out, err := stats.ToJSON()
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		}
		fmt.Println(color.CyanString(namespace().String()))
		fmt.Println(stats.GenerateReportSummary())
		return nil
	},
}

func init() {
	migrateCmd.Flags().String("from", "", "source user id (blank means guest)")
	migrateCmd.Flags().String("to", "", "target user id (blank means guest)")
	statsCmd.Flags().Bool("json", false, "print stats as JSON")

	rootCmd.AddCommand(keysCmd, clearCmd, migrateCmd, legacyCmd, reconcileCmd, namespacesCmd, statsCmd)
}
