package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"hybridrag/internal/service"
)

var collectionsCmd = &cobra.Command{
	Use:     "collections",
	Aliases: []string{"col"},
	Short:   "Create, inspect and delete collections",
}

var collectionsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a collection sized for the configured embedder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recreate, _ := cmd.Flags().GetBool("recreate")
		a, err := newApp(getConfig())
		if err != nil {
			return err
		}
		defer a.Close()

		if recreate {
			if err := a.collections.Recreate(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recreated %s\n", args[0])
			return nil
		}
		created, err := a.collections.Create(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if created == service.NoOp {
			fmt.Fprintf(cmd.OutOrStdout(), "%s already exists\n", args[0])
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", created)
		return nil
	},
}

var collectionsExistsCmd = &cobra.Command{
	Use:   "exists <name>",
	Short: "Report whether a collection exists",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(getConfig())
		if err != nil {
			return err
		}
		defer a.Close()

		ok, err := a.collections.Exists(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ok)
		return nil
	},
}

var collectionsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a collection and every point in it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(getConfig())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.collections.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	},
}

func init() {
	collectionsCreateCmd.Flags().Bool("recreate", false, "delete the collection first if it exists")
	collectionsCmd.AddCommand(collectionsCreateCmd, collectionsExistsCmd, collectionsDeleteCmd)
	rootCmd.AddCommand(collectionsCmd)
}
