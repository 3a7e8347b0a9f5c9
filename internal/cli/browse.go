package cli

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"hybridrag/internal/tui"
)

var browseCmd = &cobra.Command{
	Use:   "browse <collection>",
	Short: "Interactive search over one collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		if !cmd.Flags().Changed("limit") {
			limit = getConfig().Search.Limit
		}
		a, err := newApp(getConfig())
		if err != nil {
			return err
		}
		defer a.Close()

		p := tea.NewProgram(tui.New(a.retriever, args[0], limit), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
		_, err = p.Run()
		return err
	},
}

func init() {
	browseCmd.Flags().IntP("limit", "n", 10, "results per query")
	rootCmd.AddCommand(browseCmd)
}
