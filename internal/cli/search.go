package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"hybridrag/internal/domain"
	"hybridrag/internal/service"
)

var searchCmd = &cobra.Command{
	Use:   "search <collection> <query>...",
	Short: "Hybrid dense+sparse search over one collection",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")
		if !cmd.Flags().Changed("limit") {
			limit = getConfig().Search.Limit
		}

		a, err := newApp(getConfig())
		if err != nil {
			return err
		}
		defer a.Close()

		query := strings.Join(args[1:], " ")
		results, err := a.retriever.Search(cmd.Context(), args[0], query, limit)
		if err != nil {
			return err
		}
		if asJSON {
			return writeJSON(cmd.OutOrStdout(), results)
		}
		if len(results) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No results.")
			return nil
		}
		for i, r := range results {
			printResult(cmd.OutOrStdout(), i+1, r)
		}
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <collection> [id]",
	Short: "Fetch a stored chunk by id (default: the collection descriptor)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		id := uint64(service.DescriptorID)
		if len(args) == 2 {
			v, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("%w: id %q", domain.ErrInvalidInput, args[1])
			}
			id = v
		}

		a, err := newApp(getConfig())
		if err != nil {
			return err
		}
		defer a.Close()

		r, err := a.retriever.GetByID(cmd.Context(), args[0], id)
		if err != nil {
			return err
		}
		if asJSON {
			return writeJSON(cmd.OutOrStdout(), r)
		}
		printResult(cmd.OutOrStdout(), 0, r)
		return nil
	},
}

func printResult(w io.Writer, rank int, r domain.SearchResult) {
	head := color.New(color.FgCyan, color.Bold)
	dim := color.New(color.Faint)
	if rank > 0 {
		head.Fprintf(w, "#%d  id=%d  score=%.4f\n", rank, r.ID, r.Score)
	} else {
		head.Fprintf(w, "id=%d\n", r.ID)
	}
	md := r.Metadata
	dim.Fprintf(w, "page %d  at (%.0f, %.0f)  size %g  color %s\n", md.Page+1, md.X, md.Y, md.Size, md.Color)
	fmt.Fprintf(w, "%s\n\n", r.Document)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	searchCmd.Flags().IntP("limit", "n", service.DefaultLimit, "maximum number of results")
	searchCmd.Flags().Bool("json", false, "print results as JSON")
	rootCmd.AddCommand(searchCmd)

	getCmd.Flags().Bool("json", false, "print the record as JSON")
	rootCmd.AddCommand(getCmd)
}
