package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/k0kubun/pp"
	"github.com/spf13/cobra"

	"hybridrag/internal/chunker"
	"hybridrag/internal/chunkfile"
	"hybridrag/internal/domain"
	"hybridrag/internal/source"
)

var extractCmd = &cobra.Command{
	Use:   "extract <file>...",
	Short: "Assemble chunks from PDF or JSON page dumps without indexing them",
	Long: `Runs extraction, reading-order sorting, normalisation and activity merging
over each file. Use --out to save the chunks for a later "ingest --chunks".`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		dump, _ := cmd.Flags().GetBool("dump")
		collection, _ := cmd.Flags().GetString("collection")
		if collection != "" && len(args) > 1 {
			return fmt.Errorf("--collection needs exactly one input file")
		}

		asm := newAssembler(getConfig().Chunker)
		book := chunkfile.Book{}
		for _, path := range args {
			doc, chunks, err := assembleFile(cmd.Context(), asm, path)
			if err != nil {
				return err
			}
			name := collection
			if name == "" {
				name = doc.Name
			}
			if _, dup := book[name]; dup {
				return fmt.Errorf("%w: %s: collection %q already produced by an earlier input", domain.ErrInvalidInput, path, name)
			}
			book[name] = chunks

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s: %d chunks from %d pages\n", name, len(chunks), len(doc.Pages))
			switch {
			case dump:
				_, _ = pp.Fprintln(w, chunks)
			case out == "":
				for i, c := range chunks {
					fmt.Fprintf(w, "%4d  p%d (%.0f,%.0f) %g %s  %s\n", i, c.Page+1, c.X, c.Y, c.Size, c.Color, oneLine(c.Text, 80))
				}
			}
		}

		if out != "" {
			if err := chunkfile.Save(out, book); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %d collections to %s\n", len(book), out)
		}
		return nil
	},
}

// assembleFile loads path with the loader for its extension and assembles it.
func assembleFile(ctx context.Context, asm *chunker.Assembler, path string) (domain.Document, []domain.Chunk, error) {
	src, err := source.ForPath(path)
	if err != nil {
		return domain.Document{}, nil, err
	}
	doc, err := src.Load(ctx, path)
	if err != nil {
		return domain.Document{}, nil, fmt.Errorf("load %s: %w", path, err)
	}
	chunks, err := asm.Assemble(ctx, doc)
	if err != nil {
		return doc, nil, err
	}
	return doc, chunks, nil
}

func oneLine(s string, width int) string {
	s = strings.ReplaceAll(s, "\n", " / ")
	if r := []rune(s); len(r) > width {
		return string(r[:width-1]) + "…"
	}
	return s
}

func init() {
	extractCmd.Flags().StringP("out", "o", "", "write chunks to this JSON file")
	extractCmd.Flags().Bool("dump", false, "pretty-print every chunk")
	extractCmd.Flags().String("collection", "", "key the chunks under this collection name")
	rootCmd.AddCommand(extractCmd)
}
