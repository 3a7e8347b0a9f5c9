package cli

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"hybridrag/internal/chunkfile"
	"hybridrag/internal/domain"
	"hybridrag/internal/service"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Index one document, or a saved chunk file, into collections",
	Long: `Loads and assembles the file, creates the collection when missing and
inserts the chunks. With --chunks, every collection of a file written by
"extract --out" is ingested instead.

Inserting into a collection that already holds the same chunks adds them
again and prints a warning; pass --recreate to start from an empty collection.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		collection, _ := cmd.Flags().GetString("collection")
		chunksPath, _ := cmd.Flags().GetString("chunks")
		recreate, _ := cmd.Flags().GetBool("recreate")

		a, err := newApp(getConfig())
		if err != nil {
			return err
		}
		defer a.Close()
		in := a.ingestor(recreate, 0)

		var results []service.JobResult
		switch {
		case chunksPath != "":
			if len(args) > 0 {
				return fmt.Errorf("pass either a file or --chunks, not both")
			}
			book, err := chunkfile.Load(chunksPath)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(book))
			for name := range book {
				names = append(names, name)
			}
			slices.Sort(names)
			for _, name := range names {
				res := in.Store(cmd.Context(), name, book[name])
				res.Path = chunksPath
				results = append(results, res)
			}
		case len(args) == 1:
			if collection == "" {
				return fmt.Errorf("--collection is required when ingesting a file")
			}
			results = in.Run(cmd.Context(), []service.Job{{Collection: collection, Path: args[0]}})
		default:
			return fmt.Errorf("nothing to ingest: pass a file or --chunks")
		}
		return report(cmd.OutOrStdout(), results)
	},
}

// report prints one line per job and returns the joined job errors.
func report(w io.Writer, results []service.JobResult) error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(w, "FAIL  %s  %s: %v\n", r.Collection, r.Path, r.Err)
			errs = append(errs, fmt.Errorf("%s: %w", r.Collection, r.Err))
			continue
		}
		status := "appended"
		if r.Created {
			status = "created"
		}
		fmt.Fprintf(w, "OK    %s  %d chunks, %d inserted (%s)\n", r.Collection, r.Chunks, r.Insert.Inserted, status)
		if r.Insert.Warning != nil {
			fmt.Fprintf(w, "      warning: %v\n", r.Insert.Warning)
		}
	}
	return errors.Join(errs...)
}

var ingestBookCmd = &cobra.Command{
	Use:   "ingest-book <dir>",
	Short: "Index every chapter file of a textbook into per-chapter collections",
	Long: `Each .pdf or .json file in <dir> whose name ends in a chapter number
(e.g. chapter-3.pdf) is ingested into <grade>_<subject>_<chapter>. Chapters are
processed concurrently. With --out, the chunks are saved instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		grade, _ := cmd.Flags().GetString("grade")
		subject, _ := cmd.Flags().GetString("subject")
		out, _ := cmd.Flags().GetString("out")
		recreate, _ := cmd.Flags().GetBool("recreate")
		concurrency, _ := cmd.Flags().GetInt("concurrency")

		jobs, err := service.BookJobs(args[0], grade, subject)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			return fmt.Errorf("no chapter files found in %s", args[0])
		}

		if out != "" {
			return saveBook(cmd, jobs, out)
		}

		a, err := newApp(getConfig())
		if err != nil {
			return err
		}
		defer a.Close()
		return report(cmd.OutOrStdout(), a.ingestor(recreate, concurrency).Run(cmd.Context(), jobs))
	},
}

func saveBook(cmd *cobra.Command, jobs []service.Job, out string) error {
	asm := newAssembler(getConfig().Chunker)
	book := chunkfile.Book{}
	for _, j := range jobs {
		if _, dup := book[j.Collection]; dup {
			return fmt.Errorf("%w: %s: chapter %q already produced by an earlier file", domain.ErrInvalidInput, j.Path, j.Collection)
		}
		_, chunks, err := assembleFile(cmd.Context(), asm, j.Path)
		if err != nil {
			return fmt.Errorf("%s: %w", j.Collection, err)
		}
		book[j.Collection] = chunks
	}
	if err := chunkfile.Save(out, book); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %d chapters to %s\n", len(book), out)
	return nil
}

func init() {
	ingestCmd.Flags().String("collection", "", "target collection")
	ingestCmd.Flags().String("chunks", "", "ingest a chunk file written by extract --out")
	ingestCmd.Flags().Bool("recreate", false, "empty the collection before inserting")
	rootCmd.AddCommand(ingestCmd)

	ingestBookCmd.Flags().String("grade", "", "grade of the textbook")
	ingestBookCmd.Flags().String("subject", "", "subject of the textbook")
	ingestBookCmd.Flags().StringP("out", "o", "", "save chunks to this JSON file instead of indexing")
	ingestBookCmd.Flags().Bool("recreate", false, "empty each collection before inserting")
	ingestBookCmd.Flags().Int("concurrency", 0, "chapters ingested at once (default from config)")
	_ = ingestBookCmd.MarkFlagRequired("grade")
	_ = ingestBookCmd.MarkFlagRequired("subject")
	rootCmd.AddCommand(ingestBookCmd)
}
