package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/beatwizard/storage"
)

var (
	similarLimit int
	similarJSON  bool
)

var similarCmd = &cobra.Command{
	Use:   "similar <beat-id>",
	Short: "List the stored beats most similar to a beat",
	Args:  cobra.ExactArgs(1),
	RunE:  runSimilar,
}

func init() {
	similarCmd.Flags().IntVarP(&similarLimit, "limit", "n", storage.DefaultSimilarLimit, "number of results")
	similarCmd.Flags().BoolVar(&similarJSON, "json", false, "print results as JSON")
}

func runSimilar(cmd *cobra.Command, args []string) error {
	store, err := storage.NewStore(appConfig.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	similar, err := store.FetchSimilar(cmd.Context(), args[0], similarLimit)
	if err != nil {
		return err
	}

	if similarJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(similar)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tBPM\tTITLE\tID")
	for _, s := range similar {
		fmt.Fprintf(tw, "%.3f\t%.1f\t%s\t%s\n", s.Score, s.BPM, s.Title, s.BeatID)
	}
	return tw.Flush()
}
