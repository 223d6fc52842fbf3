package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/RyanBlaney/beatwizard/algorithms/temporal"
	"github.com/RyanBlaney/beatwizard/features"
	"github.com/RyanBlaney/beatwizard/logging"
	"github.com/RyanBlaney/beatwizard/storage"
)

var (
	concurrency int
	storeBeats  bool
	outputPath  string
	quiet       bool
)

var supportedExts = map[string]bool{
	".wav":  true,
	".flac": true,
	".mp3":  true,
	".m4a":  true,
	".aac":  true,
	".ogg":  true,
	".opus": true,
	".aiff": true,
}

// fileResult is the per-file output of the analyze command
type fileResult struct {
	Path          string             `json:"path"`
	Size          string             `json:"size"`
	Analysis      *features.Analysis `json:"analysis,omitempty"`
	TempoCategory string             `json:"tempo_category,omitempty"`
	BeatID        string             `json:"beat_id,omitempty"`
	Error         string             `json:"error,omitempty"`

	bytes uint64
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file|dir>...",
	Short: "Analyze audio files and print their feature vectors as JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().IntVarP(&concurrency, "concurrency", "j", runtime.NumCPU(), "number of files analyzed concurrently")
	analyzeCmd.Flags().BoolVar(&storeBeats, "store", false, "store every analyzed beat in the database")
	analyzeCmd.Flags().StringVarP(&outputPath, "output", "o", "", "write JSON results to a file instead of stdout")
	analyzeCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "no progress bar or summary")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	files, err := collectAudioFiles(args)
	if err != nil {
		return fmt.Errorf("collecting audio files: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no supported audio files found")
	}

	var store *storage.Store
	if storeBeats {
		store, err = storage.NewStore(appConfig.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	analyzer := features.NewAnalyzer(appConfig.Loader, appConfig.Features)

	start := time.Now()
	results := analyzeFiles(cmd.Context(), analyzer, store, files)

	var out io.Writer = cmd.OutOrStdout()
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("writing results: %w", err)
	}

	if !quiet {
		printSummary(cmd.ErrOrStderr(), results, time.Since(start))
	}
	return cmd.Context().Err()
}

// analyzeFiles runs a worker pool over the files. Results keep the input
// order.
func analyzeFiles(ctx context.Context, analyzer *features.Analyzer, store *storage.Store, files []string) []*fileResult {
	var bar *progressbar.ProgressBar
	if !quiet {
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetDescription("Analyzing beats"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowIts(),
			progressbar.OptionClearOnFinish(),
		)
	}

	workers := max(concurrency, 1)
	jobs := make(chan int, len(files))
	results := make([]*fileResult, len(files))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = analyzeOne(ctx, analyzer, store, files[idx])
				if bar != nil {
					bar.Add(1)
				}
			}
		}()
	}

	for i := range files {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if bar != nil {
		bar.Finish()
	}
	return results
}

func analyzeOne(ctx context.Context, analyzer *features.Analyzer, store *storage.Store, path string) *fileResult {
	result := &fileResult{Path: path}

	if info, err := os.Stat(path); err == nil {
		result.bytes = uint64(info.Size())
		result.Size = humanize.Bytes(result.bytes)
	}

	if err := ctx.Err(); err != nil {
		result.Error = err.Error()
		return result
	}

	analysis, err := analyzer.AnalyzeFile(ctx, path)
	if err != nil {
		logging.Warn("Analysis failed", logging.Fields{"file": path, "error": err.Error()})
		result.Error = err.Error()
		return result
	}
	result.Analysis = analysis
	result.TempoCategory = temporal.ClassifyTempoCategory(analysis.Features.Tempo)

	if store != nil {
		title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		id, err := store.Store(ctx, storage.BeatMetadata{
			Title:        title,
			KeySignature: analysis.Key,
			StorageURL:   path,
		}, analysis.Features)
		if err != nil {
			result.Error = fmt.Sprintf("storing beat: %v", err)
			return result
		}
		result.BeatID = id
	}

	return result
}

func printSummary(w io.Writer, results []*fileResult, elapsed time.Duration) {
	var failed int
	var total uint64
	var audio float64
	for _, r := range results {
		total += r.bytes
		if r.Error != "" {
			failed++
			continue
		}
		audio += r.Analysis.Features.Duration
	}

	fmt.Fprintf(w, "Analyzed %d file(s), %s of input, %s of audio in %s",
		len(results), humanize.Bytes(total),
		(time.Duration(audio * float64(time.Second))).Round(time.Second), elapsed.Round(time.Millisecond))
	if failed > 0 {
		fmt.Fprintf(w, ", %d failed", failed)
	}
	fmt.Fprintln(w)
}

// collectAudioFiles expands directories into the supported audio files
// they contain
func collectAudioFiles(paths []string) ([]string, error) {
	var files []string
	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, root)
			continue
		}

		err = filepath.Walk(root, func(filePath string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			if supportedExts[strings.ToLower(filepath.Ext(filePath))] {
				files = append(files, filePath)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}
