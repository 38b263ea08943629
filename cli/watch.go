package cli

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kyo-tom/ai-embedding-udf/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Watch a directory and submit parse jobs for new documents",
	Long: `Watch a local directory that mirrors an object-storage prefix.

When a file with the configured extension appears (and has settled for
the debounce window), its path is mapped onto the configured source
prefix and a parse job is submitted. Jobs run concurrently up to
watch.max_concurrent_jobs. Press Ctrl+C to stop.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve watch directory: %w", err)
	}

	cfg, _, err := loadProjectConfig()
	if err != nil {
		return err
	}

	client, err := cfg.ParserDescriptor().Instantiate()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := watcher.New(dir, cfg.Watch.Extension, time.Duration(cfg.Watch.DebounceMs)*time.Millisecond)
	if err != nil {
		return fmt.Errorf("failed to initialize watcher: %w", err)
	}

	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	fmt.Printf("Watching %s for %s files... (Press Ctrl+C to stop)\n", dir, cfg.Watch.Extension)

	g := &errgroup.Group{}
	g.SetLimit(cfg.Watch.MaxConcurrentJobs)

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nShutting down, waiting for in-flight jobs...")
			return g.Wait()

		case event := <-w.Events():
			rel, err := filepath.Rel(dir, event.Path)
			if err != nil {
				log.Printf("skipping %s: %v", event.Path, err)
				continue
			}

			source := path.Join(cfg.Watch.SourcePrefix, filepath.ToSlash(rel))
			stem := strings.TrimSuffix(path.Base(source), path.Ext(source))
			output := path.Join(cfg.Watch.OutputPrefix, stem+".md")

			g.Go(func() error {
				log.Printf("Submitting parse job for %s", source)
				result, err := client.ParseFile(ctx, source, output)
				if err != nil {
					log.Printf("Parse failed for %s: %v", source, err)
					return nil
				}
				log.Printf("Parsed %s -> %s", source, result)
				return nil
			})
		}
	}
}
