package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// newWatchCmd creates the "watch" subcommand for re-planning on file changes.
func newWatchCmd(cfg envConfig) *cobra.Command {
	var (
		validateOnly bool
		debounce     time.Duration
		outputFormat string
		outputFile   string
	)

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Re-plan automatically on stack file changes",
		Long: `Watch monitors the stack directory and re-plans on every change.

The watch command:
- Monitors the directory tree for .hcl file changes
- Validates the stack on each change
- Re-plans if validation passes (unless --validate-only)
- Debounces rapid changes to avoid redundant runs

Each run gets a unique id so interleaved output in long sessions stays
attributable.

Examples:
    stackplan watch ./infra
    stackplan watch ./infra --validate-only
    stackplan watch ./infra --debounce 1s -o plan.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(args[0], watchOptions{
				validateOnly: validateOnly,
				debounce:     debounce,
				outputFormat: outputFormat,
				outputFile:   outputFile,
			})
		},
	}

	cmd.Flags().BoolVar(&validateOnly, "validate-only", false, "Only validate, skip plan output")
	cmd.Flags().DurationVar(&debounce, "debounce", cfg.WatchDebounce, "Debounce duration for rapid changes")
	cmd.Flags().StringVarP(&outputFormat, "format", "f", cfg.Format, "Output format for plan: json or yaml")
	cmd.Flags().StringVarP(&outputFile, "output", "o", cfg.Output, "Output file for plan (default: stdout)")

	return cmd
}

type watchOptions struct {
	validateOnly bool
	debounce     time.Duration
	outputFormat string
	outputFile   string
}

// runWatch monitors stack files and re-plans on changes.
func runWatch(dir string, opts watchOptions) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	if err := addDirRecursive(watcher, dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	fmt.Printf("Watching: %s\n", dir)

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Initial run
	fmt.Println("Running initial plan...")
	runWatchIteration(dir, opts)

	// Debounce timer
	var debounceTimer *time.Timer
	replanChan := make(chan struct{}, 1)

	fmt.Println("\nWatching for changes... (Ctrl+C to stop)")

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			// Only stack files trigger a run
			if !strings.HasSuffix(event.Name, ".hcl") {
				continue
			}

			// Only process write/create/remove events
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) == 0 {
				continue
			}

			// Debounce: reset timer on each change
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(opts.debounce, func() {
				select {
				case replanChan <- struct{}{}:
				default:
				}
			})

		case <-replanChan:
			fmt.Printf("\n[%s] Change detected, re-planning...\n", time.Now().Format("15:04:05"))
			runWatchIteration(dir, opts)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "Watch error: %v\n", err)

		case <-sigChan:
			fmt.Println("\nStopping watch...")
			return nil
		}
	}
}

// runWatchIteration runs one validate/plan cycle, reporting errors
// without stopping the watch loop.
func runWatchIteration(dir string, opts watchOptions) {
	runID := uuid.NewString()[:8]

	result := validateDir(dir)
	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "[%s] warning: %s\n", runID, w)
	}
	if !result.Success {
		for _, e := range result.Errors {
			fmt.Fprintf(os.Stderr, "[%s] error: %s\n", runID, e)
		}
		fmt.Printf("[%s] Validation failed.\n", runID)
		return
	}
	fmt.Printf("[%s] Validation passed (%d nodes).\n", runID, result.Nodes)

	if opts.validateOnly {
		return
	}

	plan, err := buildPlan(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[%s] plan failed: %v\n", runID, err)
		return
	}
	if err := writePlan(plan, opts.outputFormat, opts.outputFile); err != nil {
		fmt.Fprintf(os.Stderr, "[%s] write failed: %v\n", runID, err)
		return
	}
	if opts.outputFile != "" {
		fmt.Printf("[%s] Plan written to %s (%d entries).\n", runID, opts.outputFile, len(plan.Entries))
	}
}

// addDirRecursive adds a directory and all subdirectories to the watcher.
func addDirRecursive(watcher *fsnotify.Watcher, dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		// Skip hidden directories
		if strings.HasPrefix(info.Name(), ".") && path != dir {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}
