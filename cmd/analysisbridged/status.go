package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"analysisbridge/internal/bridge"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Start the bridge against a config and print a one-shot inspector summary",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := loadConfigOrDefault(cfgPath)
	if err != nil {
		return err
	}

	b, cleanup, err := buildBridge(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	// Give the checker pool a brief window to finish spawning before the
	// snapshot is taken, since Start() returns once the process forks, not
	// once it has answered a first request.
	time.Sleep(50 * time.Millisecond)

	printInspectorSnapshot(cmd.OutOrStdout(), b.Inspect(), useColor(cmd, os.Stdout))
	return nil
}

func printInspectorSnapshot(out io.Writer, snap bridge.InspectorSnapshot, colorize bool) {
	label := fmt.Sprint
	if colorize {
		label = color.New(color.FgCyan, color.Bold).Sprint
	}

	fmt.Fprintf(out, "%s %s\n", label("status:"), snap.Status)
	fmt.Fprintf(out, "%s entries=%d bytes=%d hitRate=%.2f evictions=%d\n",
		label("cache:"), snap.CacheStats.Entries, snap.CacheStats.TotalBytes, snap.CacheStats.HitRate, snap.CacheStats.Evictions)
	fmt.Fprintf(out, "%s %d dependency edges\n", label("depgraph:"), len(snap.Dependencies))
	fmt.Fprintf(out, "%s %d workers, avg response %.1fms\n", label("checker:"), len(snap.CheckerWorkers), snap.AvgCheckerMs)
	for _, w := range snap.CheckerWorkers {
		fmt.Fprintf(out, "  worker[%d] pid=%d busy=%v requests=%d\n", w.Slot, w.PID, w.Busy, w.RequestCount)
	}
	fmt.Fprintf(out, "%s %d running processes\n", label("linter:"), snap.LinterRunning)
	fmt.Fprintf(out, "%s %d recent traces, %d recent log entries\n", label("inspector:"), len(snap.RecentTraces), len(snap.RecentLogs))
}
