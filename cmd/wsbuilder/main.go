// Command wsbuilder provisions or inspects language base workspaces
// outside the running broker daemon, for image-build pipelines and
// operational diagnostics.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sandkasten/broker/internal/registry"
	"github.com/sandkasten/broker/internal/workspace"
)

const defaultDataDir = "./data"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	dataDir := os.Getenv("BROKER_DATA_DIR")
	if dataDir == "" {
		dataDir = defaultDataDir
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	switch os.Args[1] {
	case "warm":
		if err := warm(dataDir, logger); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "list":
		listLanguages()
	case "status":
		if len(os.Args) < 3 {
			fmt.Fprintf(os.Stderr, "Usage: wsbuilder status <language>\n")
			os.Exit(1)
		}
		status(dataDir, os.Args[2])
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: wsbuilder <command>

Commands:
  warm              provision every registered language's base workspace
  list              list registered languages and their toolchain versions
  status <language> report a previously-warmed language's provisioning status
`)
}

// warm provisions every registered language's base workspace under
// dataDir, mirroring what the broker daemon runs once at startup.
func warm(dataDir string, logger *slog.Logger) error {
	mgr := workspace.New(dataDir, 3, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	start := time.Now()
	if err := mgr.EnsureBaseWorkspaces(ctx); err != nil {
		return fmt.Errorf("provision base workspaces: %w", err)
	}

	var degraded []string
	for _, d := range registry.All() {
		st := mgr.LanguageStatus(d.ID)
		fmt.Printf("%-12s %s\n", d.ID, st)
		if st == workspace.StatusDegraded {
			degraded = append(degraded, d.ID)
		}
	}
	fmt.Printf("done in %s\n", time.Since(start).Round(time.Millisecond))
	if len(degraded) > 0 {
		return fmt.Errorf("%d language(s) degraded: %v", len(degraded), degraded)
	}
	return nil
}

func listLanguages() {
	for _, d := range registry.All() {
		kind := "interpreted"
		if d.Compiled {
			kind = "compiled"
		}
		fmt.Printf("%-12s %-20s %-12s %s\n", d.ID, d.DisplayName, d.ToolchainVersion, kind)
	}
}

// status reports whether a language's base workspace directory exists
// on disk. It inspects the filesystem directly rather than going
// through workspace.Manager.LanguageStatus, which only tracks state
// for the lifetime of the process that ran warm.
func status(dataDir, languageID string) {
	if _, ok := registry.Lookup(languageID); !ok {
		fmt.Fprintf(os.Stderr, "unknown language: %s\n", languageID)
		os.Exit(1)
	}
	info, err := os.Stat(fmt.Sprintf("%s/venvs/%s", dataDir, languageID))
	switch {
	case err == nil && info.IsDir():
		fmt.Printf("%s: ready (%s)\n", languageID, dataDir)
	case os.IsNotExist(err):
		fmt.Printf("%s: pending\n", languageID)
	default:
		fmt.Printf("%s: unknown (%v)\n", languageID, err)
	}
}
