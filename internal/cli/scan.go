package cli

import (
	"flag"
	"fmt"
	"strings"
	"time"
)

func runScan(args []string, gf globalFlags) error {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	noStart := fs.Bool("no-start", false, "Do not auto-start the daemon")

	if err := fs.Parse(reorderArgs(args)); err != nil {
		return err
	}

	// The repo comes from the positional arg, the global flag, or git
	// remote detection, in that order.
	repo := fs.Arg(0)
	if repo == "" {
		repo = resolveRepo(gf)
	}
	if repo == "" {
		return fmt.Errorf("could not determine repository; use: cw scan owner/name")
	}
	if parts := strings.Split(repo, "/"); len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("invalid repo format %q, expected owner/name", repo)
	}

	client := newClient(gf)

	// Auto-start the daemon in the background if it isn't running.
	if _, err := client.Health(); err != nil {
		if *noStart {
			return fmt.Errorf("daemon not running at %s; start with: cw daemon start", gf.host)
		}
		fmt.Println("Daemon not running. Starting in background...")
		if startErr := runDaemonBackground(gf); startErr != nil {
			return fmt.Errorf("auto-start daemon: %w\nStart it manually with: cw daemon start", startErr)
		}
		if err := waitForDaemon(client, 10*time.Second); err != nil {
			return fmt.Errorf("daemon started but not responding: %w", err)
		}
	}

	result, err := client.Scan(repo)
	if err != nil {
		return err
	}

	if gf.pretty {
		fmt.Println(result.Message)
		if result.Scan != nil && result.Scan.Skipped > 0 {
			fmt.Printf("Warning: %d issues skipped (comment fetch failed).\n", result.Scan.Skipped)
		}
	} else {
		printJSON(result)
	}
	return nil
}
