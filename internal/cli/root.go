package cli

import (
	"fmt"
	"os"
	"strings"
)

const defaultHost = "http://127.0.0.1:8217"

const usage = `cw - cookiewatch

Tracks claimed GitHub issues and calls out cookie-licking: claims with
no pull request get nudged after three days and released after seven.

Usage:
  cw [global flags] <command> [flags]

Commands:
  daemon     Manage the daemon (start, status, stop)
  login      Authenticate with GitHub
  logout     Remove the stored GitHub token
  scan       Scan a repository for claim comments
  sweep      Release claims past their grace period
  nudge      Nudge a claim by ID, or --all for every eligible claim
  release    Manually release a claim
  complete   Mark a claim completed
  list       List claims
  show       Show one claim with its history
  board      Show the reliability board (--top, --worst)
  repos      List tracked repositories
  activity   Show recent activity
  db         Database migration tools (version, check, downgrade)
  help       Show this help
  version    Show version

Global Flags:
  --host URL     Daemon URL (default: $COOKIEWATCH_HOST or http://127.0.0.1:8217)
  --repo NAME    Repository owner/name (default: auto-detect from git remote)
  --pretty       Use pretty-printed output instead of JSON

Run 'cw <command> --help' for more information on a command.`

// globalFlags holds flags that are available to all subcommands.
type globalFlags struct {
	host   string
	repo   string
	pretty bool
}

// parseGlobalFlags extracts global flags from the front of the argument list
// and returns the remaining args. Global flags must come before the subcommand.
func parseGlobalFlags(args []string) (globalFlags, []string) {
	gf := globalFlags{
		host: os.Getenv("COOKIEWATCH_HOST"),
	}
	if gf.host == "" {
		gf.host = defaultHost
	}

	remaining := args
	for len(remaining) > 0 {
		switch {
		case remaining[0] == "--pretty":
			gf.pretty = true
			remaining = remaining[1:]
		case remaining[0] == "--host" && len(remaining) > 1:
			gf.host = remaining[1]
			remaining = remaining[2:]
		case strings.HasPrefix(remaining[0], "--host="):
			gf.host = strings.TrimPrefix(remaining[0], "--host=")
			remaining = remaining[1:]
		case remaining[0] == "--repo" && len(remaining) > 1:
			gf.repo = remaining[1]
			remaining = remaining[2:]
		case strings.HasPrefix(remaining[0], "--repo="):
			gf.repo = strings.TrimPrefix(remaining[0], "--repo=")
			remaining = remaining[1:]
		default:
			return gf, remaining
		}
	}

	return gf, remaining
}

// resolveRepo returns the repo from the global flag, or tries auto-detection
// from the current directory's git remote. Returns "" if neither works.
func resolveRepo(gf globalFlags) string {
	if gf.repo != "" {
		return gf.repo
	}
	if detected, err := detectRepo(); err == nil {
		return detected
	}
	return ""
}

// newClient creates a daemon HTTP client from the global flags.
func newClient(gf globalFlags) *Client {
	return NewClient(gf.host)
}

// Run dispatches the CLI based on the provided arguments.
func Run(args []string, version string) error {
	gf, remaining := parseGlobalFlags(args)

	if len(remaining) == 0 {
		fmt.Println(usage)
		return nil
	}

	cmd := remaining[0]
	subArgs := remaining[1:]

	switch cmd {
	case "help", "--help", "-h":
		fmt.Println(usage)
		return nil
	case "version", "--version", "-v":
		fmt.Printf("cw version %s\n", version)
		return nil
	case "daemon":
		return runDaemon(subArgs, gf)
	case "login":
		return runLogin(subArgs, gf)
	case "logout":
		return runLogout(subArgs, gf)
	case "scan":
		return runScan(subArgs, gf)
	case "sweep":
		return runSweep(subArgs, gf)
	case "nudge":
		return runNudge(subArgs, gf)
	case "release":
		return runRelease(subArgs, gf)
	case "complete":
		return runComplete(subArgs, gf)
	case "list":
		return runList(subArgs, gf)
	case "show":
		return runShow(subArgs, gf)
	case "board":
		return runBoard(subArgs, gf)
	case "repos":
		return runRepos(subArgs, gf)
	case "activity":
		return runActivity(subArgs, gf)
	case "db":
		return runDB(subArgs, gf)
	default:
		return fmt.Errorf("unknown command: %s\nRun 'cw help' for usage", strings.TrimSpace(cmd))
	}
}
