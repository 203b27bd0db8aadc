package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/jmaddaus/cookiewatch/internal/config"
	"github.com/jmaddaus/cookiewatch/internal/daemon"
)

func runDaemon(args []string, gf globalFlags) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: cw daemon <start|status|stop>")
	}
	switch args[0] {
	case "start":
		return runDaemonStart(gf)
	case "status":
		return runDaemonStatus(gf)
	case "stop":
		return runDaemonStop(gf)
	default:
		return fmt.Errorf("unknown daemon subcommand: %s\nUsage: cw daemon <start|status|stop>", args[0])
	}
}

func runDaemonStart(gf globalFlags) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	d, err := daemon.New(cfg, log)
	if err != nil {
		return err
	}
	return d.Run(context.Background())
}

func runDaemonStatus(gf globalFlags) error {
	client := newClient(gf)
	health, err := client.Health()
	if err != nil {
		return fmt.Errorf("daemon not running at %s; start with: cw daemon start", gf.host)
	}

	if gf.pretty {
		status, _ := health["status"].(string)
		fmt.Printf("Daemon status: %s\n", status)
		if storage, ok := health["storage"].(string); ok {
			fmt.Printf("Storage:       %s\n", storage)
		}
		if driver, ok := health["driver"].(string); ok {
			fmt.Printf("Driver:        %s\n", driver)
		}
		if uptime, ok := health["uptime"].(string); ok {
			fmt.Printf("Uptime:        %s\n", uptime)
		}
	} else {
		printJSON(health)
	}
	return nil
}

func runDaemonStop(gf globalFlags) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pid, err := daemon.ReadPIDFile(cfg)
	if err != nil {
		return fmt.Errorf("read PID file: %w", err)
	}
	if pid == 0 {
		return fmt.Errorf("no PID file found; daemon not running?")
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal process %d: %w", pid, err)
	}

	// Give the daemon a moment to shut down and remove its PID file.
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if p, _ := daemon.ReadPIDFile(cfg); p == 0 {
			printMessage(fmt.Sprintf("daemon (pid %d) stopped", pid), gf.pretty)
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("daemon (pid %d) did not stop within 10s", pid)
}

// runDaemonBackground starts the daemon as a detached child process with
// output redirected to the daemon log file.
func runDaemonBackground(gf globalFlags) error {
	if _, err := newClient(gf).Health(); err == nil {
		return fmt.Errorf("daemon already running at %s", gf.host)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.EnsureDataDir(cfg); err != nil {
		return fmt.Errorf("ensure data dir: %w", err)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("find executable: %w", err)
	}

	logFile, err := os.OpenFile(daemon.LogFilePath(cfg), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	cmd := exec.Command(exe, "daemon", "start")
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	setSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon process: %w", err)
	}
	// Detach: the child outlives this process.
	return cmd.Process.Release()
}

// waitForDaemon polls the health endpoint until the daemon responds or the
// timeout elapses.
func waitForDaemon(client *Client, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, err := client.Health(); err == nil {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not respond within %s", timeout)
}
