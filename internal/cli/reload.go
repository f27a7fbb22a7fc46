package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// defaultPidFile mirrors the server.pid_file default in pkg/config.
const defaultPidFile = "/var/run/oer.pid"

func newReloadCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Ask a running gateway to reload its rules (SIGHUP)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := readPID(cfgPath)
			if err != nil {
				return err
			}
			if err := syscall.Kill(pid, syscall.SIGHUP); err != nil {
				return fmt.Errorf("send SIGHUP pid=%d: %w", pid, err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "reload signal sent to pid %d\n", pid)
			return err
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", defaultConfigPath, "config yaml path")
	return cmd
}

func readPID(cfgPath string) (int, error) {
	pidFile, err := pidFileFromConfig(cfgPath)
	if err != nil {
		return 0, err
	}
	// #nosec G304 -- pid file path comes from trusted config/env.
	b, err := os.ReadFile(pidFile)
	if err != nil {
		return 0, fmt.Errorf("read pid file %q: %w", pidFile, err)
	}
	s := strings.TrimSpace(string(b))
	pid, err := strconv.Atoi(s)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid in %q: %q", pidFile, s)
	}
	return pid, nil
}

// pidFileFromConfig reads only server.pid_file so a reload works even when
// the rest of the config no longer validates.
func pidFileFromConfig(cfgPath string) (string, error) {
	if v := strings.TrimSpace(os.Getenv("OER_PID_FILE")); v != "" {
		return v, nil
	}
	path := strings.TrimSpace(cfgPath)
	if path == "" {
		return defaultPidFile, nil
	}
	// #nosec G304 -- config path comes from trusted flag.
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read config %q: %w", path, err)
	}
	var partial struct {
		Server struct {
			PidFile string `yaml:"pid_file"`
		} `yaml:"server"`
	}
	if err := yaml.Unmarshal(b, &partial); err != nil {
		return "", fmt.Errorf("parse config %q: %w", path, err)
	}
	if v := strings.TrimSpace(partial.Server.PidFile); v != "" {
		return v, nil
	}
	return defaultPidFile, nil
}
