package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/r9s-ai/open-endpoint-router/pkg/config"
	"github.com/r9s-ai/open-endpoint-router/pkg/rules"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate config or rule files",
	}
	cmd.AddCommand(newValidateConfigCmd(), newValidateRulesCmd())
	return cmd
}

func newValidateConfigCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Validate the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(strings.TrimSpace(cfgPath))
			if err != nil {
				return fmt.Errorf("config %s: %w", cfgPath, err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "config ok: %s (resolver=%s)\n", cfgPath, cfg.Resolver.Kind)
			return err
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", defaultConfigPath, "config yaml path")
	return cmd
}

func newValidateRulesCmd() *cobra.Command {
	var (
		cfgPath string
		dir     string
	)
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Validate every rule file in the rules directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d := strings.TrimSpace(dir)
			if d == "" {
				cfg, err := config.Load(strings.TrimSpace(cfgPath))
				if err != nil {
					return fmt.Errorf("config %s: %w", cfgPath, err)
				}
				d = cfg.Rules.Dir
			}
			return runValidateRules(cmd.OutOrStdout(), d)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", defaultConfigPath, "config yaml path (for rules.dir)")
	cmd.Flags().StringVar(&dir, "dir", "", "rules directory (overrides config)")
	return cmd
}

func runValidateRules(w io.Writer, dir string) error {
	set, err := rules.LoadDir(dir)
	if err == nil {
		_, err = fmt.Fprintf(w, "rules ok: %s (%d rules)\n", dir, set.Len())
		return err
	}
	var issue *rules.ValidationIssue
	if !errors.As(err, &issue) {
		return err
	}
	for _, line := range strings.Split(err.Error(), "\n") {
		_, _ = fmt.Fprintf(w, "invalid: %s\n", line)
	}
	return fmt.Errorf("rules %s: validation failed", dir)
}
