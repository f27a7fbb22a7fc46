package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/r9s-ai/open-endpoint-router/internal/server"
	"github.com/r9s-ai/open-endpoint-router/pkg/config"
)

type resolveOptions struct {
	cfgPath string
	in      server.ResolveInput
	asJSON  bool
	timeout time.Duration
}

func newResolveCmd() *cobra.Command {
	opts := resolveOptions{cfgPath: defaultConfigPath}
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve the endpoint for a service without sending a request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&opts.cfgPath, "config", "c", defaultConfigPath, "config yaml path")
	fs.StringVarP(&opts.in.Service, "service", "s", "", "service name")
	fs.StringVarP(&opts.in.Region, "region", "r", "", "region")
	fs.StringVar(&opts.in.Tenant, "tenant", "", "tenant label")
	fs.BoolVar(&opts.in.FIPS, "fips", false, "require a FIPS endpoint")
	fs.StringVar(&opts.in.Method, "method", "GET", "request method")
	fs.StringVar(&opts.in.Path, "path", "/", "request path appended to the endpoint")
	fs.BoolVar(&opts.asJSON, "json", false, "print JSON")
	fs.DurationVar(&opts.timeout, "timeout", 10*time.Second, "resolution timeout")
	_ = cmd.MarkFlagRequired("service")
	return cmd
}

func runResolve(ctx context.Context, w io.Writer, opts resolveOptions) error {
	cfg, err := config.Load(strings.TrimSpace(opts.cfgPath))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	app, err := server.NewApp(cfg, server.Options{})
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	out, err := app.Resolve(ctx, opts.in)
	if err != nil {
		return err
	}
	if opts.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	return printResolve(w, out)
}

func printResolve(w io.Writer, out server.ResolveOutput) error {
	var b strings.Builder
	fmt.Fprintf(&b, "endpoint: %s\n", out.Endpoint.URL)
	for _, name := range sortedKeys(out.Endpoint.Headers) {
		fmt.Fprintf(&b, "  %s: %s\n", name, strings.Join(out.Endpoint.Headers[name], ", "))
	}
	fmt.Fprintf(&b, "request:  %s %s\n", out.Request.Method, out.Request.URL)
	_, err := io.WriteString(w, b.String())
	return err
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
