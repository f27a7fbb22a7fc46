package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/r9s-ai/open-endpoint-router/pkg/endpoint"
	"github.com/r9s-ai/open-endpoint-router/pkg/protocol"
)

const (
	ResolverStatic    = "static"
	ResolverRules     = "rules"
	ResolverDiscovery = "discovery"
	ResolverSRV       = "srv"
)

const (
	defaultAccessLogRotateMaxSizeMB  = 100
	defaultAccessLogRotateMaxBackups = 14
	defaultAccessLogRotateMaxAgeDays = 14
)

type AccessLogRotateConfig struct {
	Enabled    bool `yaml:"enabled"`
	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days"`
	Compress   bool `yaml:"compress"`

	maxSizeMBSet  bool
	maxBackupsSet bool
	maxAgeDaysSet bool
}

// UnmarshalYAML records which limits were written explicitly so an explicit
// zero is validated instead of replaced by the default.
func (c *AccessLogRotateConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain AccessLogRotateConfig
	var raw plain
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*c = AccessLogRotateConfig(raw)
	if value.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		switch strings.TrimSpace(value.Content[i].Value) {
		case "max_size_mb":
			c.maxSizeMBSet = true
		case "max_backups":
			c.maxBackupsSet = true
		case "max_age_days":
			c.maxAgeDaysSet = true
		}
	}
	return nil
}

type LoggingConfig struct {
	Level                 string                `yaml:"level"`
	AccessLog             *bool                 `yaml:"access_log"`
	AccessLogPath         string                `yaml:"access_log_path"`
	AccessLogFormat       string                `yaml:"access_log_format"`
	AccessLogFormatPreset string                `yaml:"access_log_format_preset"`
	AccessLogRotate       AccessLogRotateConfig `yaml:"access_log_rotate"`
}

// AccessLogEnabled defaults to true when logging.access_log is omitted.
func (l LoggingConfig) AccessLogEnabled() bool {
	return l.AccessLog == nil || *l.AccessLog
}

// samplePrefixLabels checks an endpoint_prefix template at load time.
var samplePrefixLabels = map[string]string{"service": "svc", "region": "region", "tenant": "tenant"}

type ResolverConfig struct {
	// Kind selects the resolver: static, rules, discovery or srv.
	Kind      string `yaml:"kind"`
	StaticURL string `yaml:"static_url"`
	// EndpointPrefix is prepended to the resolved host, e.g. "tenant123." or
	// "{tenant}." to take the label from the request.
	EndpointPrefix string `yaml:"endpoint_prefix"`
	// Protocol names the wire protocol used to set request content type.
	Protocol string `yaml:"protocol"`
}

type Config struct {
	Server struct {
		Listen         string `yaml:"listen"`
		ReadTimeoutMs  int    `yaml:"read_timeout_ms"`
		WriteTimeoutMs int    `yaml:"write_timeout_ms"`
		PidFile        string `yaml:"pid_file"`
		// RequestIDHeader overrides X-Oer-Request-Id.
		RequestIDHeader string `yaml:"request_id_header"`
	} `yaml:"server"`

	Auth struct {
		// APIKey guards the /admin routes. Empty disables them.
		APIKey string `yaml:"api_key"`
	} `yaml:"auth"`

	Resolver ResolverConfig `yaml:"resolver"`

	Rules struct {
		Dir        string `yaml:"dir"`
		AutoReload struct {
			Enabled    bool `yaml:"enabled"`
			DebounceMs int  `yaml:"debounce_ms"`
		} `yaml:"auto_reload"`
	} `yaml:"rules"`

	Discovery struct {
		RegistryURL string `yaml:"registry_url"`
		CacheTTLMs  int    `yaml:"cache_ttl_ms"`
		SRVDomain   string `yaml:"srv_domain"`
		SRVProto    string `yaml:"srv_proto"`
		SRVScheme   string `yaml:"srv_scheme"`
		DNSServer   string `yaml:"dns_server"`
	} `yaml:"discovery"`

	Upstream struct {
		TimeoutMs int `yaml:"timeout_ms"`
		// Proxies configures an outbound HTTP proxy by service name.
		Proxies map[string]string `yaml:"proxies"`
	} `yaml:"upstream"`

	Metrics struct {
		Enabled *bool  `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`

	Logging LoggingConfig `yaml:"logging"`
}

func (c *Config) MetricsEnabled() bool {
	return c.Metrics.Enabled == nil || *c.Metrics.Enabled
}

func Load(path string) (*Config, error) {
	// #nosec G304 -- path is provided by trusted config/flag.
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse decodes b and applies defaults, OER_* environment overrides and
// validation, in that order.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Server.Listen) == "" {
		cfg.Server.Listen = ":3400"
	}
	if cfg.Server.ReadTimeoutMs <= 0 {
		cfg.Server.ReadTimeoutMs = 60000
	}
	if cfg.Server.WriteTimeoutMs <= 0 {
		cfg.Server.WriteTimeoutMs = 60000
	}
	if strings.TrimSpace(cfg.Server.PidFile) == "" {
		cfg.Server.PidFile = "/var/run/oer.pid"
	}
	if strings.TrimSpace(cfg.Resolver.Kind) == "" {
		cfg.Resolver.Kind = ResolverRules
	}
	cfg.Resolver.Kind = strings.ToLower(strings.TrimSpace(cfg.Resolver.Kind))
	if strings.TrimSpace(cfg.Rules.Dir) == "" {
		cfg.Rules.Dir = "./config/rules"
	}
	if cfg.Rules.AutoReload.DebounceMs <= 0 {
		cfg.Rules.AutoReload.DebounceMs = 300
	}
	if strings.TrimSpace(cfg.Discovery.SRVProto) == "" {
		cfg.Discovery.SRVProto = "tcp"
	}
	if strings.TrimSpace(cfg.Discovery.SRVScheme) == "" {
		cfg.Discovery.SRVScheme = "https"
	}
	if strings.TrimSpace(cfg.Discovery.DNSServer) == "" {
		cfg.Discovery.DNSServer = "127.0.0.1:53"
	}
	if cfg.Upstream.TimeoutMs <= 0 {
		cfg.Upstream.TimeoutMs = 30000
	}
	cfg.Upstream.Proxies = normalizeServiceMap(cfg.Upstream.Proxies)
	if strings.TrimSpace(cfg.Metrics.Path) == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if !cfg.Logging.AccessLogRotate.maxSizeMBSet {
		cfg.Logging.AccessLogRotate.MaxSizeMB = defaultAccessLogRotateMaxSizeMB
	}
	if !cfg.Logging.AccessLogRotate.maxBackupsSet {
		cfg.Logging.AccessLogRotate.MaxBackups = defaultAccessLogRotateMaxBackups
	}
	if !cfg.Logging.AccessLogRotate.maxAgeDaysSet {
		cfg.Logging.AccessLogRotate.MaxAgeDays = defaultAccessLogRotateMaxAgeDays
	}
}

func applyEnvOverrides(cfg *Config) {
	applyEnvServerAuthOverrides(cfg)
	applyEnvResolverOverrides(cfg)
	applyUpstreamProxyEnvOverrides(cfg)
	applyEnvLoggingOverrides(cfg)
}

func applyEnvServerAuthOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("OER_LISTEN")); v != "" {
		cfg.Server.Listen = v
	}
	if v := strings.TrimSpace(os.Getenv("OER_API_KEY")); v != "" {
		cfg.Auth.APIKey = v
	}
	if n, ok := envInt("OER_READ_TIMEOUT_MS"); ok && n > 0 {
		cfg.Server.ReadTimeoutMs = n
	}
	if n, ok := envInt("OER_WRITE_TIMEOUT_MS"); ok && n > 0 {
		cfg.Server.WriteTimeoutMs = n
	}
	if v := strings.TrimSpace(os.Getenv("OER_PID_FILE")); v != "" {
		cfg.Server.PidFile = v
	}
	if v := strings.TrimSpace(os.Getenv("OER_REQUEST_ID_HEADER")); v != "" {
		cfg.Server.RequestIDHeader = v
	}
}

func applyEnvResolverOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("OER_RESOLVER_KIND")); v != "" {
		cfg.Resolver.Kind = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("OER_STATIC_URL")); v != "" {
		cfg.Resolver.StaticURL = v
	}
	if v := strings.TrimSpace(os.Getenv("OER_ENDPOINT_PREFIX")); v != "" {
		cfg.Resolver.EndpointPrefix = v
	}
	if v := strings.TrimSpace(os.Getenv("OER_PROTOCOL")); v != "" {
		cfg.Resolver.Protocol = v
	}
	if v := strings.TrimSpace(os.Getenv("OER_RULES_DIR")); v != "" {
		cfg.Rules.Dir = v
	}
	cfg.Rules.AutoReload.Enabled = envBool("OER_RULES_AUTO_RELOAD_ENABLED", cfg.Rules.AutoReload.Enabled)
	if n, ok := envInt("OER_RULES_AUTO_RELOAD_DEBOUNCE_MS"); ok {
		cfg.Rules.AutoReload.DebounceMs = n
	}
	if v := strings.TrimSpace(os.Getenv("OER_REGISTRY_URL")); v != "" {
		cfg.Discovery.RegistryURL = v
	}
	if n, ok := envInt("OER_DISCOVERY_CACHE_TTL_MS"); ok {
		cfg.Discovery.CacheTTLMs = n
	}
	if v := strings.TrimSpace(os.Getenv("OER_SRV_DOMAIN")); v != "" {
		cfg.Discovery.SRVDomain = v
	}
	if v := strings.TrimSpace(os.Getenv("OER_DNS_SERVER")); v != "" {
		cfg.Discovery.DNSServer = v
	}
}

func applyEnvLoggingOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("OER_LOG_LEVEL")); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("OER_ACCESS_LOG")); v != "" {
		on := envBool("OER_ACCESS_LOG", cfg.Logging.AccessLogEnabled())
		cfg.Logging.AccessLog = &on
	}
	if v := strings.TrimSpace(os.Getenv("OER_ACCESS_LOG_PATH")); v != "" {
		cfg.Logging.AccessLogPath = v
	}
	if v := os.Getenv("OER_ACCESS_LOG_FORMAT"); strings.TrimSpace(v) != "" {
		cfg.Logging.AccessLogFormat = v
	}
	if v := strings.TrimSpace(os.Getenv("OER_ACCESS_LOG_FORMAT_PRESET")); v != "" {
		cfg.Logging.AccessLogFormatPreset = v
	}
	rot := &cfg.Logging.AccessLogRotate
	rot.Enabled = envBool("OER_ACCESS_LOG_ROTATE_ENABLED", rot.Enabled)
	if n, ok := envInt("OER_ACCESS_LOG_ROTATE_MAX_SIZE_MB"); ok {
		rot.MaxSizeMB = n
	}
	if n, ok := envInt("OER_ACCESS_LOG_ROTATE_MAX_BACKUPS"); ok {
		rot.MaxBackups = n
	}
	if n, ok := envInt("OER_ACCESS_LOG_ROTATE_MAX_AGE_DAYS"); ok {
		rot.MaxAgeDays = n
	}
	rot.Compress = envBool("OER_ACCESS_LOG_ROTATE_COMPRESS", rot.Compress)
}

var envUpstreamProxyPattern = regexp.MustCompile(`^OER_UPSTREAM_PROXY_([A-Z0-9_]+)$`)

// applyUpstreamProxyEnvOverrides maps OER_UPSTREAM_PROXY_<SERVICE>=url onto
// upstream.proxies. Underscores in the suffix become dashes; an empty value
// removes the entry.
func applyUpstreamProxyEnvOverrides(cfg *Config) {
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		m := envUpstreamProxyPattern.FindStringSubmatch(strings.TrimSpace(k))
		if m == nil {
			continue
		}
		service := strings.ReplaceAll(strings.ToLower(m[1]), "_", "-")
		if v = strings.TrimSpace(v); v == "" {
			delete(cfg.Upstream.Proxies, service)
			continue
		}
		cfg.Upstream.Proxies[service] = v
	}
}

func validate(cfg *Config) error {
	switch cfg.Resolver.Kind {
	case ResolverStatic:
		if _, err := endpoint.NewStaticResolver(cfg.Resolver.StaticURL); err != nil {
			return fmt.Errorf("resolver.static_url: %w", err)
		}
	case ResolverRules:
		if strings.TrimSpace(cfg.Rules.Dir) == "" {
			return errors.New("rules.dir is required when resolver.kind=rules")
		}
	case ResolverDiscovery:
		if strings.TrimSpace(cfg.Discovery.RegistryURL) == "" {
			return errors.New("discovery.registry_url is required when resolver.kind=discovery")
		}
		if cfg.Discovery.CacheTTLMs < 0 {
			return errors.New("discovery.cache_ttl_ms must be >= 0")
		}
	case ResolverSRV:
		if strings.TrimSpace(cfg.Discovery.SRVDomain) == "" {
			return errors.New("discovery.srv_domain is required when resolver.kind=srv")
		}
	default:
		return fmt.Errorf("resolver.kind %q is not one of static, rules, discovery, srv", cfg.Resolver.Kind)
	}
	if p := strings.TrimSpace(cfg.Resolver.EndpointPrefix); p != "" {
		if _, err := endpoint.ExpandPrefix(p, samplePrefixLabels); err != nil {
			return fmt.Errorf("resolver.endpoint_prefix: %w", err)
		}
	}
	if p := strings.TrimSpace(cfg.Resolver.Protocol); p != "" {
		if _, err := protocol.Parse(p); err != nil {
			return fmt.Errorf("resolver.protocol: %w", err)
		}
	}
	for service, raw := range cfg.Upstream.Proxies {
		if !strings.Contains(raw, "://") {
			return fmt.Errorf("upstream.proxies.%s must be a URL (e.g. http://127.0.0.1:7890)", service)
		}
	}
	if cfg.Rules.AutoReload.Enabled && cfg.Rules.AutoReload.DebounceMs <= 0 {
		return errors.New("rules.auto_reload.debounce_ms must be > 0 when rules.auto_reload.enabled=true")
	}
	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return errors.New("metrics.path must start with /")
	}
	rot := cfg.Logging.AccessLogRotate
	if rot.Enabled {
		if !cfg.Logging.AccessLogEnabled() {
			return errors.New("logging.access_log must be true when logging.access_log_rotate.enabled=true")
		}
		if strings.TrimSpace(cfg.Logging.AccessLogPath) == "" {
			return errors.New("logging.access_log_path is required when logging.access_log_rotate.enabled=true")
		}
	}
	if rot.MaxSizeMB <= 0 {
		return errors.New("logging.access_log_rotate.max_size_mb must be > 0")
	}
	if rot.MaxBackups <= 0 {
		return errors.New("logging.access_log_rotate.max_backups must be > 0")
	}
	if rot.MaxAgeDays < 0 {
		return errors.New("logging.access_log_rotate.max_age_days must be >= 0")
	}
	return nil
}

func envInt(name string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(name string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func normalizeServiceMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		key := strings.ToLower(strings.TrimSpace(k))
		val := strings.TrimSpace(v)
		if key == "" || val == "" {
			continue
		}
		out[key] = val
	}
	return out
}
