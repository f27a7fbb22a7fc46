package logx

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// AccessEntry carries one finished request for the access log.
type AccessEntry struct {
	Time     time.Time
	Status   int
	Latency  time.Duration
	ClientIP string
	Method   string
	Path     string
	// Fields holds routing details keyed by variable name (service,
	// endpoint, request_id, ...). Empty values render as "-".
	Fields map[string]string
}

type formatPart struct {
	literal string
	varName string
}

type AccessLogFormatter struct {
	parts []formatPart
}

const DefaultAccessLogPreset = "oer_combined"

var accessLogFormatPresets = map[string]string{
	"oer_combined": "$time_local | $status | $latency | $client_ip | $method $path | request_id=$request_id service=$service region=$region tenant=$tenant resolver=$resolver endpoint=$endpoint upstream_status=$upstream_status upstream_ms=$upstream_latency_ms bytes_out=$bytes_out resolve_error=$resolve_error",
	"oer_minimal":  "$time_local | $status | $latency | $method $path | service=$service endpoint=$endpoint",
}

var allowedAccessLogVars = map[string]struct{}{
	"time_local":          {},
	"status":              {},
	"latency":             {},
	"latency_ms":          {},
	"client_ip":           {},
	"method":              {},
	"path":                {},
	"request_id":          {},
	"service":             {},
	"region":              {},
	"tenant":              {},
	"resolver":            {},
	"endpoint":            {},
	"upstream_status":     {},
	"upstream_latency_ms": {},
	"bytes_out":           {},
	"resolve_error":       {},
}

// ResolveAccessLogFormat returns format when set, else the named preset.
func ResolveAccessLogFormat(format string, preset string) (string, error) {
	if strings.TrimSpace(format) != "" {
		return format, nil
	}
	p := strings.ToLower(strings.TrimSpace(preset))
	if p == "" {
		return "", nil
	}
	out, ok := accessLogFormatPresets[p]
	if !ok {
		return "", fmt.Errorf("invalid access_log_format_preset: %q", preset)
	}
	return out, nil
}

// CompileAccessLogFormat parses $var references; "$$" is a literal dollar.
// A blank format yields a nil formatter.
func CompileAccessLogFormat(format string) (*AccessLogFormatter, error) {
	if strings.TrimSpace(format) == "" {
		return nil, nil
	}
	var (
		parts []formatPart
		lit   strings.Builder
	)
	flush := func() {
		if lit.Len() > 0 {
			parts = append(parts, formatPart{literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(format); i++ {
		if format[i] != '$' {
			lit.WriteByte(format[i])
			continue
		}
		if i+1 < len(format) && format[i+1] == '$' {
			lit.WriteByte('$')
			i++
			continue
		}
		end := i + 1
		for end < len(format) && isVarChar(rune(format[end])) {
			end++
		}
		if end == i+1 {
			return nil, fmt.Errorf("invalid access_log_format: missing variable name after '$' at pos %d", i)
		}
		name := format[i+1 : end]
		if _, ok := allowedAccessLogVars[name]; !ok {
			return nil, fmt.Errorf("invalid access_log_format: unknown variable $%s", name)
		}
		flush()
		parts = append(parts, formatPart{varName: name})
		i = end - 1
	}
	flush()
	return &AccessLogFormatter{parts: parts}, nil
}

func isVarChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func (f *AccessLogFormatter) Format(e AccessEntry, color bool) string {
	if f == nil || len(f.parts) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range f.parts {
		if p.varName == "" {
			b.WriteString(p.literal)
			continue
		}
		v := strings.TrimSpace(e.value(p.varName, color))
		if v == "" {
			v = "-"
		}
		b.WriteString(v)
	}
	return b.String()
}

func (e AccessEntry) value(name string, color bool) string {
	switch name {
	case "time_local":
		return e.Time.Format("2006/01/02 - 15:04:05")
	case "status":
		return ColorizeStatusWith(e.Status, color)
	case "latency":
		return e.Latency.String()
	case "latency_ms":
		return strconv.FormatInt(e.Latency.Milliseconds(), 10)
	case "client_ip":
		return e.ClientIP
	case "method":
		return ColorizeMethodWith(strings.TrimSpace(e.Method), color)
	case "path":
		return e.Path
	}
	return e.Fields[name]
}

func AccessLogAllowedVars() []string {
	keys := make([]string, 0, len(allowedAccessLogVars))
	for k := range allowedAccessLogVars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
