package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()
	if info.GoVersion != runtime.Version() {
		t.Fatalf("GoVersion=%q", info.GoVersion)
	}
	s := info.String()
	if !strings.HasPrefix(s, "oer "+Version) || !strings.Contains(s, "commit="+Commit) {
		t.Fatalf("unexpected version string %q", s)
	}
}
