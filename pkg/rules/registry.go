package rules

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/r9s-ai/open-endpoint-router/pkg/endpoint"
)

// LoadResult summarizes a reload.
type LoadResult struct {
	Dir             string
	Rules           int
	ChangedServices []string
}

// Registry holds the active rule set. Swaps are atomic for resolution
// purposes: a resolve sees either the old or the new set, never a mix.
type Registry struct {
	mu  sync.RWMutex
	set *RuleSet
}

func NewRegistry() *Registry {
	return &Registry{set: &RuleSet{}}
}

func (r *Registry) Current() *RuleSet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.set
}

// Swap installs set and returns the services whose rules changed.
func (r *Registry) Swap(set *RuleSet) []string {
	if set == nil {
		set = &RuleSet{}
	}
	r.mu.Lock()
	prev := r.set
	r.set = set
	r.mu.Unlock()
	return changedServices(prev, set)
}

// ReloadFromDir loads dir and swaps it in. On error the current set is kept.
func (r *Registry) ReloadFromDir(dir string) (LoadResult, error) {
	set, err := LoadDir(dir)
	if err != nil {
		return LoadResult{Dir: dir}, err
	}
	changed := r.Swap(set)
	return LoadResult{Dir: dir, Rules: set.Len(), ChangedServices: changed}, nil
}

func (r *Registry) ResolveEndpoint(ctx context.Context, p Params) (endpoint.Endpoint, error) {
	return r.Current().ResolveEndpoint(ctx, p)
}

// Resolver returns the registry as a pipeline resolver expecting Params.
func (r *Registry) Resolver() endpoint.Resolver {
	return endpoint.NewDelegating[Params](r)
}

func changedServices(prev, next *RuleSet) []string {
	before := fingerprintByService(prev)
	after := fingerprintByService(next)
	seen := map[string]struct{}{}
	for svc, fp := range after {
		if before[svc] != fp {
			seen[svc] = struct{}{}
		}
	}
	for svc := range before {
		if _, ok := after[svc]; !ok {
			seen[svc] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for svc := range seen {
		out = append(out, svc)
	}
	sort.Strings(out)
	return out
}

func fingerprintByService(set *RuleSet) map[string]string {
	out := map[string]string{}
	for _, r := range set.Rules() {
		svc := r.Match.Service
		if svc == "" {
			svc = "*"
		}
		out[svc] += ruleFingerprint(r) + "\n"
	}
	return out
}

func ruleFingerprint(r Rule) string {
	var b strings.Builder
	b.WriteString(r.Match.Region)
	b.WriteByte('|')
	if r.Match.FIPS != nil {
		if *r.Match.FIPS {
			b.WriteString("fips")
		} else {
			b.WriteString("nofips")
		}
	}
	b.WriteByte('|')
	b.WriteString(r.URL)
	for _, h := range r.Headers {
		b.WriteString("|" + h.Name + "=" + strings.Join(h.Values, ","))
	}
	keys := make([]string, 0, len(r.Properties))
	for k := range r.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("|" + k + ":" + r.Properties[k])
	}
	return b.String()
}
