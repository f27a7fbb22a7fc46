package rules

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse decodes one rules file. path is only used for diagnostics.
func Parse(path string, data []byte) (*RuleSet, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if strings.TrimSpace(string(data)) == "" {
			return &RuleSet{}, nil
		}
		return nil, fmt.Errorf("parse rules %q: %w", path, err)
	}
	for i := range f.Rules {
		f.Rules[i].File = path
		f.Rules[i].Index = i
	}
	set := &RuleSet{rules: f.Rules}
	if err := Validate(set); err != nil {
		return nil, err
	}
	return set, nil
}

func LoadFile(path string) (*RuleSet, error) {
	// #nosec G304 -- rules path comes from trusted config/flag.
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(path, b)
}

// LoadDir loads every *.yaml / *.yml file under dir (recursively, dotfiles
// skipped) in lexical path order.
func LoadDir(dir string) (*RuleSet, error) {
	paths, err := listRuleFiles(dir)
	if err != nil {
		return nil, err
	}
	out := &RuleSet{}
	for _, p := range paths {
		set, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		out.rules = append(out.rules, set.rules...)
	}
	return out, nil
}

func listRuleFiles(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		base := d.Name()
		if path != dir && strings.HasPrefix(base, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(base)) {
		case ".yaml", ".yml":
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}
