package ingest

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/agentic-research/harvest/api"
)

// Rule kinds.
const (
	KindAny  = "any"
	KindFile = "file"
	KindDir  = "dir"
)

// RuleFile is the top level of a rules document.
type RuleFile struct {
	Sets []RuleSet `hcl:"rule_set,block"`
}

// RuleSet is a named group of rules. Records matched by any rule of the set
// are flagged with the set's name.
type RuleSet struct {
	Name    string `hcl:"name,label"`
	Comment string `hcl:"comment,optional"`
	Rules   []Rule `hcl:"rule,block"`
}

// Rule matches when its kind matches and at least one of its non-empty
// criteria matches.
type Rule struct {
	Names      []string `hcl:"names,optional"`
	Extensions []string `hcl:"extensions,optional"`
	MIMETypes  []string `hcl:"mime_types,optional"`
	Kind       string   `hcl:"kind,optional"`
}

// Flag is one (record, rule set) match.
type Flag struct {
	FileID  int64
	SetName string
	Comment string
}

// LoadRules decodes and validates an HCL rules file.
func LoadRules(filename string) (*RuleFile, error) {
	var rf RuleFile
	if err := hclsimple.DecodeFile(filename, nil, &rf); err != nil {
		return nil, fmt.Errorf("load rules %s: %w", filename, err)
	}
	if err := rf.Validate(); err != nil {
		return nil, fmt.Errorf("load rules %s: %w", filename, err)
	}
	return &rf, nil
}

// ParseRules decodes rules from memory. filename is used in diagnostics
// and must end in .hcl or .json.
func ParseRules(filename string, src []byte) (*RuleFile, error) {
	var rf RuleFile
	if err := hclsimple.Decode(filename, src, nil, &rf); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if err := rf.Validate(); err != nil {
		return nil, err
	}
	return &rf, nil
}

// Validate rejects sets that would flag nothing or could never be saved.
func (rf *RuleFile) Validate() error {
	var errs []error
	seen := make(map[string]bool)
	for _, set := range rf.Sets {
		switch {
		case set.Name == "":
			errs = append(errs, errors.New("rule_set: empty name"))
			continue
		case set.Name == "." || set.Name == ".." || strings.ContainsAny(set.Name, `/\`):
			errs = append(errs, fmt.Errorf("rule_set %q: name must be a single path segment", set.Name))
		}
		if seen[set.Name] {
			errs = append(errs, fmt.Errorf("rule_set %q: defined twice", set.Name))
		}
		seen[set.Name] = true
		if len(set.Rules) == 0 {
			errs = append(errs, fmt.Errorf("rule_set %q: no rules", set.Name))
		}
		for i, r := range set.Rules {
			if err := r.validate(); err != nil {
				errs = append(errs, fmt.Errorf("rule_set %q rule %d: %w", set.Name, i, err))
			}
		}
	}
	return errors.Join(errs...)
}

func (r Rule) validate() error {
	switch r.Kind {
	case "", KindAny, KindFile, KindDir:
	default:
		return fmt.Errorf("unknown kind %q", r.Kind)
	}
	if len(r.Names)+len(r.Extensions)+len(r.MIMETypes) == 0 {
		return errors.New("no criteria")
	}
	for _, pat := range r.Names {
		if _, err := path.Match(pat, ""); err != nil {
			return fmt.Errorf("bad name pattern %q: %w", pat, err)
		}
	}
	return nil
}

// Match reports whether rec satisfies the rule.
func (r Rule) Match(rec api.FileRecord) bool {
	switch r.Kind {
	case KindFile:
		if rec.Type != api.MetaFile {
			return false
		}
	case KindDir:
		if rec.Type != api.MetaDirectory {
			return false
		}
	}
	for _, pat := range r.Names {
		if ok, _ := path.Match(pat, rec.Name); ok {
			return true
		}
	}
	if ext := extension(rec.Name); ext != "" {
		for _, want := range r.Extensions {
			if strings.EqualFold(strings.TrimPrefix(want, "."), ext) {
				return true
			}
		}
	}
	if rec.MIME != "" {
		for _, want := range r.MIMETypes {
			if want == rec.MIME {
				return true
			}
		}
	}
	return false
}

// Match reports whether any rule of the set matches rec.
func (s RuleSet) Match(rec api.FileRecord) bool {
	for _, r := range s.Rules {
		if r.Match(rec) {
			return true
		}
	}
	return false
}

// Collect walks every record of src and returns one Flag per matching
// (record, rule set) pair, in record order then set order. The index root
// is never flagged.
func (rf *RuleFile) Collect(ctx context.Context, src RecordSource) ([]Flag, error) {
	var flags []Flag
	err := src.EachRecord(ctx, func(rec api.FileRecord) error {
		if rec.ID == rec.ParentID {
			return nil
		}
		for _, set := range rf.Sets {
			if set.Match(rec) {
				flags = append(flags, Flag{FileID: rec.ID, SetName: set.Name, Comment: set.Comment})
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect flags: %w", err)
	}
	return flags, nil
}

// WriteFlags records each flag as an interesting-file hit.
func WriteFlags(flags []Flag, w HitWriter) error {
	for _, f := range flags {
		attrs := []api.Attribute{{Type: api.AttrSetName, Value: f.SetName}}
		if f.Comment != "" {
			attrs = append(attrs, api.Attribute{Type: api.AttrComment, Value: f.Comment})
		}
		if _, err := w.AddHit(api.ArtifactInterestingFileHit, f.FileID, attrs...); err != nil {
			return fmt.Errorf("write hit for file %d: %w", f.FileID, err)
		}
	}
	return nil
}

// Apply collects every match from src and then writes them to w. Reading
// finishes before the first write so src and w may share a database file.
func (rf *RuleFile) Apply(ctx context.Context, src RecordSource, w HitWriter) (int, error) {
	flags, err := rf.Collect(ctx, src)
	if err != nil {
		return 0, err
	}
	if err := WriteFlags(flags, w); err != nil {
		return 0, err
	}
	return len(flags), nil
}

// extension returns the lowercase suffix after the last dot, or "" for
// names without one (including dotfiles such as ".bashrc").
func extension(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 || i == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}
