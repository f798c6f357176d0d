// Package rules loads the trigger rule table the override gate evaluates.
//
// A table is an ordered list of TriggerRule records plus the categories they
// point at. Within a tier the longest normalized pattern wins; ties keep table
// order. Matching is raw substring containment on normalized text, so a
// pattern also matches inside longer words.
package rules

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/tjfontaine/polyglot-intent-router/internal/core/domain"
	"github.com/tjfontaine/polyglot-intent-router/internal/textnorm"
)

//go:embed default_rules.yaml
var defaultRules []byte

// Category is the response configuration for one trigger category.
type Category struct {
	Name string `yaml:"name"`
	// Response is returned when a rule of this category fires.
	Response string `yaml:"response"`
	// HoldResponse is returned while a session is locked in this category and
	// the message matches nothing else. Falls back to Response.
	HoldResponse string `yaml:"hold_response"`
	// TTL overrides the session lock TTL for locks into this category.
	TTL time.Duration `yaml:"ttl"`
	// Unlock marks reset categories: firing one releases the lock.
	Unlock bool `yaml:"unlock"`
}

// File is the on-disk layout of a rule table.
type File struct {
	Categories []Category           `yaml:"categories"`
	Rules      []domain.TriggerRule `yaml:"rules"`
}

// Match is a rule that fired.
type Match struct {
	Rule     domain.TriggerRule
	Category Category
	// Normalized is the pattern as compared against the message.
	Normalized string
}

type compiledRule struct {
	rule       domain.TriggerRule
	normalized string
	runes      int
	order      int
}

// Set is an immutable, validated rule table.
type Set struct {
	rules      []domain.TriggerRule
	tiers      map[domain.Priority][]compiledRule
	categories map[string]Category
}

// New validates rules and categories and compiles them into a Set.
func New(rules []domain.TriggerRule, categories []Category) (*Set, error) {
	if len(rules) == 0 {
		return nil, domain.ErrConfiguration("trigger table has no rules")
	}

	s := &Set{
		rules:      make([]domain.TriggerRule, len(rules)),
		tiers:      make(map[domain.Priority][]compiledRule),
		categories: make(map[string]Category, len(categories)),
	}
	copy(s.rules, rules)

	for _, c := range categories {
		if c.Name == "" {
			return nil, domain.ErrConfiguration("category with empty name")
		}
		if _, dup := s.categories[c.Name]; dup {
			return nil, domain.ErrConfiguration(fmt.Sprintf("duplicate category %q", c.Name))
		}
		if c.Response == "" {
			return nil, domain.ErrConfiguration(fmt.Sprintf("category %q has no response", c.Name))
		}
		if c.TTL < 0 {
			return nil, domain.ErrConfiguration(fmt.Sprintf("category %q has negative ttl", c.Name))
		}
		s.categories[c.Name] = c
	}

	seen := make(map[string]bool)
	for i, r := range rules {
		if !r.Priority.Valid() {
			return nil, domain.ErrConfiguration(fmt.Sprintf("rule %d (%q): unknown priority %q", i, r.Pattern, r.Priority))
		}
		normalized := textnorm.Normalize(r.Pattern)
		if normalized == "" {
			return nil, domain.ErrConfiguration(fmt.Sprintf("rule %d: empty pattern", i))
		}
		if _, ok := s.categories[r.Category]; !ok {
			return nil, domain.ErrConfiguration(fmt.Sprintf("rule %d (%q): unknown category %q", i, r.Pattern, r.Category))
		}
		if r.Priority == domain.PrioritySafety && r.Category != domain.SafetyDomain {
			return nil, domain.ErrConfiguration(fmt.Sprintf("rule %d (%q): P0 rules must use category %s", i, r.Pattern, domain.SafetyDomain))
		}
		if r.Priority != domain.PriorityMeta && s.categories[r.Category].Unlock {
			return nil, domain.ErrConfiguration(fmt.Sprintf("rule %d (%q): unlock categories are only valid at P3", i, r.Pattern))
		}
		key := string(r.Priority) + "\x00" + normalized
		if seen[key] {
			return nil, domain.ErrConfiguration(fmt.Sprintf("rule %d: duplicate pattern %q at %s", i, normalized, r.Priority))
		}
		seen[key] = true

		s.tiers[r.Priority] = append(s.tiers[r.Priority], compiledRule{
			rule:       r,
			normalized: normalized,
			runes:      utf8.RuneCountInString(normalized),
			order:      i,
		})
	}

	for _, tier := range s.tiers {
		sort.SliceStable(tier, func(i, j int) bool {
			if tier[i].runes != tier[j].runes {
				return tier[i].runes > tier[j].runes
			}
			return tier[i].order < tier[j].order
		})
	}

	return s, nil
}

// Parse decodes a YAML rule table.
func Parse(data []byte) (*Set, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, domain.ErrConfiguration("malformed trigger table").Wrap(err)
	}
	return New(f.Rules, f.Categories)
}

// Load reads a rule table from path. An empty path selects the embedded
// default table.
func Load(path string) (*Set, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.ErrConfiguration(fmt.Sprintf("read trigger table %s", path)).Wrap(err)
	}
	return Parse(data)
}

// Default returns the embedded rule table.
func Default() (*Set, error) {
	return Parse(defaultRules)
}

// Match returns the longest rule in tier contained in normalized text,
// skipping rules for which skip returns true.
func (s *Set) Match(tier domain.Priority, normalizedText string, skip func(Match) bool) (Match, bool) {
	if normalizedText == "" {
		return Match{}, false
	}
	for _, cr := range s.tiers[tier] {
		if !strings.Contains(normalizedText, cr.normalized) {
			continue
		}
		m := Match{Rule: cr.rule, Category: s.categories[cr.rule.Category], Normalized: cr.normalized}
		if skip != nil && skip(m) {
			continue
		}
		return m, true
	}
	return Match{}, false
}

// Category looks up a category by name.
func (s *Set) Category(name string) (Category, bool) {
	c, ok := s.categories[name]
	return c, ok
}

// Rules returns a copy of the table in file order.
func (s *Set) Rules() []domain.TriggerRule {
	out := make([]domain.TriggerRule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Tier returns the rules of one tier in evaluation order (longest first).
func (s *Set) Tier(p domain.Priority) []domain.TriggerRule {
	tier := s.tiers[p]
	out := make([]domain.TriggerRule, len(tier))
	for i, cr := range tier {
		out[i] = cr.rule
	}
	return out
}
