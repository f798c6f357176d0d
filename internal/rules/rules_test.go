package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tjfontaine/polyglot-intent-router/internal/core/domain"
	"github.com/tjfontaine/polyglot-intent-router/internal/textnorm"
)

func TestDefault_Loads(t *testing.T) {
	set, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}

	for _, name := range []string{domain.SafetyDomain, "EMPRENDIMIENTO", "ACADEMIA", "SOPORTE", "IDENTIDAD", "RESET"} {
		if _, ok := set.Category(name); !ok {
			t.Errorf("default table missing category %s", name)
		}
	}

	reset, _ := set.Category("RESET")
	if !reset.Unlock {
		t.Error("RESET should be an unlock category")
	}
	for _, p := range domain.EvaluationOrder {
		if len(set.Tier(p)) == 0 {
			t.Errorf("default table has no %s rules", p)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	cats := []Category{
		{Name: domain.SafetyDomain, Response: "safe"},
		{Name: "SHOP", Response: "shop"},
		{Name: "RESET", Response: "reset", Unlock: true},
	}

	tests := []struct {
		name  string
		rules []domain.TriggerRule
		cats  []Category
	}{
		{
			name: "empty table",
		},
		{
			name:  "unknown priority",
			rules: []domain.TriggerRule{{Pattern: "x", Priority: "P9", Category: "SHOP"}},
			cats:  cats,
		},
		{
			name:  "unknown category",
			rules: []domain.TriggerRule{{Pattern: "x", Priority: domain.PriorityDomainSwitch, Category: "NOPE"}},
			cats:  cats,
		},
		{
			name:  "pattern of punctuation only",
			rules: []domain.TriggerRule{{Pattern: "?!", Priority: domain.PriorityDomainSwitch, Category: "SHOP"}},
			cats:  cats,
		},
		{
			name:  "p0 outside safety",
			rules: []domain.TriggerRule{{Pattern: "x", Priority: domain.PrioritySafety, Category: "SHOP"}},
			cats:  cats,
		},
		{
			name:  "unlock category at p1",
			rules: []domain.TriggerRule{{Pattern: "x", Priority: domain.PriorityDomainSwitch, Category: "RESET"}},
			cats:  cats,
		},
		{
			name: "duplicate pattern after normalization",
			rules: []domain.TriggerRule{
				{Pattern: "Tienda", Priority: domain.PriorityDomainSwitch, Category: "SHOP"},
				{Pattern: "tienda!", Priority: domain.PriorityDomainSwitch, Category: "SHOP"},
			},
			cats: cats,
		},
		{
			name:  "category without response",
			rules: []domain.TriggerRule{{Pattern: "x", Priority: domain.PriorityDomainSwitch, Category: "SHOP"}},
			cats:  []Category{{Name: "SHOP"}},
		},
		{
			name:  "duplicate category",
			rules: []domain.TriggerRule{{Pattern: "x", Priority: domain.PriorityDomainSwitch, Category: "SHOP"}},
			cats:  []Category{{Name: "SHOP", Response: "a"}, {Name: "SHOP", Response: "b"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.rules, tt.cats)
			if err == nil {
				t.Fatal("New() error = nil, want configuration error")
			}
			if !domain.IsKind(err, domain.ErrorKindConfiguration) {
				t.Errorf("New() error kind = %v, want configuration", err)
			}
		})
	}
}

func TestSet_Match_LongestWins(t *testing.T) {
	set, err := New([]domain.TriggerRule{
		{Pattern: "ayuda", Priority: domain.PrioritySafety, Category: domain.SafetyDomain},
		{Pattern: "ayuda urgente", Priority: domain.PrioritySafety, Category: domain.SafetyDomain},
		{Pattern: "negocio", Priority: domain.PriorityDomainSwitch, Category: "BIZ"},
	}, []Category{
		{Name: domain.SafetyDomain, Response: "safe"},
		{Name: "BIZ", Response: "biz"},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	m, ok := set.Match(domain.PrioritySafety, textnorm.Normalize("Necesito AYUDA urgente"), nil)
	if !ok {
		t.Fatal("expected a P0 match")
	}
	if m.Rule.Pattern != "ayuda urgente" {
		t.Errorf("matched %q, want the longer pattern", m.Rule.Pattern)
	}

	// Tiers are independent.
	if _, ok := set.Match(domain.PriorityDomainSwitch, "necesito ayuda", nil); ok {
		t.Error("P1 tier should not see P0 rules")
	}
}

func TestSet_Match_Skip(t *testing.T) {
	set, err := New([]domain.TriggerRule{
		{Pattern: "emprender un negocio", Priority: domain.PriorityDomainSwitch, Category: "BIZ"},
		{Pattern: "maquillaje", Priority: domain.PriorityDomainSwitch, Category: "BEAUTY"},
	}, []Category{
		{Name: "BIZ", Response: "biz"},
		{Name: "BEAUTY", Response: "beauty"},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	text := textnorm.Normalize("emprender un negocio de maquillaje")
	skipBiz := func(m Match) bool { return m.Rule.Category == "BIZ" }

	m, ok := set.Match(domain.PriorityDomainSwitch, text, skipBiz)
	if !ok || m.Rule.Category != "BEAUTY" {
		t.Errorf("Match() with skip = %+v, %v; want BEAUTY", m.Rule, ok)
	}
}

func TestSet_Match_RawSubstring(t *testing.T) {
	set, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}

	// Containment is not word-bounded: "policia" fires inside "policiaca".
	m, ok := set.Match(domain.PrioritySafety, textnorm.Normalize("Recomiéndame una novela policiaca"), nil)
	if !ok || m.Rule.Category != domain.SafetyDomain {
		t.Errorf("expected the substring false positive to fire, got %+v, %v", m, ok)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	data := []byte(`
categories:
  - name: SAFETY
    response: call 911
  - name: STORE
    response: store
    ttl: 10m
rules:
  - {pattern: "help me", priority: P0, category: SAFETY}
  - {pattern: "buy", priority: P1, category: STORE}
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	set, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := len(set.Rules()); got != 2 {
		t.Errorf("len(Rules()) = %d, want 2", got)
	}
	store, _ := set.Category("STORE")
	if store.TTL.Minutes() != 10 {
		t.Errorf("STORE ttl = %v, want 10m", store.TTL)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); !domain.IsKind(err, domain.ErrorKindConfiguration) {
		t.Errorf("Load(missing) error = %v, want configuration error", err)
	}
	if _, err := Parse([]byte("rules: [")); !domain.IsKind(err, domain.ErrorKindConfiguration) {
		t.Errorf("Parse(malformed) error = %v, want configuration error", err)
	}
}

func TestLoad_EmptyPathUsesEmbeddedTable(t *testing.T) {
	got, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	want, _ := Default()
	if len(got.Rules()) == 0 || len(got.Rules()) != len(want.Rules()) {
		t.Errorf("Load(\"\") rules = %d, want the %d embedded rules", len(got.Rules()), len(want.Rules()))
	}
}
