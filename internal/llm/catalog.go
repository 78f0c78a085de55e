package llm

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Family identifies a provider model family with a distinct request shape.
type Family string

const (
	// FamilyClaude supports streaming and an optional extended-thinking
	// mode toggled per request.
	FamilyClaude Family = "claude"
	// FamilyDeepSeek supports streaming and always emits a reasoning
	// channel; it accepts no thinking toggle.
	FamilyDeepSeek Family = "deepseek"
	// FamilyLegacy is the buffered-only completion shape used by older
	// text models.
	FamilyLegacy Family = "legacy"
)

// Capability describes what one resolved model family can do.
type Capability struct {
	Family         Family
	Streaming      bool
	ThinkingToggle bool
	AlwaysReasons  bool
}

func capabilityFor(f Family) Capability {
	switch f {
	case FamilyClaude:
		return Capability{Family: FamilyClaude, Streaming: true, ThinkingToggle: true}
	case FamilyDeepSeek:
		return Capability{Family: FamilyDeepSeek, Streaming: true, AlwaysReasons: true}
	default:
		return Capability{Family: FamilyLegacy}
	}
}

// CatalogRule maps a model-id pattern to a family. Patterns support '*'
// wildcards; first match wins.
type CatalogRule struct {
	Pattern string `yaml:"pattern"`
	Family  Family `yaml:"family"`
}

// Catalog resolves model ids to capabilities.
type Catalog struct {
	rules []CatalogRule
}

// DefaultCatalog covers the Bedrock model ids the platform ships with.
func DefaultCatalog() *Catalog {
	return &Catalog{rules: []CatalogRule{
		{Pattern: "*anthropic.claude-v2*", Family: FamilyLegacy},
		{Pattern: "*anthropic.claude-instant*", Family: FamilyLegacy},
		{Pattern: "*anthropic.claude*", Family: FamilyClaude},
		{Pattern: "*deepseek*", Family: FamilyDeepSeek},
	}}
}

// LoadCatalog reads rules from a YAML file of the form:
//
//	rules:
//	  - pattern: "*anthropic.claude*"
//	    family: claude
//
// Built-in defaults are appended after the file's rules so unlisted models
// still resolve.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model catalog: %w", err)
	}
	var doc struct {
		Rules []CatalogRule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse model catalog: %w", err)
	}
	for _, r := range doc.Rules {
		switch r.Family {
		case FamilyClaude, FamilyDeepSeek, FamilyLegacy:
		default:
			return nil, fmt.Errorf("model catalog: unknown family %q for pattern %q", r.Family, r.Pattern)
		}
	}
	return &Catalog{rules: append(doc.Rules, DefaultCatalog().rules...)}, nil
}

// Resolve returns the capability for a model id. Unknown ids resolve to the
// buffered-only legacy shape.
func (c *Catalog) Resolve(modelID string) Capability {
	id := strings.ToLower(strings.TrimSpace(modelID))
	for _, r := range c.rules {
		if matchPattern(strings.ToLower(r.Pattern), id) {
			return capabilityFor(r.Family)
		}
	}
	return capabilityFor(FamilyLegacy)
}

// matchPattern matches id against pattern, where '*' matches any run of
// characters.
func matchPattern(pattern, id string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == id
	}
	if parts[0] != "" && !strings.HasPrefix(id, parts[0]) {
		return false
	}
	if last := parts[len(parts)-1]; last != "" && !strings.HasSuffix(id, last) {
		return false
	}
	rest := id
	for _, part := range parts {
		if part == "" {
			continue
		}
		idx := strings.Index(rest, part)
		if idx < 0 {
			return false
		}
		rest = rest[idx+len(part):]
	}
	return true
}
