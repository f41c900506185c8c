package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/newhook/diaglog/internal/logging"
)

// Format is a rule source encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ErrEmptySource is returned by Parse for a document without rules.
var ErrEmptySource = errors.New("rule source contains no rules")

// ruleDoc is the external form of a rule.
type ruleDoc struct {
	Name              string          `json:"name" yaml:"name"`
	Pattern           string          `json:"pattern" yaml:"pattern"`
	Type              string          `json:"type" yaml:"type"`
	Color             string          `json:"color" yaml:"color"`
	Description       string          `json:"description" yaml:"description"`
	MultiDescriptions bool            `json:"multiDescriptions" yaml:"multiDescriptions"`
	SubPatterns       []subPatternDoc `json:"subPatterns" yaml:"subPatterns"`
	HexGroup          int             `json:"hexGroup" yaml:"hexGroup"`
	Scope             string          `json:"scope" yaml:"scope"`
}

type subPatternDoc struct {
	Name         string            `json:"name" yaml:"name"`
	CaptureGroup int               `json:"captureGroup" yaml:"captureGroup"`
	Descriptions map[string]string `json:"descriptions" yaml:"descriptions"`
}

// FormatFor picks the encoding from a file extension; JSON is the default.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Load reads a rule source. It never fails: a missing or malformed source
// falls back to the built-in rules, and malformed entries are skipped.
func Load(path string) *Catalog {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fallback(path, fmt.Errorf("read rule source: %w", err))
	}
	rules, skipped, err := Parse(data, FormatFor(path))
	if err != nil {
		return fallback(path, err)
	}
	for _, s := range skipped {
		logging.Warn("skipping malformed rule entry", "source", path, "index", s.Index, "reason", s.Reason)
	}
	if !hasHeaderRules(rules) {
		rules = append(rules, headerRules()...)
	}
	c := New(rules, path)
	c.skipped = append(skipped, c.skipped...)
	if len(c.LineRules()) == 0 {
		return fallback(path, fmt.Errorf("no usable rules in %s", path))
	}
	logging.Info("loaded rule catalog", "source", path, "rules", len(c.rules), "skipped", len(c.skipped))
	return c
}

func hasHeaderRules(rules []Rule) bool {
	for _, r := range rules {
		if r.Scope == ScopeHeader {
			return true
		}
	}
	return false
}

// headerRules returns the built-in test case header decorations.
func headerRules() []Rule {
	var out []Rule
	for _, r := range DefaultRules() {
		if r.Scope == ScopeHeader {
			out = append(out, r)
		}
	}
	return out
}

func fallback(path string, reason error) *Catalog {
	logging.Warn("rule source unavailable, using built-in rules", "source", path, "error", reason)
	c := Default()
	c.fallback = reason
	return c
}

// Parse decodes a rule document. Entries that cannot be decoded or lack a
// name, pattern or type are reported as skipped.
func Parse(data []byte, format Format) ([]Rule, []Skipped, error) {
	var docs []ruleDoc
	var skipped []Skipped

	switch format {
	case FormatYAML:
		var nodes []yaml.Node
		if err := yaml.Unmarshal(data, &nodes); err != nil {
			return nil, nil, fmt.Errorf("decode yaml rule source: %w", err)
		}
		for i := range nodes {
			var d ruleDoc
			if err := nodes[i].Decode(&d); err != nil {
				skipped = append(skipped, Skipped{Index: i, Reason: err.Error()})
				docs = append(docs, ruleDoc{})
				continue
			}
			docs = append(docs, d)
		}
	default:
		var raws []json.RawMessage
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, nil, fmt.Errorf("decode json rule source: %w", err)
		}
		for i, raw := range raws {
			var d ruleDoc
			if err := json.Unmarshal(raw, &d); err != nil {
				skipped = append(skipped, Skipped{Index: i, Reason: err.Error()})
				docs = append(docs, ruleDoc{})
				continue
			}
			docs = append(docs, d)
		}
	}

	if len(docs) == 0 {
		return nil, nil, ErrEmptySource
	}

	decodeFailed := make(map[int]bool, len(skipped))
	for _, s := range skipped {
		decodeFailed[s.Index] = true
	}

	rules := make([]Rule, 0, len(docs))
	for i, d := range docs {
		if decodeFailed[i] {
			continue
		}
		if d.Name == "" || d.Pattern == "" || d.Type == "" {
			skipped = append(skipped, Skipped{Index: i, Name: d.Name, Reason: "name, pattern and type are required"})
			continue
		}
		rules = append(rules, d.rule())
	}
	return rules, skipped, nil
}

func (d ruleDoc) rule() Rule {
	r := Rule{
		Name:        d.Name,
		Pattern:     d.Pattern,
		Type:        SemanticType(d.Type),
		Color:       d.Color,
		Description: d.Description,
		HexGroup:    d.HexGroup,
		Scope:       Scope(d.Scope),
	}
	if r.Scope != ScopeHeader {
		r.Scope = ScopeLine
	}
	if d.MultiDescriptions {
		for _, sp := range d.SubPatterns {
			r.Decoders = append(r.Decoders, FieldDecoder{
				Name:   sp.Name,
				Group:  sp.CaptureGroup,
				Labels: sp.Descriptions,
			})
		}
	}
	return r
}
