package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// GetPath retrieves a value from the configuration using a dot-notation path
// such as "link.sqlite.path".
func (c *Config) GetPath(path string) (any, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	var current any = m
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			continue
		}
		node, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("path %q breaks at %q (not a map)", path, part)
		}
		val, exists := node[part]
		if !exists {
			return nil, fmt.Errorf("path %q: key %q not found", path, part)
		}
		current = val
	}
	return current, nil
}

// SetPath sets the scalar at a dot-notation path in the YAML file at
// configPath, keeping the rest of the document intact. The edited document
// must still be a valid configuration. The file is only written when apply
// is true. The returned Config reflects the edit either way.
func SetPath(configPath, path, value string, apply bool) (*Config, error) {
	if strings.Trim(path, ".") == "" {
		return nil, fmt.Errorf("path is empty")
	}

	original, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(original, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}

	target, err := findNode(doc.Content[0], path)
	if err != nil {
		return nil, fmt.Errorf("path %q: %w", path, err)
	}
	target.Kind = yaml.ScalarNode
	target.Tag = guessTag(value)
	target.Value = value
	target.Content = nil

	candidate, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(candidate)
	if err != nil {
		return nil, fmt.Errorf("rejected change: %w", err)
	}
	if !apply {
		return cfg, nil
	}

	mode := os.FileMode(0o644)
	if info, statErr := os.Stat(configPath); statErr == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(configPath, candidate, mode); err != nil {
		return nil, fmt.Errorf("failed to persist config change: %w", err)
	}
	return cfg, nil
}

// findNode walks a mapping node along path, creating missing keys.
func findNode(node *yaml.Node, path string) (*yaml.Node, error) {
	current := node
	for _, part := range strings.Split(strings.Trim(path, "."), ".") {
		if current.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("%q is not inside a mapping", part)
		}

		var next *yaml.Node
		for i := 0; i+1 < len(current.Content); i += 2 {
			if current.Content[i].Value == part {
				next = current.Content[i+1]
				break
			}
		}
		if next == nil {
			next = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			current.Content = append(current.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: part},
				next,
			)
		}
		current = next
	}
	return current, nil
}

func guessTag(v string) string {
	if v == "true" || v == "false" {
		return "!!bool"
	}
	digits := v != "" && v != "-"
	for i, c := range v {
		if i == 0 && c == '-' {
			continue
		}
		if c < '0' || c > '9' {
			digits = false
			break
		}
	}
	if digits {
		return "!!int"
	}
	return "!!str"
}
