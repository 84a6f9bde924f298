package models

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var errNoNames = errors.New("class names empty")

// ParseNames decodes a class-name table. Both the mapping form written into
// exported model metadata ({0: 'eye', 1: 'palpebral'}) and a plain sequence
// ([eye, palpebral]) are accepted.
func ParseNames(raw string) (map[int]string, error) {
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(raw), &node); err != nil {
		return nil, fmt.Errorf("parse class names: %w", err)
	}
	if node.Kind == yaml.DocumentNode && len(node.Content) == 1 {
		return decodeNames(node.Content[0])
	}
	return decodeNames(&node)
}

// LoadNamesFile reads the names key of a dataset YAML file.
func LoadNamesFile(path string) (map[int]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read names file: %w", err)
	}

	var doc struct {
		Names yaml.Node `yaml:"names"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse names file: %w", err)
	}

	return decodeNames(&doc.Names)
}

func decodeNames(node *yaml.Node) (map[int]string, error) {
	names := make(map[int]string)

	switch node.Kind {
	case yaml.MappingNode:
		if err := node.Decode(&names); err != nil {
			return nil, fmt.Errorf("decode class names: %w", err)
		}
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return nil, fmt.Errorf("decode class names: %w", err)
		}
		for i, name := range list {
			names[i] = name
		}
	default:
		return nil, errNoNames
	}

	if len(names) == 0 {
		return nil, errNoNames
	}
	return names, nil
}
