package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zhouzirui/ernie-chat/backend/pkg/utils"
)

// ErrNotMapping is returned when the document root is not a YAML mapping.
var ErrNotMapping = errors.New("config root is not a mapping")

// KeyValue is one top-level string setting.
type KeyValue struct {
	Key   string
	Value string
}

// RewriteKeys sets top-level string keys in the YAML file at path. The file is
// parsed into a node tree so comments, key order and unrelated keys survive.
// Missing keys are appended. Multi-line values are emitted as literal blocks.
func RewriteKeys(path string, values []KeyValue) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	out, err := rewriteDocument(data, values)
	if err != nil {
		return err
	}

	return utils.WriteFileAtomic(path, out)
}

func rewriteDocument(data []byte, values []KeyValue) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Empty file: start a fresh mapping.
	if doc.Kind == 0 {
		doc = yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}},
		}
	}

	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, ErrNotMapping
	}
	root := doc.Content[0]

	for _, kv := range values {
		scalar, err := stringNode(kv.Value)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", kv.Key, err)
		}

		if existing := lookup(root, kv.Key); existing != nil {
			scalar.HeadComment = existing.HeadComment
			scalar.LineComment = existing.LineComment
			scalar.FootComment = existing.FootComment
			*existing = *scalar
			continue
		}

		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: kv.Key},
			scalar,
		)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// lookup returns the value node for key in a mapping, or nil.
func lookup(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

func stringNode(value string) (*yaml.Node, error) {
	var n yaml.Node
	if err := n.Encode(value); err != nil {
		return nil, err
	}
	if strings.Contains(value, "\n") {
		n.Style = yaml.LiteralStyle
	}
	return &n, nil
}
