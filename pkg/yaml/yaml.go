package yaml

import (
	"bytes"
	"errors"
	"strings"

	"gopkg.in/yaml.v3"
)

func Unmarshal(in []byte, out any) error {
	return yaml.Unmarshal(in, out)
}

func Marshal(v any) ([]byte, error) {
	return encode(v, 2)
}

func encode(v any, indent int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	enc := yaml.NewEncoder(buf)
	enc.SetIndent(indent)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Patch sets value by the dot separated path ("ring.refresh_token")
// and keeps comments and formatting of other lines.
// Nil value removes the key.
func Patch(src []byte, path string, value any) ([]byte, error) {
	keys := strings.Split(path, ".")
	key, parents := keys[len(keys)-1], keys[:len(keys)-1]

	parent, err := findNode(src, parents)
	if err != nil {
		return nil, err
	}

	var dst []byte
	if parent != nil {
		dst, err = replace(src, key, value, parent)
	} else {
		dst, err = appendSection(src, key, value, parents)
	}
	if err != nil {
		return nil, err
	}

	// result should be still valid
	if err = yaml.Unmarshal(dst, map[string]any{}); err != nil {
		return nil, err
	}

	return dst, nil
}

// findNode returns the mapping node by path or nil if any key is missing
func findNode(src []byte, path []string) (*yaml.Node, error) {
	if len(src) == 0 {
		return nil, nil
	}

	var root yaml.Node
	if err := yaml.Unmarshal(src, &root); err != nil {
		return nil, err
	}
	if len(root.Content) == 0 {
		return nil, nil
	}

	node := root.Content[0]
	for _, name := range path {
		if _, node = child(node, name); node == nil {
			return nil, nil
		}
	}
	return node, nil
}

func child(node *yaml.Node, name string) (key, value *yaml.Node) {
	// mapping content is key, value, key, value...
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == name {
			return node.Content[i], node.Content[i+1]
		}
	}
	return nil, nil
}

func lastLine(node *yaml.Node) int {
	for len(node.Content) > 0 {
		node = node.Content[len(node.Content)-1]
	}
	return node.Line
}

func replace(src []byte, key string, value any, parent *yaml.Node) ([]byte, error) {
	put, err := encode(map[string]any{key: value}, 2)
	if err != nil {
		return nil, err
	}
	if value == nil {
		put = nil
	}

	var i0, i1 int

	if nodeKey, nodeValue := child(parent, key); nodeKey != nil {
		put = indent(put, nodeKey.Column-1)
		i0 = lineOffset(src, nodeKey.Line)
		i1 = lineOffset(src, lastLine(nodeValue)+1)
	} else {
		if value == nil {
			return src, nil
		}
		column := parent.Column
		if len(parent.Content) > 0 {
			column = parent.Content[0].Column
		}
		put = indent(put, column-1)
		i0 = lineOffset(src, lastLine(parent)+1)
		i1 = i0
	}

	if i0 < 0 { // no new line on the end of file
		src = append(src, '\n')
		i0, i1 = len(src), len(src)
	} else if i1 < 0 {
		i1 = len(src)
	}

	dst := make([]byte, 0, len(src)+len(put))
	dst = append(dst, src[:i0]...)
	dst = append(dst, put...)
	return append(dst, src[i1:]...), nil
}

func appendSection(src []byte, key string, value any, path []string) ([]byte, error) {
	if len(path) > 1 || value == nil {
		return nil, errors.New("yaml: path not exist")
	}

	var v any = map[string]any{key: value}
	if len(path) == 1 {
		v = map[string]any{path[0]: v}
	}

	put, err := encode(v, 2)
	if err != nil {
		return nil, err
	}

	dst := make([]byte, 0, len(src)+len(put)+1)
	dst = append(dst, src...)
	if n := len(src); n > 0 && src[n-1] != '\n' {
		dst = append(dst, '\n')
	}
	return append(dst, put...), nil
}

func indent(src []byte, n int) (dst []byte) {
	pre := bytes.Repeat([]byte{' '}, n)
	for len(src) > 0 {
		dst = append(dst, pre...)
		i := bytes.IndexByte(src, '\n') + 1
		if i == 0 {
			return append(dst, src...)
		}
		dst = append(dst, src[:i]...)
		src = src[i:]
	}
	return
}

// lineOffset returns byte offset of the 1-based line or -1
func lineOffset(b []byte, line int) int {
	offset := 0
	for l := 1; l < line; l++ {
		i := bytes.IndexByte(b[offset:], '\n') + 1
		if i == 0 {
			return -1
		}
		offset += i
	}
	return offset
}
