package content

import (
	"encoding/json"
	"strings"
	"time"
)

// Node is one entry of the content tree as seen by a Session.
// Property values are strings, bools, int64 or time.Time.
type Node struct {
	ID       string
	ParentID string
	Path     string
	Name     string
	Type     string
	Created  time.Time

	props map[string]any
}

func newNode(id, parentID, path, name, typ string, created time.Time) *Node {
	return &Node{
		ID:       id,
		ParentID: parentID,
		Path:     path,
		Name:     name,
		Type:     typ,
		Created:  created,
		props:    make(map[string]any),
	}
}

func (n *Node) clone() *Node {
	c := *n
	c.props = make(map[string]any, len(n.props))
	for k, v := range n.props {
		c.props[k] = v
	}
	return &c
}

// Property returns the raw value stored under key.
func (n *Node) Property(key string) (any, bool) {
	v, ok := n.props[key]
	return v, ok
}

// HasProperty reports whether key is set.
func (n *Node) HasProperty(key string) bool {
	_, ok := n.props[key]
	return ok
}

// String returns a string property. Non-string values report false.
func (n *Node) String(key string) (string, bool) {
	s, ok := n.props[key].(string)
	return s, ok
}

// Bool returns a bool property.
func (n *Node) Bool(key string) (bool, bool) {
	switch v := n.props[key].(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(v) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}

// Int returns an integer property, accepting the numeric shapes a JSON
// round trip can produce.
func (n *Node) Int(key string) (int64, bool) {
	switch v := n.props[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			f, ferr := v.Float64()
			if ferr != nil {
				return 0, false
			}
			return int64(f), true
		}
		return i, true
	}
	return 0, false
}

// Time returns a timestamp property; RFC 3339 strings are parsed.
func (n *Node) Time(key string) (time.Time, bool) {
	switch v := n.props[key].(type) {
	case time.Time:
		return v, true
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}

// IsType reports whether the node has the given type tag.
func (n *Node) IsType(typ string) bool {
	return n.Type == typ
}

// normalizeValue maps caller values onto the supported property shapes.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case time.Time:
		return x.UTC()
	}
	return v
}

func childPath(parentPath, name string) string {
	if parentPath == "/" {
		return "/" + name
	}
	return parentPath + "/" + name
}
