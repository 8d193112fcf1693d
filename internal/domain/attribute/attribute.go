// Package attribute defines typed capability/requirement attributes and the
// groups that hold them.
package attribute

import (
	"fmt"

	"github.com/routegrid/routegrid/internal/domain"
)

// Type is the declared value type of an attribute.
type Type string

const (
	TypeString  Type = "string"
	TypeDouble  Type = "double"
	TypeBoolean Type = "boolean"
)

// Attribute is a single typed name/value pair. Several attributes may share a
// name within one group (multi-valued selector).
type Attribute struct {
	Name    string  `json:"name"`
	Type    Type    `json:"type"`
	String  string  `json:"string,omitempty"`
	Double  float64 `json:"double,omitempty"`
	Boolean bool    `json:"boolean,omitempty"`
}

// Value returns the attribute's value as an untyped comparison key.
func (a Attribute) Value() any {
	switch a.Type {
	case TypeString:
		return a.String
	case TypeDouble:
		return a.Double
	case TypeBoolean:
		return a.Boolean
	}
	return nil
}

// Group is a set of attributes keyed by name. It describes either an agent's
// capabilities or a task's requirements.
type Group map[string][]Attribute

// Get returns all attributes with the given name, or nil.
func (g Group) Get(name string) []Attribute {
	if g == nil {
		return nil
	}
	return g[name]
}

// Size returns the number of distinct attribute names in the group.
func (g Group) Size() int {
	return len(g)
}

// FromDTO converts the wire representation (a JSON object mapping names to
// string, number, boolean, or homogeneous array values) into a Group.
func FromDTO(dto map[string]any) (Group, error) {
	if dto == nil {
		return nil, nil
	}
	g := make(Group, len(dto))
	for name, raw := range dto {
		values, ok := raw.([]any)
		if !ok {
			values = []any{raw}
		}
		for _, v := range values {
			attr, err := fromValue(name, v)
			if err != nil {
				return nil, err
			}
			g[name] = append(g[name], attr)
		}
	}
	return g, nil
}

func fromValue(name string, v any) (Attribute, error) {
	switch val := v.(type) {
	case string:
		return Attribute{Name: name, Type: TypeString, String: val}, nil
	case float64:
		return Attribute{Name: name, Type: TypeDouble, Double: val}, nil
	case int:
		return Attribute{Name: name, Type: TypeDouble, Double: float64(val)}, nil
	case bool:
		return Attribute{Name: name, Type: TypeBoolean, Boolean: val}, nil
	default:
		return Attribute{}, fmt.Errorf("%w: attribute %q has unsupported value type %T", domain.ErrBadValue, name, v)
	}
}

// ToDTO converts the group back to its wire representation. Single-valued
// names map to a scalar, multi-valued names to an array.
func (g Group) ToDTO() map[string]any {
	if g == nil {
		return nil
	}
	dto := make(map[string]any, len(g))
	for name, attrs := range g {
		if len(attrs) == 1 {
			dto[name] = attrs[0].Value()
			continue
		}
		values := make([]any, 0, len(attrs))
		for _, a := range attrs {
			values = append(values, a.Value())
		}
		dto[name] = values
	}
	return dto
}

// WeakEqual reports whether two groups are considered unchanged for the
// purpose of queue re-binding. Only the size and the key sets are compared;
// values are deliberately ignored, so changing an attribute's value without
// changing its name does not count as a capability change.
func WeakEqual(newGroup, oldGroup Group) bool {
	if newGroup == nil && oldGroup == nil {
		return true
	}
	if newGroup == nil || oldGroup == nil {
		return false
	}
	if len(newGroup) != len(oldGroup) {
		return false
	}
	for key := range newGroup {
		if _, ok := oldGroup[key]; !ok {
			return false
		}
	}
	return true
}
