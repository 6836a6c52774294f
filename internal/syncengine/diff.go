package syncengine

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/mrlokans/cardsync/internal/entities"
	"github.com/mrlokans/cardsync/internal/transform"
)

const (
	pathName        = "name"
	pathDescription = "description"
	pathLifecycle   = "lifecycle"
	pathAttributes  = "attributes"
)

// CardPayload is the card-shaped candidate built from one transformed remote record.
type CardPayload struct {
	Name        string
	Description string
	Lifecycle   map[string]any
	Attributes  map[string]any
}

// PayloadFromTree reads the card fields out of a transformed record. Keys
// other than name, description, lifecycle and attributes are ignored.
func PayloadFromTree(tree map[string]any) CardPayload {
	p := CardPayload{
		Name:        scalarString(tree[pathName]),
		Description: scalarString(tree[pathDescription]),
	}
	if m, ok := tree[pathLifecycle].(map[string]any); ok {
		p.Lifecycle = m
	}
	if m, ok := tree[pathAttributes].(map[string]any); ok {
		p.Attributes = m
	}
	return p
}

// Tree renders the payload back into the nested shape stored on staged records.
func (p CardPayload) Tree() map[string]any {
	tree := make(map[string]any)
	if p.Name != "" {
		tree[pathName] = p.Name
	}
	if p.Description != "" {
		tree[pathDescription] = p.Description
	}
	if len(p.Lifecycle) > 0 {
		tree[pathLifecycle] = p.Lifecycle
	}
	if len(p.Attributes) > 0 {
		tree[pathAttributes] = p.Attributes
	}
	return tree
}

// Diff lists the leaves where the payload would change the card. A leaf is
// changed only when the new value is non-empty and differs from the current
// one; empty remote values never clear local data.
func Diff(card *entities.Card, p CardPayload) entities.FieldDiff {
	diff := entities.FieldDiff{}
	current := card.Tree()

	compare := func(path string, newValue any) {
		if isEmpty(newValue) {
			return
		}
		oldValue := transform.GetPath(current, path)
		if sameValue(oldValue, newValue) {
			return
		}
		diff[path] = entities.FieldChange{Old: oldValue, New: newValue}
	}

	compare(pathName, p.Name)
	compare(pathDescription, p.Description)
	for _, leaf := range flatten(pathLifecycle, p.Lifecycle) {
		compare(leaf.path, leaf.value)
	}
	for _, leaf := range flatten(pathAttributes, p.Attributes) {
		compare(leaf.path, leaf.value)
	}

	return diff
}

// ApplyDiff writes the new side of every change onto the card.
func ApplyDiff(card *entities.Card, diff entities.FieldDiff) {
	paths := make([]string, 0, len(diff))
	for path := range diff {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		value := diff[path].New
		switch {
		case path == pathName:
			card.Name = scalarString(value)
		case path == pathDescription:
			card.Description = scalarString(value)
		case strings.HasPrefix(path, pathLifecycle+"."):
			if card.Lifecycle == nil {
				card.Lifecycle = map[string]any{}
			}
			transform.SetPath(card.Lifecycle, strings.TrimPrefix(path, pathLifecycle+"."), value)
		case strings.HasPrefix(path, pathAttributes+"."):
			if card.Attributes == nil {
				card.Attributes = map[string]any{}
			}
			transform.SetPath(card.Attributes, strings.TrimPrefix(path, pathAttributes+"."), value)
		}
	}
}

type leaf struct {
	path  string
	value any
}

// flatten walks a nested map and returns its leaves with dotted paths, in
// sorted order.
func flatten(prefix string, tree map[string]any) []leaf {
	if len(tree) == 0 {
		return nil
	}

	keys := make([]string, 0, len(tree))
	for k := range tree {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var leaves []leaf
	for _, k := range keys {
		path := prefix + "." + k
		if nested, ok := tree[k].(map[string]any); ok {
			leaves = append(leaves, flatten(path, nested)...)
			continue
		}
		leaves = append(leaves, leaf{path: path, value: tree[k]})
	}
	return leaves
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []any:
		return len(val) == 0
	default:
		return false
	}
}

// sameValue compares leaves by their printed form so that a number decoded
// from JSON equals the same number produced by a transform.
func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if reflect.DeepEqual(a, b) {
		return true
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func scalarString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}
