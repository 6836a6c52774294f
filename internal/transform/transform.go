// Package transform converts values between the flat shape of remote records
// and the nested shape of local cards, driven by field mappings.
package transform

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mrlokans/cardsync/internal/entities"
)

// Direction is the way a value travels.
type Direction string

const (
	RemoteToLocal Direction = "remote_to_local"
	LocalToRemote Direction = "local_to_remote"
)

const dateLayout = "2006-01-02"

var truthy = map[string]bool{"true": true, "1": true, "yes": true}

// TransformValue converts a single value. Unknown kinds pass the value through.
func TransformValue(value any, kind entities.TransformType, config map[string]any, direction Direction) any {
	switch kind {
	case entities.TransformValueMap:
		return valueMap(value, config, direction)
	case entities.TransformDateFormat:
		return dateFormat(value)
	case entities.TransformBoolean:
		return boolean(value, direction)
	default:
		return value
	}
}

// valueMap looks the value up in config["mapping"]. Remote to local is a forward
// lookup; local to remote searches the map values in sorted key order so the
// result is stable when several keys map to the same value. Unmapped values
// pass through.
func valueMap(value any, config map[string]any, direction Direction) any {
	mapping := lookupTable(config)
	if len(mapping) == 0 || value == nil {
		return value
	}

	if direction == RemoteToLocal {
		if mapped, ok := mapping[fmt.Sprint(value)]; ok {
			return mapped
		}
		return value
	}

	keys := make([]string, 0, len(mapping))
	for k := range mapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	needle := fmt.Sprint(value)
	for _, k := range keys {
		if fmt.Sprint(mapping[k]) == needle {
			return k
		}
	}
	return value
}

func lookupTable(config map[string]any) map[string]any {
	if config == nil {
		return nil
	}
	switch m := config["mapping"].(type) {
	case map[string]any:
		return m
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out
	default:
		return nil
	}
}

// dateFormat keeps the YYYY-MM-DD prefix of date-time strings.
func dateFormat(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		if v == "" {
			return nil
		}
		if len(v) >= len(dateLayout) {
			return v[:len(dateLayout)]
		}
		return v
	case time.Time:
		if v.IsZero() {
			return nil
		}
		return v.Format(dateLayout)
	case *time.Time:
		if v == nil || v.IsZero() {
			return nil
		}
		return v.Format(dateLayout)
	default:
		return value
	}
}

func boolean(value any, direction Direction) any {
	b := toBool(value)
	if direction == LocalToRemote {
		if b {
			return "true"
		}
		return "false"
	}
	return b
}

func toBool(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return truthy[strings.ToLower(strings.TrimSpace(v))]
	default:
		return truthy[strings.ToLower(fmt.Sprint(v))]
	}
}

// ApplyMappings builds the other shape of record. On a remote-to-local pass
// only remote_leads mappings apply and the result is a nested tree keyed by
// local paths; on a local-to-remote pass only local_leads mappings apply and
// the result is flat, keyed by remote field. Mappings whose source value is
// absent are skipped.
func ApplyMappings(record map[string]any, mappings []entities.FieldMapping, direction Direction) map[string]any {
	out := make(map[string]any)

	for _, fm := range mappings {
		if !participates(fm, direction) {
			continue
		}

		if direction == RemoteToLocal {
			value, ok := record[fm.RemoteField]
			if !ok {
				continue
			}
			SetPath(out, fm.LocalFieldPath, TransformValue(value, fm.TransformType, fm.TransformConfig, direction))
			continue
		}

		value := GetPath(record, fm.LocalFieldPath)
		if value == nil && !hasPath(record, fm.LocalFieldPath) {
			continue
		}
		out[fm.RemoteField] = TransformValue(value, fm.TransformType, fm.TransformConfig, direction)
	}

	return out
}

func participates(fm entities.FieldMapping, direction Direction) bool {
	leads := fm.Direction
	if leads == "" {
		leads = entities.FieldDirectionRemoteLeads
	}
	if direction == RemoteToLocal {
		return leads == entities.FieldDirectionRemoteLeads
	}
	return leads == entities.FieldDirectionLocalLeads
}

func hasPath(tree map[string]any, path string) bool {
	idx := strings.LastIndex(path, ".")
	parent := tree
	if idx >= 0 {
		m, ok := asMap(GetPath(tree, path[:idx]))
		if !ok {
			return false
		}
		parent = m
	}
	_, ok := parent[path[idx+1:]]
	return ok
}
