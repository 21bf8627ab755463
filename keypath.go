package objectstore

import (
	"strings"

	"github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

var partsCache *lru.Cache

func init() {
	partsCache, _ = lru.New(1024)
}

// KeyPath locates a key within a record. An empty KeyPath means keys are
// supplied out of line. A single element is a dotted path ("" is the record
// itself); several elements form a compound path yielding an array key.
type KeyPath []string

// Path returns a single-path KeyPath.
func Path(p string) KeyPath {
	return KeyPath{p}
}

// CompoundPath returns a KeyPath producing array keys.
func CompoundPath(paths ...string) KeyPath {
	return KeyPath(paths)
}

func (kp KeyPath) inline() bool {
	return len(kp) > 0
}

func (kp KeyPath) compound() bool {
	return len(kp) > 1
}

func (kp KeyPath) String() string {
	if kp.compound() {
		return "[" + strings.Join(kp, ",") + "]"
	}
	return strings.Join(kp, "")
}

func (kp KeyPath) validate() error {
	for _, p := range kp {
		if p == "" {
			if kp.compound() {
				return errors.Wrap(ErrInvalidSchema, "compound key path contains an empty path")
			}
			continue
		}
		for _, part := range pathParts(p) {
			if part == "" {
				return errors.Wrapf(ErrInvalidSchema, "malformed key path %q", p)
			}
		}
	}
	return nil
}

func pathParts(p string) []string {
	if p == "" {
		return nil
	}
	if v, ok := partsCache.Get(p); ok {
		return v.([]string)
	}
	parts := strings.Split(p, ".")
	partsCache.Add(p, parts)
	return parts
}

func evaluatePath(value interface{}, p string) (interface{}, bool) {
	for _, part := range pathParts(p) {
		m, ok := value.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if value, ok = m[part]; !ok {
			return nil, false
		}
	}
	return value, true
}

// extract evaluates the key path on a normalized value. The second return is
// false when the path does not resolve to a valid key.
func (kp KeyPath) extract(value interface{}) (interface{}, bool) {
	if !kp.compound() {
		v, ok := evaluatePath(value, kp[0])
		if !ok {
			return nil, false
		}
		k, err := normalizeKey(v)
		return k, err == nil
	}
	out := make([]interface{}, len(kp))
	for i, p := range kp {
		v, ok := evaluatePath(value, p)
		if !ok {
			return nil, false
		}
		k, err := normalizeKey(v)
		if err != nil {
			return nil, false
		}
		out[i] = k
	}
	return out, true
}

// inject stores key at a single (non-compound) path, creating intermediate
// maps as needed.
func (kp KeyPath) inject(value interface{}, key interface{}) error {
	parts := pathParts(kp[0])
	if len(parts) == 0 {
		return errors.Wrap(ErrInvalidValue, "cannot inject a key into the record itself")
	}
	m, ok := value.(map[string]interface{})
	if !ok {
		return errors.Wrapf(ErrInvalidValue, "cannot inject key at %q into %T", kp[0], value)
	}
	for _, part := range parts[:len(parts)-1] {
		next, ok := m[part]
		if !ok {
			child := make(map[string]interface{})
			m[part] = child
			m = child
			continue
		}
		if m, ok = next.(map[string]interface{}); !ok {
			return errors.Wrapf(ErrInvalidValue, "cannot inject key at %q: %q is %T", kp[0], part, next)
		}
	}
	m[parts[len(parts)-1]] = key
	return nil
}

// extractMulti evaluates a multi-entry key path. An array value yields each
// distinct valid element; other values yield themselves if they are valid keys.
func (kp KeyPath) extractMulti(value interface{}) []interface{} {
	v, ok := evaluatePath(value, kp[0])
	if !ok {
		return nil
	}
	arr, ok := v.([]interface{})
	if !ok {
		if k, err := normalizeKey(v); err == nil {
			return []interface{}{k}
		}
		return nil
	}
	seen := make(map[string]struct{}, len(arr))
	out := make([]interface{}, 0, len(arr))
	for _, elem := range arr {
		k, err := normalizeKey(elem)
		if err != nil {
			continue
		}
		enc := string(appendKey(nil, k))
		if _, ok := seen[enc]; ok {
			continue
		}
		seen[enc] = struct{}{}
		out = append(out, k)
	}
	return out
}
