// Package overrides encodes the remote override list kept in a page's
// localStorage. The format is a single comma separated string of
// "appKey@value" entries.
package overrides

import "strings"

const (
	// StorageKey is the localStorage key holding the encoded override list.
	StorageKey = "remoteOverrides"

	// DebugFlagKey is written alongside every apply. The host pages only pick
	// up remote entries when it is set.
	DebugFlagKey = "remoteOverridesDebug"

	// DebugFlagValue is the value written under DebugFlagKey.
	DebugFlagValue = "true"

	entrySeparator = ","
	pairSeparator  = "@"

	// remoteEntrySentinel marks values that are full module federation URLs
	// and must be stored verbatim.
	remoteEntrySentinel = "remoteEntry.js"
)

// Entries is an insertion-ordered mapping of app key to override value.
// The zero value is ready to use.
type Entries struct {
	keys   []string
	values map[string]string
}

// NewEntries returns an empty set of entries.
func NewEntries() *Entries {
	return &Entries{values: make(map[string]string)}
}

// FromMap builds entries from m in the order given by keys. Keys missing from
// m are skipped.
func FromMap(keys []string, m map[string]string) *Entries {
	e := NewEntries()
	for _, k := range keys {
		if v, ok := m[k]; ok {
			e.Set(k, v)
		}
	}
	return e
}

// Set stores value under key. An existing key keeps its position and takes the
// new value. An empty value removes the key.
func (e *Entries) Set(key, value string) {
	if value == "" {
		e.Delete(key)
		return
	}
	if e.values == nil {
		e.values = make(map[string]string)
	}
	if _, ok := e.values[key]; !ok {
		e.keys = append(e.keys, key)
	}
	e.values[key] = value
}

// Get returns the value stored for key.
func (e *Entries) Get(key string) (string, bool) {
	if e == nil || e.values == nil {
		return "", false
	}
	v, ok := e.values[key]
	return v, ok
}

// Delete removes key. Deleting a missing key is a no-op.
func (e *Entries) Delete(key string) {
	if e == nil || e.values == nil {
		return
	}
	if _, ok := e.values[key]; !ok {
		return
	}
	delete(e.values, key)
	for i, k := range e.keys {
		if k == key {
			e.keys = append(e.keys[:i], e.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of entries.
func (e *Entries) Len() int {
	if e == nil {
		return 0
	}
	return len(e.keys)
}

// Keys returns the keys in insertion order.
func (e *Entries) Keys() []string {
	if e == nil {
		return nil
	}
	out := make([]string, len(e.keys))
	copy(out, e.keys)
	return out
}

// Map returns a copy of the entries as a plain map.
func (e *Entries) Map() map[string]string {
	out := make(map[string]string, e.Len())
	if e == nil {
		return out
	}
	for k, v := range e.values {
		out[k] = v
	}
	return out
}

// Strings returns every entry as "key@value", in order.
func (e *Entries) Strings() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.keys))
	for _, k := range e.keys {
		out = append(out, k+pairSeparator+e.values[k])
	}
	return out
}

// Encode serializes entries into the page storage format.
func Encode(e *Entries) string {
	return strings.Join(e.Strings(), entrySeparator)
}

// Decode parses the page storage format. Entries without a key or a value are
// dropped so one corrupt entry never hides the rest of the list.
func Decode(raw string) *Entries {
	e := NewEntries()
	if raw == "" {
		return e
	}
	for _, entry := range strings.Split(raw, entrySeparator) {
		key, value, ok := strings.Cut(entry, pairSeparator)
		if !ok || key == "" || value == "" {
			continue
		}
		e.Set(key, value)
	}
	return e
}

// Normalize rewrites a user supplied value into the form the host page
// expects: slashes become underscores unless the value points at a
// remoteEntry.js bundle.
func Normalize(value string) string {
	if strings.Contains(value, remoteEntrySentinel) {
		return value
	}
	return strings.ReplaceAll(value, "/", "_")
}
