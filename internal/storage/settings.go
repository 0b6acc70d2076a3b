package storage

import (
	"fmt"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
)

type SettingRow struct {
	Key   string
	Value string
}

// Settings is one immutable snapshot of the settings table. It is built
// once, published through the container, and never mutated afterwards.
type Settings struct {
	Values   map[string]string
	Version  uint64 // content fingerprint; stable across loads of equal content
	LoadedAt time.Time
}

// ETag renders the fingerprint for HTTP conditional requests.
func (s Settings) ETag() string { return fmt.Sprintf("%q", fmt.Sprintf("%016x", s.Version)) }

// BuildSettings assembles a snapshot from raw rows. The fingerprint hashes
// keys and values in key order, so it does not depend on row order and
// changes whenever any key or value changes.
func BuildSettings(rows []SettingRow) Settings {
	values := make(map[string]string, len(rows))
	keys := make([]string, 0, len(rows))
	for _, r := range rows {
		if _, dup := values[r.Key]; !dup {
			keys = append(keys, r.Key)
		}
		values[r.Key] = r.Value
	}
	sort.Strings(keys)

	h := xxhash.New()
	for _, k := range keys {
		_, _ = h.WriteString(k)
		_, _ = h.Write([]byte{0})
		_, _ = h.WriteString(values[k])
		_, _ = h.Write([]byte{0})
	}

	return Settings{
		Values:   values,
		Version:  h.Sum64(),
		LoadedAt: time.Now().UTC(),
	}
}
