package rates

import (
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/watchpoints/points-engine/pkg/enums"
)

type fileTable struct {
	WindowSeconds   *int64           `toml:"window_seconds"`
	DefaultRate     *int64           `toml:"default_rate"`
	MinWatchSeconds *int64           `toml:"min_watch_seconds"`
	Rates           map[string]int64 `toml:"rates"`
}

// LoadFile reads a TOML rate table. Keys missing from the file keep their
// built-in values and categories in [rates] replace or extend the defaults:
//
//	window_seconds = 600
//	default_rate = 50
//	[rates]
//	FINANCE = 500
//	PODCASTS = 200
func LoadFile(path string) (Table, error) {
	var raw fileTable
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Table{}, fmt.Errorf("decode rate file %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return Table{}, fmt.Errorf("rate file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return raw.merge(DefaultTable()), nil
}

func (f fileTable) merge(table Table) Table {
	if f.WindowSeconds != nil {
		table.WindowSeconds = *f.WindowSeconds
	}
	if f.DefaultRate != nil {
		table.DefaultRate = *f.DefaultRate
	}
	if f.MinWatchSeconds != nil {
		table.MinWatchSeconds = *f.MinWatchSeconds
	}
	for category, rate := range f.Rates {
		table.BaseRates[enums.NormalizeContentCategory(category)] = rate
	}
	return table
}

// Load returns the table from path, or the built-in table when path is empty.
func Load(path string) (Table, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultTable(), nil
	}
	return LoadFile(path)
}

// Encode writes table in the format LoadFile reads.
func Encode(w io.Writer, table Table) error {
	window, rate, minWatch := table.WindowSeconds, table.DefaultRate, table.MinWatchSeconds
	raw := fileTable{
		WindowSeconds:   &window,
		DefaultRate:     &rate,
		MinWatchSeconds: &minWatch,
		Rates:           make(map[string]int64, len(table.BaseRates)),
	}
	for category, r := range table.BaseRates {
		raw.Rates[string(category)] = r
	}
	if err := toml.NewEncoder(w).Encode(raw); err != nil {
		return fmt.Errorf("encode rate table: %w", err)
	}
	return nil
}
