package selector

import (
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Automatic selects the benchmarking mode for a verb.
const Automatic = "automatic"

// DefaultTables is the table flavor used when none is
// configured.
const DefaultTables = "mpich"

// ErrConfig is returned for malformed or unknown
// configuration values.
var ErrConfig = errors.New("invalid selector configuration")

// Config determines how a Selector picks algorithms.
type Config struct {
	// Verbs maps a verb to an algorithm name or to
	// Automatic. Other verbs are resolved with Tables.
	Verbs map[string]string

	// Tables names the threshold tables, such as "mpich"
	// or "ompi".
	Tables string
}

// ParseConfig parses a comma-separated list of
// verb=algorithm pairs. The special key "tables" sets the
// table flavor.
//
// For example:
//
//	bcast=binomial_tree,allreduce=automatic,tables=ompi
func ParseConfig(s string) (Config, error) {
	cfg := Config{Verbs: map[string]string{}, Tables: DefaultTables}
	if err := cfg.merge(s); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) merge(s string) error {
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		key, value, ok := strings.Cut(field, "=")
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if !ok || key == "" || value == "" {
			return errors.Wrapf(ErrConfig, "malformed entry %q", field)
		}
		if key == "tables" {
			c.Tables = value
		} else {
			c.Verbs[key] = value
		}
	}
	return nil
}

// ConfigFromEnv reads a Config from the COLL_SELECTOR
// variable, which uses the ParseConfig syntax, and then
// applies per-verb overrides such as COLL_ALLREDUCE=rdb and
// COLL_TABLES=ompi.
func ConfigFromEnv() (Config, error) {
	cfg, err := ParseConfig(os.Getenv("COLL_SELECTOR"))
	if err != nil {
		return Config{}, errors.Wrap(err, "COLL_SELECTOR")
	}
	for _, cat := range catalogs() {
		if name := os.Getenv(envKey(cat.verb())); name != "" {
			cfg.Verbs[cat.verb()] = name
		}
	}
	if tables := os.Getenv(envKey("tables")); tables != "" {
		cfg.Tables = tables
	}
	return cfg, nil
}

func envKey(name string) string {
	return "COLL_" + strings.ToUpper(name)
}

// Validate checks that every verb, algorithm name, and the
// table flavor are known.
func (c Config) Validate() error {
	if _, ok := Tables()[c.Tables]; !ok {
		return errors.Wrapf(ErrConfig, "unknown tables %q", c.Tables)
	}
	verbs := make([]string, 0, len(c.Verbs))
	for verb := range c.Verbs {
		verbs = append(verbs, verb)
	}
	sort.Strings(verbs)
	for _, verb := range verbs {
		name := c.Verbs[verb]
		cat, ok := catalogFor(verb)
		if !ok {
			return errors.Wrapf(ErrConfig, "unknown verb %q", verb)
		}
		if name != Automatic && !cat.has(name) {
			return errors.Wrapf(ErrConfig, "unknown %s algorithm %q (known: %s)", verb, name,
				strings.Join(cat.Names(), ", "))
		}
	}
	return nil
}
