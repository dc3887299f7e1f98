// Package params reads the run parameters of the harness: filters, debug,
// random order and the other switches, from a URL query or a params file.
package params

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"

	"github.com/ethereum-optimism/infra/op-harness/filter"
	"github.com/ethereum-optimism/infra/op-harness/runner"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

// Query keys.
const (
	KeyID      = "id"
	KeySuite   = "suite"
	KeyTest    = "test"
	KeyTag     = "tag"
	KeyFilter  = "filter"
	KeyDebug   = "debug"
	KeyRandom  = "random"
	KeySeed    = "seed"
	KeyBail    = "bail"
	KeyTimeout = "timeout"
	KeyNoCatch = "nocatch"
	KeyFailed  = "failed"
)

// Duration is a time.Duration read from integer milliseconds or a Go
// duration string.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := types.ParseTimeout(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Snapshot is the parameter set a run is started with.
type Snapshot struct {
	Suites  filter.Inclusion `yaml:"suites" toml:"suites" json:"suites"`
	Tests   filter.Inclusion `yaml:"tests" toml:"tests" json:"tests"`
	Tags    filter.Inclusion `yaml:"tags" toml:"tags" json:"tags"`
	Text    string           `yaml:"filter,omitempty" toml:"filter,omitempty" json:"filter,omitempty"`
	Debug   bool             `yaml:"debug,omitempty" toml:"debug,omitempty" json:"debug,omitempty"`
	Random  bool             `yaml:"random,omitempty" toml:"random,omitempty" json:"random,omitempty"`
	Seed    *uint64          `yaml:"seed,omitempty" toml:"seed,omitempty" json:"seed,omitempty"`
	Bail    int              `yaml:"bail,omitempty" toml:"bail,omitempty" json:"bail,omitempty"`
	Timeout Duration         `yaml:"timeout,omitempty" toml:"timeout,omitempty" json:"timeout,omitempty"`
	NoCatch bool             `yaml:"nocatch,omitempty" toml:"nocatch,omitempty" json:"nocatch,omitempty"`
	Failed  bool             `yaml:"failed,omitempty" toml:"failed,omitempty" json:"failed,omitempty"`
}

// Parse reads a snapshot from a URL query string. Id lists may repeat a key
// or be comma separated; a leading "-" puts an entry in the skip set. An
// "id" entry applies to both suites and tests. Unknown keys are ignored.
func Parse(query string) (*Snapshot, error) {
	values, err := url.ParseQuery(strings.TrimPrefix(query, "?"))
	if err != nil {
		return nil, fmt.Errorf("parsing query: %w", err)
	}

	s := &Snapshot{}
	for key, vals := range values {
		switch key {
		case KeyID:
			addEntries(&s.Suites, vals)
			addEntries(&s.Tests, vals)
		case KeySuite:
			addEntries(&s.Suites, vals)
		case KeyTest:
			addEntries(&s.Tests, vals)
		case KeyTag:
			addEntries(&s.Tags, vals)
		case KeyFilter:
			s.Text = vals[len(vals)-1]
		case KeyDebug:
			if s.Debug, err = parseBool(key, vals); err != nil {
				return nil, err
			}
		case KeyRandom:
			if s.Random, err = parseBool(key, vals); err != nil {
				return nil, err
			}
		case KeyNoCatch:
			if s.NoCatch, err = parseBool(key, vals); err != nil {
				return nil, err
			}
		case KeyFailed:
			if s.Failed, err = parseBool(key, vals); err != nil {
				return nil, err
			}
		case KeySeed:
			seed, err := strconv.ParseUint(vals[len(vals)-1], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", key, err)
			}
			s.Seed = &seed
		case KeyBail:
			bail, err := strconv.Atoi(vals[len(vals)-1])
			if err != nil || bail < 0 {
				return nil, fmt.Errorf("invalid %s %q", key, vals[len(vals)-1])
			}
			s.Bail = bail
		case KeyTimeout:
			if err := s.Timeout.UnmarshalText([]byte(vals[len(vals)-1])); err != nil {
				return nil, fmt.Errorf("invalid %s: %w", key, err)
			}
		}
	}
	return s, nil
}

// addEntries splits comma separated values into the only and skip sets.
func addEntries(inc *filter.Inclusion, vals []string) {
	for _, v := range vals {
		for _, entry := range strings.Split(v, ",") {
			entry = strings.TrimSpace(entry)
			switch {
			case entry == "" || entry == "-":
			case strings.HasPrefix(entry, "-"):
				inc.Skip = appendUnique(inc.Skip, entry[1:])
			default:
				inc.Only = appendUnique(inc.Only, entry)
			}
		}
	}
}

// parseBool treats a key without a value as true.
func parseBool(key string, vals []string) (bool, error) {
	v := vals[len(vals)-1]
	if v == "" {
		return true, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func appendUnique(list []string, v string) []string {
	if slices.Contains(list, v) {
		return list
	}
	return append(list, v)
}

// Encode renders the snapshot as a query string that Parse reads back.
func (s *Snapshot) Encode() string {
	values := url.Values{}
	encodeInclusion(values, KeySuite, s.Suites)
	encodeInclusion(values, KeyTest, s.Tests)
	encodeInclusion(values, KeyTag, s.Tags)
	if s.Text != "" {
		values.Set(KeyFilter, s.Text)
	}
	for key, set := range map[string]bool{KeyDebug: s.Debug, KeyRandom: s.Random, KeyNoCatch: s.NoCatch, KeyFailed: s.Failed} {
		if set {
			values.Set(key, "true")
		}
	}
	if s.Seed != nil {
		values.Set(KeySeed, strconv.FormatUint(*s.Seed, 10))
	}
	if s.Bail > 0 {
		values.Set(KeyBail, strconv.Itoa(s.Bail))
	}
	if s.Timeout > 0 {
		values.Set(KeyTimeout, strconv.FormatInt(time.Duration(s.Timeout).Milliseconds(), 10))
	}
	return values.Encode()
}

func encodeInclusion(values url.Values, key string, inc filter.Inclusion) {
	for _, v := range inc.Only {
		values.Add(key, v)
	}
	for _, v := range inc.Skip {
		values.Add(key, "-"+v)
	}
}

// Load reads a snapshot from a YAML or TOML file, picked by extension.
func Load(path string) (*Snapshot, error) {
	log.Debug("Reading params file", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading params file: %w", err)
	}

	var s Snapshot
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("parsing params file: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &s); err != nil {
			return nil, fmt.Errorf("parsing params file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported params file extension %q", ext)
	}
	return &s, nil
}

// Merge returns s overlaid with other: id and tag sets are united, and every
// switch set in other wins.
func (s *Snapshot) Merge(other *Snapshot) *Snapshot {
	out := s.clone()
	if other == nil {
		return out
	}
	out.Suites = mergeInclusion(out.Suites, other.Suites)
	out.Tests = mergeInclusion(out.Tests, other.Tests)
	out.Tags = mergeInclusion(out.Tags, other.Tags)
	if other.Text != "" {
		out.Text = other.Text
	}
	out.Debug = out.Debug || other.Debug
	out.Random = out.Random || other.Random
	out.NoCatch = out.NoCatch || other.NoCatch
	out.Failed = out.Failed || other.Failed
	if other.Seed != nil {
		seed := *other.Seed
		out.Seed = &seed
	}
	if other.Bail > 0 {
		out.Bail = other.Bail
	}
	if other.Timeout > 0 {
		out.Timeout = other.Timeout
	}
	return out
}

func (s *Snapshot) clone() *Snapshot {
	out := *s
	out.Suites = cloneInclusion(s.Suites)
	out.Tests = cloneInclusion(s.Tests)
	out.Tags = cloneInclusion(s.Tags)
	if s.Seed != nil {
		seed := *s.Seed
		out.Seed = &seed
	}
	return &out
}

func cloneInclusion(i filter.Inclusion) filter.Inclusion {
	return filter.Inclusion{Only: slices.Clone(i.Only), Skip: slices.Clone(i.Skip)}
}

func mergeInclusion(a, b filter.Inclusion) filter.Inclusion {
	for _, v := range b.Only {
		a.Only = appendUnique(a.Only, v)
	}
	for _, v := range b.Skip {
		a.Skip = appendUnique(a.Skip, v)
	}
	return a
}

// Filter returns the filter part of the snapshot.
func (s *Snapshot) Filter() filter.Params {
	return filter.Params{
		Suites: cloneInclusion(s.Suites),
		Tests:  cloneInclusion(s.Tests),
		Tags:   cloneInclusion(s.Tags),
		Text:   s.Text,
	}
}

// Apply copies the snapshot into a runner config. Zero values leave the
// config untouched.
func (s *Snapshot) Apply(cfg *runner.Config) {
	cfg.Filter = s.Filter()
	cfg.Debug = cfg.Debug || s.Debug
	cfg.Random = cfg.Random || s.Random
	cfg.NoCatch = cfg.NoCatch || s.NoCatch
	cfg.RerunFailed = cfg.RerunFailed || s.Failed
	if s.Seed != nil {
		seed := *s.Seed
		cfg.Seed = &seed
	}
	if s.Bail > 0 {
		cfg.Bail = s.Bail
	}
	if s.Timeout > 0 {
		cfg.Timeout = time.Duration(s.Timeout)
	}
}
