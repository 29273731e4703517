package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
)

//go:embed waifus.json
var defaultList []byte

// DefaultSourceName labels the built-in list in errors and logs.
const DefaultSourceName = "(built-in)"

type Mode string

const (
	// ModeReplace drops everything loaded before this source.
	ModeReplace Mode = "replace"
	// ModeExtend appends this source to what was loaded before it.
	ModeExtend Mode = "extend"
)

var (
	ErrInvalidMode  = errors.New("invalid source mode")
	ErrMalformed    = errors.New("malformed waifu list")
	ErrEmptyCatalog = errors.New("waifu list is empty")
)

// SourceLoadError wraps a missing or unparseable list file. The wrapped error
// is fs.ErrNotExist for missing files and ErrMalformed for bad content.
type SourceLoadError struct {
	Path string
	Err  error
}

func (e *SourceLoadError) Error() string {
	return fmt.Sprintf("load waifu list %s: %v", e.Path, e.Err)
}

func (e *SourceLoadError) Unwrap() error {
	return e.Err
}

// InsufficientEntriesError is returned when a sample asks for more entries
// than the catalog holds.
type InsufficientEntriesError struct {
	Want int
	Have int
}

func (e *InsufficientEntriesError) Error() string {
	return fmt.Sprintf("need %d waifus but the list only has %d", e.Want, e.Have)
}

type Source struct {
	Path string
	Mode Mode
}

type Options struct {
	Deduplicate bool
	// Franchises, when non-empty, keeps only names filed under these
	// franchise keys (compared case-insensitively). "" selects unfiled names.
	Franchises []string
	// Rand overrides the random source; nil uses math/rand/v2's global source.
	Rand Rand
}

// Rand is the subset of *rand.Rand the catalog draws with.
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// Catalog is an immutable list of display strings.
type Catalog struct {
	entries []string
	rng     Rand
	mu      sync.Mutex
}

// New builds a catalog over a copy of entries.
func New(entries []string, rng Rand) *Catalog {
	if rng == nil {
		rng = globalRand{}
	}
	return &Catalog{
		entries: append([]string(nil), entries...),
		rng:     rng,
	}
}

// Load reads the built-in list and then each source in order.
func Load(sources []Source, opts Options) (*Catalog, error) {
	keep := opts.franchiseFilter()
	entries, err := parseList(DefaultSourceName, defaultList, keep)
	if err != nil {
		return nil, err
	}

	for _, src := range sources {
		switch src.Mode {
		case ModeReplace:
			entries = nil
		case ModeExtend:
		default:
			return nil, fmt.Errorf("%w: %q", ErrInvalidMode, src.Mode)
		}

		data, err := os.ReadFile(src.Path)
		if err != nil {
			return nil, &SourceLoadError{Path: src.Path, Err: err}
		}
		parsed, err := parseList(src.Path, data, keep)
		if err != nil {
			return nil, err
		}
		entries = append(entries, parsed...)
	}

	if opts.Deduplicate {
		if dups := Duplicates(entries); len(dups) > 0 {
			plural := "s"
			if len(dups) == 1 {
				plural = ""
			}
			log.Printf("[Catalog] Found %d duplicate waifu%s: %s", len(dups), plural, strings.Join(dups, ", "))
			entries = dedupe(entries)
		}
	}

	if len(opts.Franchises) > 0 && len(entries) == 0 {
		log.Printf("[Catalog] Warning: no waifus match franchises %s", strings.Join(opts.Franchises, ", "))
	}

	log.Printf("[Catalog] Loaded %d waifus from %d source(s)", len(entries), len(sources)+1)
	return New(entries, opts.Rand), nil
}

// Format renders a name with its franchise, if it has one.
func Format(name, franchise string) string {
	if franchise == "" {
		return name
	}
	return name + " (" + franchise + ")"
}

func (o Options) franchiseFilter() func(string) bool {
	if len(o.Franchises) == 0 {
		return nil
	}
	return func(franchise string) bool {
		for _, f := range o.Franchises {
			if strings.EqualFold(strings.TrimSpace(f), franchise) {
				return true
			}
		}
		return false
	}
}

// parseList formats every name in data, skipping franchises keep rejects.
// A nil keep accepts everything.
func parseList(path string, data []byte, keep func(string) bool) ([]string, error) {
	if !gjson.ValidBytes(data) {
		return nil, &SourceLoadError{Path: path, Err: ErrMalformed}
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, &SourceLoadError{Path: path, Err: fmt.Errorf("%w: top level must be an object", ErrMalformed)}
	}

	var entries []string
	var parseErr error
	root.ForEach(func(key, value gjson.Result) bool {
		franchise := key.String()
		if !value.IsArray() {
			parseErr = fmt.Errorf("%w: franchise %q is not a list", ErrMalformed, franchise)
			return false
		}
		if keep != nil && !keep(franchise) {
			return true
		}
		value.ForEach(func(_, name gjson.Result) bool {
			if name.Type != gjson.String {
				parseErr = fmt.Errorf("%w: franchise %q has a non-string name %s", ErrMalformed, franchise, name.Raw)
				return false
			}
			entries = append(entries, Format(name.String(), franchise))
			return true
		})
		return parseErr == nil
	})
	if parseErr != nil {
		return nil, &SourceLoadError{Path: path, Err: parseErr}
	}

	if keys, _ := DuplicateKeys(data); len(keys) > 0 {
		log.Printf("[Catalog] %s repeats franchise key(s): %s", path, strings.Join(keys, ", "))
	}

	return entries, nil
}

// DuplicateKeys lists top-level keys that appear more than once in a JSON
// object, in order of first appearance.
func DuplicateKeys(data []byte) ([]string, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrMalformed
	}
	var keys []string
	gjson.ParseBytes(data).ForEach(func(key, _ gjson.Result) bool {
		keys = append(keys, key.String())
		return true
	})
	return Duplicates(keys), nil
}

// Duplicates returns the values occurring more than once, in order of first appearance.
func Duplicates(list []string) []string {
	counts := make(map[string]int, len(list))
	for _, v := range list {
		counts[v]++
	}
	var dups []string
	for _, v := range list {
		if counts[v] > 1 {
			dups = append(dups, v)
			counts[v] = 0
		}
	}
	return dups
}

func dedupe(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	out := list[:0:0]
	for _, v := range list {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func (c *Catalog) Len() int {
	return len(c.entries)
}

// Entries returns a copy of the loaded list.
func (c *Catalog) Entries() []string {
	return append([]string(nil), c.entries...)
}

// contains reports whether entry is in the list.
func (c *Catalog) contains(entry string) bool {
	for _, e := range c.entries {
		if e == entry {
			return true
		}
	}
	return false
}

// PickRandom draws one entry uniformly.
func (c *Catalog) PickRandom() (string, error) {
	if len(c.entries) == 0 {
		return "", ErrEmptyCatalog
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[c.rng.IntN(len(c.entries))], nil
}

// PickSample draws n distinct entries without replacement.
func (c *Catalog) PickSample(n int) ([]string, error) {
	if n < 0 || n > len(c.entries) {
		return nil, &InsufficientEntriesError{Want: n, Have: len(c.entries)}
	}

	idx := make([]int, len(c.entries))
	for i := range idx {
		idx[i] = i
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	sample := make([]string, n)
	for i := 0; i < n; i++ {
		j := i + c.rng.IntN(len(idx)-i)
		idx[i], idx[j] = idx[j], idx[i]
		sample[i] = c.entries[idx[i]]
	}
	return sample, nil
}
