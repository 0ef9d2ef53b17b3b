package memory

import (
	"bufio"
	"context"
	"os"
	"strings"
	"sync"
)

// Catalog holds the autocomplete category suggestions.
type Catalog struct {
	mu   sync.RWMutex
	cats []string
}

func NewCatalog(cats []string) *Catalog {
	return &Catalog{cats: dedupe(cats)}
}

// NewCatalogFromFile seeds the catalog from a file with one category per
// line. Blank lines and # comments are skipped. Falls back to defaults when
// the file is missing or empty.
func NewCatalogFromFile(path string, defaults []string) *Catalog {
	cats := readLines(path)
	if len(cats) == 0 {
		cats = defaults
	}
	return NewCatalog(cats)
}

func (c *Catalog) Suggestions(_ context.Context) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.cats...)
}

// Set swaps the suggestion list.
func (c *Catalog) Set(cats []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cats = dedupe(cats)
}

func readLines(path string) []string {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

// dedupe keeps the first occurrence of every non-blank entry, in input order.
func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
