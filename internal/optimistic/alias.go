package optimistic

import "sync"

// AliasTable assigns client-local integer aliases to string ids, for render
// engines that only accept numeric feature ids. Aliases start at 1, are
// never reused and survive collection resets for the life of the process.
type AliasTable struct {
	mu      sync.Mutex
	next    int64
	byID    map[string]int64
	byAlias map[int64]string
}

// NewAliasTable returns an empty table.
func NewAliasTable() *AliasTable {
	return &AliasTable{
		next:    1,
		byID:    make(map[string]int64),
		byAlias: make(map[int64]string),
	}
}

// Alias returns the alias of id, allocating the next one on first use.
func (t *AliasTable) Alias(id string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if a, ok := t.byID[id]; ok {
		return a
	}
	a := t.next
	t.next++
	t.byID[id] = a
	t.byAlias[a] = id
	return a
}

// Lookup returns the alias of id without allocating.
func (t *AliasTable) Lookup(id string) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.byID[id]
	return a, ok
}

// ID returns the string id behind an alias.
func (t *AliasTable) ID(alias int64) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.byAlias[alias]
	return id, ok
}

// Len returns the number of allocated aliases.
func (t *AliasTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}
