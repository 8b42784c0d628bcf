package memory

import "otc-exchange/internal/pda"

// table is a copy-on-write view over a committed map. Writes land in dirty and
// deleted until apply folds them into base.
type table[V any] struct {
	base    map[pda.Address]V
	dirty   map[pda.Address]V
	deleted map[pda.Address]bool
}

func newTable[V any](base map[pda.Address]V) *table[V] {
	return &table[V]{base: base, dirty: map[pda.Address]V{}, deleted: map[pda.Address]bool{}}
}

func (t *table[V]) get(k pda.Address) (V, bool) {
	var zero V
	if t.deleted[k] {
		return zero, false
	}
	if v, ok := t.dirty[k]; ok {
		return v, true
	}
	v, ok := t.base[k]
	return v, ok
}

func (t *table[V]) put(k pda.Address, v V) {
	t.dirty[k] = v
	delete(t.deleted, k)
}

func (t *table[V]) del(k pda.Address) {
	delete(t.dirty, k)
	t.deleted[k] = true
}

func (t *table[V]) each(fn func(k pda.Address, v V)) {
	for k, v := range t.base {
		if t.deleted[k] {
			continue
		}
		if _, ok := t.dirty[k]; ok {
			continue
		}
		fn(k, v)
	}
	for k, v := range t.dirty {
		fn(k, v)
	}
}

func (t *table[V]) apply() {
	for k := range t.deleted {
		delete(t.base, k)
	}
	for k, v := range t.dirty {
		t.base[k] = v
	}
}
