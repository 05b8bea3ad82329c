package gpu

// MaxTableItems bounds the live entries of one native handle table.
const MaxTableItems = 4096 * 512

// handleTable is a native-side lookup table for one object category. Handle
// 0 is never issued so it can stand for "none"; freed values are reused,
// most recently freed first.
type handleTable[V any] struct {
	items map[int64]V
	free  []int64
	next  int64
	limit int
}

func newHandleTable[V any](limit int) *handleTable[V] {
	if limit <= 0 {
		limit = MaxTableItems
	}
	return &handleTable[V]{items: make(map[int64]V), next: 1, limit: limit}
}

func (t *handleTable[V]) add(v V) (int64, Status) {
	if len(t.items) >= t.limit {
		return 0, StatusHandleTableFull
	}
	var h int64
	if n := len(t.free); n > 0 {
		h = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		h = t.next
		t.next++
	}
	t.items[h] = v
	return h, StatusSuccess
}

func (t *handleTable[V]) get(h int64) (V, bool) {
	v, ok := t.items[h]
	return v, ok
}

func (t *handleTable[V]) remove(h int64) (V, bool) {
	v, ok := t.items[h]
	if !ok {
		return v, false
	}
	delete(t.items, h)
	t.free = append(t.free, h)
	return v, true
}

func (t *handleTable[V]) len() int { return len(t.items) }

// each visits live entries in no particular order.
func (t *handleTable[V]) each(fn func(h int64, v V)) {
	for h, v := range t.items {
		fn(h, v)
	}
}
