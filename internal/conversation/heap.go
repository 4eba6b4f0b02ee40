package conversation

import "time"

// heapItem tracks one conversation id's last-seen time for the TTL
// sweep min-heap (spec §9: "Eviction by TTL sweep uses a heap keyed on
// last_seen").
type heapItem struct {
	id       string
	lastSeen time.Time
	index    int
}

// ttlHeap is a container/heap.Interface ordered by ascending lastSeen,
// with an index so individual items can be updated in O(log n) rather
// than requiring a linear scan.
type ttlHeap struct {
	items  []*heapItem
	lookup map[string]*heapItem
}

func newTTLHeap() *ttlHeap {
	return &ttlHeap{lookup: make(map[string]*heapItem)}
}

func (h *ttlHeap) Len() int { return len(h.items) }

func (h *ttlHeap) Less(i, j int) bool { return h.items[i].lastSeen.Before(h.items[j].lastSeen) }

func (h *ttlHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

func (h *ttlHeap) Push(x any) {
	item := x.(*heapItem)
	item.index = len(h.items)
	h.items = append(h.items, item)
	h.lookup[item.id] = item
}

func (h *ttlHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	h.items = old[:n-1]
	delete(h.lookup, item.id)
	return item
}

// peek returns the item with the oldest lastSeen without removing it.
func (h *ttlHeap) peek() (*heapItem, bool) {
	if len(h.items) == 0 {
		return nil, false
	}
	return h.items[0], true
}

// contains reports whether id currently has a heap entry.
func (h *ttlHeap) contains(id string) bool {
	_, ok := h.lookup[id]
	return ok
}
