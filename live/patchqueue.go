package live

import "sync"

const patchQueueSize = 8

type patchType int

const (
	patchTypeElements patchType = iota
	patchTypeSignals
)

// patch is one pending update of a page's SSE stream. Element patches carry
// rendered html in content; key is the id of the context that rendered it.
// Signal patches carry the changed values in signals.
type patch struct {
	typ     patchType
	key     string
	content string
	signals map[string]any
}

// patchQueue holds the pending patches of one page until its SSE stream
// sends them.
//
// Once patchQueueSize patches are pending, a new patch replaces the pending
// one of the same type and key: a newer render of a context supersedes the
// older one and newer signal values are merged over older ones. The newest
// state is never dropped. The queue stays bounded by the number of contexts
// in the page.
type patchQueue struct {
	mu    sync.Mutex
	items []patch
	ready chan struct{}
}

func newPatchQueue() *patchQueue {
	return &patchQueue{ready: make(chan struct{}, 1)}
}

func (q *patchQueue) push(p patch) {
	q.mu.Lock()
	if len(q.items) >= patchQueueSize {
		for i, old := range q.items {
			if old.typ != p.typ || old.key != p.key {
				continue
			}
			if p.typ == patchTypeSignals {
				merged := make(map[string]any, len(old.signals)+len(p.signals))
				for k, v := range old.signals {
					merged[k] = v
				}
				for k, v := range p.signals {
					merged[k] = v
				}
				p.signals = merged
			}
			q.items = append(q.items[:i], q.items[i+1:]...)
			break
		}
	}
	q.items = append(q.items, p)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// drain removes and returns every pending patch in queue order.
func (q *patchQueue) drain() []patch {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

func (q *patchQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
