package bcp

import "sync"

// observers is an ordered list of callbacks. Callbacks are invoked outside
// the lock, so they may subscribe or unsubscribe while being notified.
type observers[T any] struct {
	mu    sync.Mutex
	next  uint64
	order []uint64
	fns   map[uint64]func(T)
}

// add registers fn and reports whether it is the only callback now.
func (o *observers[T]) add(fn func(T)) (id uint64, first bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.fns == nil {
		o.fns = make(map[uint64]func(T))
	}
	o.next++
	id = o.next
	o.fns[id] = fn
	o.order = append(o.order, id)
	return id, len(o.order) == 1
}

// remove drops the callback and reports whether none are left.
func (o *observers[T]) remove(id uint64) (removed, last bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.fns[id]; !ok {
		return false, false
	}
	delete(o.fns, id)
	for i, v := range o.order {
		if v == id {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
	return true, len(o.order) == 0
}

// subscribe registers fn and returns an idempotent cancel func.
func (o *observers[T]) subscribe(fn func(T)) func() {
	id, _ := o.add(fn)
	var once sync.Once
	return func() {
		once.Do(func() { o.remove(id) })
	}
}

func (o *observers[T]) notify(v T) {
	o.mu.Lock()
	fns := make([]func(T), 0, len(o.order))
	for _, id := range o.order {
		fns = append(fns, o.fns[id])
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

func (o *observers[T]) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.order)
}
