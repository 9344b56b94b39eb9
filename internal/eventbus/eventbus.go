// Package eventbus is an in-process typed publish/subscribe hub. Publishing
// reads an immutable snapshot of the subscriptions without locking.
package eventbus

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
)

// Handler processes events of type T.
type Handler[T any] func(context.Context, T)

type subscription struct {
	id uint64
	fn func(context.Context, any)
}

type table map[reflect.Type][]subscription

// Bus dispatches events to the handlers subscribed to their dynamic type.
type Bus struct {
	mu     sync.Mutex // serializes writers
	nextID uint64
	subs   atomic.Pointer[table]
}

// New creates a new Bus.
func New() *Bus {
	b := &Bus{}
	b.subs.Store(&table{})
	return b
}

// update replaces the subscription table with a modified copy.
func (b *Bus) update(f func(t table)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	old := *b.subs.Load()
	next := make(table, len(old))
	for k, v := range old {
		next[k] = v
	}
	f(next)
	b.subs.Store(&next)
}

func (b *Bus) subscribe(t reflect.Type, fn func(context.Context, any)) (unsubscribe func()) {
	var id uint64
	b.update(func(tab table) {
		b.nextID++
		id = b.nextID
		tab[t] = append(append([]subscription(nil), tab[t]...), subscription{id: id, fn: fn})
	})
	var once sync.Once
	return func() {
		once.Do(func() {
			b.update(func(tab table) {
				var kept []subscription
				for _, s := range tab[t] {
					if s.id != id {
						kept = append(kept, s)
					}
				}
				if len(kept) == 0 {
					delete(tab, t)
				} else {
					tab[t] = kept
				}
			})
		})
	}
}

func (b *Bus) emit(ctx context.Context, e any) {
	for _, s := range (*b.subs.Load())[reflect.TypeOf(e)] {
		s.fn(ctx, e)
	}
}

var global atomic.Pointer[Bus]

// Use sets the global bus. Passing nil disables event publishing.
func Use(b *Bus) { global.Store(b) }

// Subscribe registers h with the global bus. The returned function removes
// it again and is safe to call more than once.
func Subscribe[T any](h Handler[T]) (unsubscribe func()) {
	b := global.Load()
	if b == nil {
		return func() {}
	}
	t := reflect.TypeOf((*T)(nil)).Elem()
	return b.subscribe(t, func(ctx context.Context, v any) { h(ctx, v.(T)) })
}

// Publish sends e through the global bus.
func Publish[T any](ctx context.Context, e T) {
	if b := global.Load(); b != nil {
		b.emit(ctx, e)
	}
}
