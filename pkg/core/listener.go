package core

import "sync"

// Observable is a thread safe list of subscribers for events of type T
type Observable[T any] struct {
	mu     sync.Mutex
	id     int
	events map[int]func(T)
}

// Subscription removes the handler from its Observable
type Subscription struct {
	once   sync.Once
	cancel func()
}

func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

func (o *Observable[T]) Subscribe(f func(T)) *Subscription {
	o.mu.Lock()
	if o.events == nil {
		o.events = map[int]func(T){}
	}
	o.id++
	id := o.id
	o.events[id] = f
	o.mu.Unlock()

	return &Subscription{cancel: func() {
		o.mu.Lock()
		delete(o.events, id)
		o.mu.Unlock()
	}}
}

// Fire calls handlers outside the lock, so a handler may unsubscribe itself
func (o *Observable[T]) Fire(msg T) {
	o.mu.Lock()
	handlers := make([]func(T), 0, len(o.events))
	for i := 1; i <= o.id; i++ {
		if f, ok := o.events[i]; ok {
			handlers = append(handlers, f)
		}
	}
	o.mu.Unlock()

	for _, f := range handlers {
		f(msg)
	}
}

// Len returns the count of active subscribers
func (o *Observable[T]) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.events)
}
