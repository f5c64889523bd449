package region

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	key      string
	value    []byte
	expireAt time.Time
}

// store is an in-memory LRU keyed by entry key, bounded by value bytes, with optional TTL.
type store struct {
	mu   sync.Mutex
	data map[string]*list.Element
	ll   *list.List
	used int
	cap  int
}

func newStore(capacityBytes int) *store {
	return &store{
		data: make(map[string]*list.Element),
		ll:   list.New(),
		cap:  capacityBytes,
	}
}

// put stores a copy of val and returns the previous live value, if any.
func (s *store) put(key string, val []byte, ttl time.Duration) (old []byte, existed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	if el, ok := s.data[key]; ok {
		e := el.Value.(*entry)
		if !e.expired() {
			old, existed = e.value, true
		}
		s.used += len(val) - len(e.value)
		e.value = append([]byte(nil), val...)
		e.expireAt = exp
		s.ll.MoveToFront(el)
	} else {
		e := &entry{key: key, value: append([]byte(nil), val...), expireAt: exp}
		s.data[key] = s.ll.PushFront(e)
		s.used += len(e.value)
	}
	s.evict()
	return old, existed
}

func (s *store) get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.data[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	if e.expired() {
		s.remove(el)
		return nil, false
	}
	s.ll.MoveToFront(el)
	return append([]byte(nil), e.value...), true
}

func (s *store) peek(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.data[key]
	if !ok || el.Value.(*entry).expired() {
		return nil, false
	}
	return append([]byte(nil), el.Value.(*entry).value...), true
}

func (s *store) delete(key string) (old []byte, existed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.data[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	s.remove(el)
	if e.expired() {
		return nil, false
	}
	return e.value, true
}

func (s *store) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

func (s *store) evict() {
	for s.used > s.cap && s.ll.Back() != nil {
		s.remove(s.ll.Back())
	}
}

func (s *store) remove(el *list.Element) {
	e := el.Value.(*entry)
	delete(s.data, e.key)
	s.used -= len(e.value)
	s.ll.Remove(el)
}

func (e *entry) expired() bool {
	return !e.expireAt.IsZero() && time.Now().After(e.expireAt)
}
