// Package catalog holds the last-fetched product list.
package catalog

import (
	"sync"

	"storefront/internal/model"
)

// Store holds the current catalog. The list is replaced wholesale; callers
// only ever see copies.
//
// With the sequence guard on, Apply accepts a list only if its sequence
// number is higher than any applied before, so a slow response to an older
// search cannot overwrite a newer one. With it off, the last list to arrive
// wins.
type Store struct {
	guard bool

	mu       sync.Mutex
	products []model.Product
	// issued is the last sequence handed out by NextSeq; applied is the
	// highest one accepted. version counts accepted changes.
	issued    uint64
	applied   uint64
	version   uint64
	subs      map[int]func([]model.Product)
	nextSubID int

	notifyMu sync.Mutex
	notified uint64 // last version delivered to subscribers
}

// New returns an empty Store. sequenceGuard enables out-of-order response
// rejection in Apply.
func New(sequenceGuard bool) *Store {
	return &Store{
		guard:    sequenceGuard,
		products: []model.Product{},
		subs:     make(map[int]func([]model.Product)),
	}
}

// Products returns a snapshot of the catalog in server order.
func (s *Store) Products() []model.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.CloneProducts(s.products)
}

// Len returns the number of products held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.products)
}

// NextSeq reserves a sequence number for a request about to be issued.
// Numbers are strictly increasing.
func (s *Store) NextSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	return s.issued
}

// Replace installs products unconditionally as the newest catalog. Any
// response to a request issued earlier is rejected afterwards when the guard
// is on.
func (s *Store) Replace(products []model.Product) {
	s.Apply(s.NextSeq(), products)
}

// Apply installs products tagged with seq. It reports whether the list was
// accepted; a rejected list leaves the store untouched.
func (s *Store) Apply(seq uint64, products []model.Product) bool {
	s.mu.Lock()
	if s.guard && seq <= s.applied {
		s.mu.Unlock()
		return false
	}
	if seq > s.applied {
		s.applied = seq
	}
	if products == nil {
		products = []model.Product{}
	}
	s.products = model.CloneProducts(products)
	s.version++
	version := s.version
	snapshot := model.CloneProducts(s.products)
	subs := make([]func([]model.Product), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	s.notify(version, snapshot, subs)
	return true
}

// Subscribe registers fn to receive each accepted catalog. fn is called
// outside the store lock, never concurrently with itself, and never with an
// older catalog than one it already saw. The returned func unsubscribes.
func (s *Store) Subscribe(fn func([]model.Product)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify(version uint64, snapshot []model.Product, subs []func([]model.Product)) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	if version <= s.notified {
		return
	}
	s.notified = version
	for _, fn := range subs {
		fn(model.CloneProducts(snapshot))
	}
}
