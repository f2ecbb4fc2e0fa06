// Package memstore provides an in-memory store.Store.
//
// Pages are kept decoded in maps guarded by a RWMutex, so concurrent readers
// on one handle never observe a half-written page. It backs tests and scratch
// grid files that need not outlive the process.
package memstore

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/arloliu/atmogrid/errs"
	"github.com/arloliu/atmogrid/store"
)

type dataset struct {
	info  store.DatasetInfo
	pages map[string][]byte
}

// LoadPage implements store.PageIO. Callers hold the store lock.
func (d *dataset) LoadPage(key string) ([]byte, bool, error) {
	page, ok := d.pages[key]
	if !ok {
		return nil, false, nil
	}

	return slices.Clone(page), true, nil
}

// StorePage implements store.PageIO. Callers hold the store lock.
func (d *dataset) StorePage(key string, page []byte) error {
	d.pages[key] = slices.Clone(page)
	return nil
}

// Store is an in-memory store.Store.
type Store struct {
	mu       sync.RWMutex
	datasets map[string]*dataset
	attrs    map[string]map[string]string
	closed   bool
}

var _ store.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		datasets: make(map[string]*dataset),
		attrs:    map[string]map[string]string{store.RootObject: {}},
	}
}

// CreateDataset implements store.Store.
func (s *Store) CreateDataset(info store.DatasetInfo) error {
	info = info.Clone()
	if err := info.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errs.ErrClosed
	}
	if _, ok := s.datasets[info.Name]; ok {
		return fmt.Errorf("%w: %q", errs.ErrDatasetExists, info.Name)
	}

	s.datasets[info.Name] = &dataset{info: info, pages: make(map[string][]byte)}
	s.attrs[info.Name] = make(map[string]string)

	return nil
}

// Dataset implements store.Store.
func (s *Store) Dataset(name string) (store.DatasetInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ds, err := s.lookup(name)
	if err != nil {
		return store.DatasetInfo{}, err
	}

	return ds.info.Clone(), nil
}

// Datasets implements store.Store.
func (s *Store) Datasets() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errs.ErrClosed
	}

	return slices.Sorted(maps.Keys(s.datasets)), nil
}

// ReadSubarray implements store.Store.
func (s *Store) ReadSubarray(name string, start, count []int) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ds, err := s.lookup(name)
	if err != nil {
		return nil, err
	}

	return store.ReadRegion(ds, ds.info, start, count)
}

// WriteSubarray implements store.Store.
func (s *Store) WriteSubarray(name string, start, count []int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ds, err := s.lookup(name)
	if err != nil {
		return err
	}

	return store.WriteRegion(ds, ds.info, start, count, data)
}

// Attr implements store.Store.
func (s *Store) Attr(object, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	attrs, err := s.object(object)
	if err != nil {
		return "", false, err
	}
	v, ok := attrs[key]

	return v, ok, nil
}

// SetAttr implements store.Store.
func (s *Store) SetAttr(object, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	attrs, err := s.object(object)
	if err != nil {
		return err
	}
	attrs[key] = value

	return nil
}

// DeleteAttr implements store.Store.
func (s *Store) DeleteAttr(object, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	attrs, err := s.object(object)
	if err != nil {
		return err
	}
	delete(attrs, key)

	return nil
}

// Attrs implements store.Store.
func (s *Store) Attrs(object string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	attrs, err := s.object(object)
	if err != nil {
		return nil, err
	}

	return maps.Clone(attrs), nil
}

// ReadOnly implements store.Store. An in-memory store is always writable.
func (s *Store) ReadOnly() bool {
	return false
}

// Close implements store.Store. Closing twice is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.datasets = nil
	s.attrs = nil

	return nil
}

func (s *Store) lookup(name string) (*dataset, error) {
	if s.closed {
		return nil, errs.ErrClosed
	}
	ds, ok := s.datasets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errs.ErrDatasetNotFound, name)
	}

	return ds, nil
}

func (s *Store) object(name string) (map[string]string, error) {
	if s.closed {
		return nil, errs.ErrClosed
	}
	attrs, ok := s.attrs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errs.ErrDatasetNotFound, name)
	}

	return attrs, nil
}
