package executor

import (
	"fmt"
	"slices"
	"sync"

	"github.com/born-ml/modelio/internal/tensor"
)

// Scope holds the runtime values of variables by name.
//
// A scope outlives the programs run against it: parameters loaded by one
// run are visible to the next. Feed and fetch holders are kept apart from
// ordinary variables; each is a list of tensors indexed by column.
type Scope struct {
	mu      sync.RWMutex
	vars    map[string]*tensor.RawTensor
	holders map[string][]*tensor.RawTensor
}

// NewScope creates an empty scope.
func NewScope() *Scope {
	return &Scope{
		vars:    make(map[string]*tensor.RawTensor),
		holders: make(map[string][]*tensor.RawTensor),
	}
}

// Var returns the value of a variable. The returned tensor is owned by the scope.
func (s *Scope) Var(name string) (*tensor.RawTensor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.vars[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrVarNotFound, name)
	}
	return t, nil
}

// Set stores a value. The scope takes ownership of t.
func (s *Scope) Set(name string, t *tensor.RawTensor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[name] = t
}

// Has reports whether a variable holds a value.
func (s *Scope) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.vars[name]
	return ok
}

// Delete removes a variable.
func (s *Scope) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vars, name)
}

// Names returns the names of all variables, sorted.
func (s *Scope) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.vars))
	for name := range s.vars {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// SetHolder replaces the content of a feed or fetch holder.
func (s *Scope) SetHolder(name string, items []*tensor.RawTensor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holders[name] = slices.Clone(items)
}

// Holder returns a copy of the holder's item list.
func (s *Scope) Holder(name string) ([]*tensor.RawTensor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items, ok := s.holders[name]
	return slices.Clone(items), ok
}

func (s *Scope) holderItem(name string, col int) (*tensor.RawTensor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items, ok := s.holders[name]
	if !ok {
		return nil, fmt.Errorf("%w: holder %q", ErrVarNotFound, name)
	}
	if col < 0 || col >= len(items) || items[col] == nil {
		return nil, fmt.Errorf("%w: holder %q has no column %d", ErrVarNotFound, name, col)
	}
	return items[col], nil
}

func (s *Scope) setHolderItem(name string, col int, t *tensor.RawTensor) error {
	if col < 0 {
		return fmt.Errorf("negative column %d for holder %q", col, name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.holders[name]
	if col >= len(items) {
		items = append(items, make([]*tensor.RawTensor, col+1-len(items))...)
	}
	items[col] = t
	s.holders[name] = items
	return nil
}
