package registry

import (
	"strings"
	"sync"

	"codeberg.org/mutker/sysoptctl/internal/errors"
)

// MemoryStore is an in-process registry. Names are case-insensitive and
// enumeration follows insertion order, as with the system registry.
type MemoryStore struct {
	mu     sync.Mutex
	roots  map[Root]*memNode
	denied map[string]bool
}

type memNode struct {
	name     string
	children []*memNode
	values   []memValue
}

type memValue struct {
	name string
	data string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		roots:  make(map[Root]*memNode),
		denied: make(map[string]bool),
	}
}

// SetValue creates the key if needed and sets a string value on it.
func (s *MemoryStore) SetValue(root Root, path, name, data string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensure(root, path).set(name, data)
}

// CreatePath creates an empty key and its parents.
func (s *MemoryStore) CreatePath(root Root, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensure(root, path)
}

// Deny makes every open of the key fail with ErrAccessDenied.
func (s *MemoryStore) Deny(root Root, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.denied[strings.ToLower(KeyPath(root, path))] = true
}

// Values returns the value names of a key, or nil if it does not exist.
func (s *MemoryStore) Values(root Root, path string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.find(root, path)
	if n == nil {
		return nil
	}

	return n.valueNames()
}

// Value returns a value's data and whether it exists.
func (s *MemoryStore) Value(root Root, path, name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.find(root, path)
	if n == nil {
		return "", false
	}

	i := n.valueIndex(name)
	if i < 0 {
		return "", false
	}

	return n.values[i].data, true
}

func (s *MemoryStore) OpenKey(root Root, path string, writable bool) (Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.denied[strings.ToLower(KeyPath(root, path))] {
		return nil, errors.New().New(ErrAccessDenied).WithData(KeyPath(root, path))
	}

	n := s.find(root, path)
	if n == nil {
		return nil, errors.New().New(ErrKeyNotFound).WithData(KeyPath(root, path))
	}

	return &memKey{store: s, node: n, writable: writable}, nil
}

func (s *MemoryStore) CreateKey(root Root, path string) (Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.denied[strings.ToLower(KeyPath(root, path))] {
		return nil, errors.New().New(ErrAccessDenied).WithData(KeyPath(root, path))
	}

	return &memKey{store: s, node: s.ensure(root, path), writable: true}, nil
}

func (s *MemoryStore) ensure(root Root, path string) *memNode {
	n, ok := s.roots[root]
	if !ok {
		n = &memNode{name: root.String()}
		s.roots[root] = n
	}

	for _, part := range splitPath(path) {
		child := n.child(part)
		if child == nil {
			child = &memNode{name: part}
			n.children = append(n.children, child)
		}
		n = child
	}

	return n
}

func (s *MemoryStore) find(root Root, path string) *memNode {
	n, ok := s.roots[root]
	if !ok {
		return nil
	}

	for _, part := range splitPath(path) {
		if n = n.child(part); n == nil {
			return nil
		}
	}

	return n
}

func splitPath(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, `\`) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func (n *memNode) child(name string) *memNode {
	for _, c := range n.children {
		if strings.EqualFold(c.name, name) {
			return c
		}
	}
	return nil
}

func (n *memNode) valueIndex(name string) int {
	for i, v := range n.values {
		if strings.EqualFold(v.name, name) {
			return i
		}
	}
	return -1
}

func (n *memNode) valueNames() []string {
	names := make([]string, 0, len(n.values))
	for _, v := range n.values {
		names = append(names, v.name)
	}
	return names
}

func (n *memNode) set(name, data string) {
	if i := n.valueIndex(name); i >= 0 {
		n.values[i].data = data
		return
	}
	n.values = append(n.values, memValue{name: name, data: data})
}

type memKey struct {
	store    *MemoryStore
	node     *memNode
	writable bool
}

func (k *memKey) SubKeyNames() ([]string, error) {
	k.store.mu.Lock()
	defer k.store.mu.Unlock()

	names := make([]string, 0, len(k.node.children))
	for _, c := range k.node.children {
		names = append(names, c.name)
	}

	return names, nil
}

func (k *memKey) ValueNames() ([]string, error) {
	k.store.mu.Lock()
	defer k.store.mu.Unlock()

	return k.node.valueNames(), nil
}

func (k *memKey) StringValue(name string) (string, error) {
	k.store.mu.Lock()
	defer k.store.mu.Unlock()

	i := k.node.valueIndex(name)
	if i < 0 {
		return "", errors.New().New(ErrValueNotFound).WithData(name)
	}

	return k.node.values[i].data, nil
}

func (k *memKey) SetStringValue(name, value string) error {
	if !k.writable {
		return errors.New().New(ErrAccessDenied).WithData(name)
	}

	k.store.mu.Lock()
	defer k.store.mu.Unlock()

	k.node.set(name, value)

	return nil
}

func (k *memKey) DeleteValue(name string) error {
	if !k.writable {
		return errors.New().New(ErrAccessDenied).WithData(name)
	}

	k.store.mu.Lock()
	defer k.store.mu.Unlock()

	i := k.node.valueIndex(name)
	if i < 0 {
		return errors.New().New(ErrValueNotFound).WithData(name)
	}
	k.node.values = append(k.node.values[:i], k.node.values[i+1:]...)

	return nil
}

func (*memKey) Close() error {
	return nil
}
