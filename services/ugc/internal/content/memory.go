package content

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a development-only in-memory implementation. Sessions
// stage their changes and apply them atomically on Save.
type MemoryStore struct {
	mu    sync.RWMutex
	nodes map[string]*Node    // id -> committed node
	paths map[string]string   // path -> id
	kids  map[string][]string // parent id -> child ids in creation order
}

func NewMemoryStore() *MemoryStore {
	root := newNode(uuid.NewString(), "", RootPath, "", "rep:root", time.Now().UTC())
	return &MemoryStore{
		nodes: map[string]*Node{root.ID: root},
		paths: map[string]string{RootPath: root.ID},
		kids:  make(map[string][]string),
	}
}

func (m *MemoryStore) Do(ctx context.Context, fn func(Session) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := &memSession{store: m}
	s.reset()
	defer func() { s.closed = true }()
	return fn(s)
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

type opKind int

const (
	opCreate opKind = iota
	opSet
	opRemove
)

type memOp struct {
	kind  opKind
	node  *Node
	key   string
	value any
}

type memSession struct {
	store  *MemoryStore
	closed bool

	view    map[string]*Node  // nodes materialized in this session
	created map[string]string // path -> id of nodes created in this session
	removed map[string]bool
	ops     []memOp
}

func (s *memSession) reset() {
	s.view = make(map[string]*Node)
	s.created = make(map[string]string)
	s.removed = make(map[string]bool)
	s.ops = nil
}

func (s *memSession) check(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}
	return ctx.Err()
}

// load returns the session view of a committed or created node.
func (s *memSession) load(id string) (*Node, bool) {
	if s.removed[id] {
		return nil, false
	}
	if n, ok := s.view[id]; ok {
		return n, true
	}
	s.store.mu.RLock()
	n, ok := s.store.nodes[id]
	s.store.mu.RUnlock()
	if !ok {
		return nil, false
	}
	c := n.clone()
	s.view[id] = c
	return c, true
}

func (s *memSession) lookup(path string) (string, bool) {
	if id, ok := s.created[path]; ok {
		return id, !s.removed[id]
	}
	s.store.mu.RLock()
	id, ok := s.store.paths[path]
	s.store.mu.RUnlock()
	if !ok || s.removed[id] {
		return "", false
	}
	return id, true
}

func (s *memSession) GetByID(ctx context.Context, id string) (*Node, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	n, ok := s.load(id)
	if !ok {
		return nil, ErrNotFound
	}
	return n, nil
}

func (s *memSession) GetNode(ctx context.Context, path string) (*Node, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	id, ok := s.lookup(path)
	if !ok {
		return nil, ErrNotFound
	}
	n, ok := s.load(id)
	if !ok {
		return nil, ErrNotFound
	}
	return n, nil
}

func (s *memSession) Exists(ctx context.Context, path string) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	_, ok := s.lookup(path)
	return ok, nil
}

func (s *memSession) CreateChild(ctx context.Context, parent *Node, name, typ string) (*Node, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	if _, ok := s.load(parent.ID); !ok {
		return nil, fmt.Errorf("create %q: parent: %w", name, ErrNotFound)
	}
	path := childPath(parent.Path, name)
	if _, ok := s.lookup(path); ok {
		return nil, fmt.Errorf("create %s: %w", path, ErrExists)
	}
	n := newNode(uuid.NewString(), parent.ID, path, name, typ, time.Now().UTC())
	s.view[n.ID] = n
	s.created[path] = n.ID
	s.ops = append(s.ops, memOp{kind: opCreate, node: n})
	return n, nil
}

func (s *memSession) SetProperty(ctx context.Context, n *Node, key string, value any) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	v := normalizeValue(value)
	n.props[key] = v
	if cur, ok := s.view[n.ID]; ok && cur != n {
		cur.props[key] = v
	}
	if _, fresh := s.created[n.Path]; !fresh {
		s.ops = append(s.ops, memOp{kind: opSet, node: n, key: key, value: v})
	}
	return nil
}

func (s *memSession) ListChildren(ctx context.Context, parent *Node) ([]*Node, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.store.mu.RLock()
	ids := append([]string(nil), s.store.kids[parent.ID]...)
	s.store.mu.RUnlock()

	out := make([]*Node, 0, len(ids))
	for _, id := range ids {
		if n, ok := s.load(id); ok {
			out = append(out, n)
		}
	}
	for _, op := range s.ops {
		if op.kind == opCreate && op.node.ParentID == parent.ID && !s.removed[op.node.ID] {
			out = append(out, op.node)
		}
	}
	return out, nil
}

func (s *memSession) FindByType(ctx context.Context, typ string) ([]*Node, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	var ids []string
	s.store.mu.RLock()
	for id, n := range s.store.nodes {
		if n.Type == typ {
			ids = append(ids, id)
		}
	}
	s.store.mu.RUnlock()

	out := make([]*Node, 0, len(ids))
	for _, id := range ids {
		if n, ok := s.load(id); ok {
			out = append(out, n)
		}
	}
	for _, op := range s.ops {
		if op.kind == opCreate && op.node.Type == typ && !s.removed[op.node.ID] {
			out = append(out, op.node)
		}
	}
	return out, nil
}

func (s *memSession) Remove(ctx context.Context, n *Node) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if _, ok := s.load(n.ID); !ok {
		return ErrNotFound
	}
	s.removed[n.ID] = true
	s.ops = append(s.ops, memOp{kind: opRemove, node: n})
	return nil
}

func (s *memSession) ResolveSite(ctx context.Context, n *Node) (Site, error) {
	if err := s.check(ctx); err != nil {
		return Site{}, err
	}
	return resolveSite(ctx, s, n)
}

// Save validates every staged change against the committed tree and then
// applies them in order under the store lock.
func (s *memSession) Save(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	m := s.store
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, op := range s.ops {
		if op.kind != opCreate {
			continue
		}
		if _, taken := m.paths[op.node.Path]; taken {
			return fmt.Errorf("save %s: %w", op.node.Path, ErrExists)
		}
	}

	for _, op := range s.ops {
		switch op.kind {
		case opCreate:
			if s.removed[op.node.ID] {
				continue
			}
			if _, ok := m.nodes[op.node.ParentID]; !ok {
				continue
			}
			c := op.node.clone()
			m.nodes[c.ID] = c
			m.paths[c.Path] = c.ID
			m.kids[c.ParentID] = append(m.kids[c.ParentID], c.ID)
		case opSet:
			if n, ok := m.nodes[op.node.ID]; ok {
				n.props[op.key] = op.value
			}
		case opRemove:
			m.removeLocked(op.node.ID)
		}
	}
	s.reset()
	return nil
}

// removeLocked drops id and its subtree. Caller holds m.mu.
func (m *MemoryStore) removeLocked(id string) {
	n, ok := m.nodes[id]
	if !ok {
		return
	}
	for _, child := range m.kids[id] {
		m.removeLocked(child)
	}
	delete(m.kids, id)
	delete(m.nodes, id)
	delete(m.paths, n.Path)

	siblings := m.kids[n.ParentID]
	for i, sid := range siblings {
		if sid == id {
			m.kids[n.ParentID] = append(siblings[:i:i], siblings[i+1:]...)
			break
		}
	}
}
