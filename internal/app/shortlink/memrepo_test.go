package shortlink

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memRepo 是测试用的内存 Repository，语义与 SQL 适配器保持一致。
type memRepo struct {
	mu     sync.Mutex
	nextID int64
	links  map[int64]Link
	calls  int

	// forceConflictOnSave 模拟两个实例并发生成到同一个短码，插入时撞上唯一约束
	forceConflictOnSave bool
}

func newMemRepo() *memRepo {
	return &memRepo{links: make(map[int64]Link)}
}

func (m *memRepo) touch() {
	m.calls++
}

func (m *memRepo) Save(ctx context.Context, link *Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()
	if m.forceConflictOnSave {
		return ErrShortCodeConflict
	}
	for id, l := range m.links {
		if l.ShortCode == link.ShortCode && id != link.ID {
			return ErrShortCodeConflict
		}
	}
	if link.ID == 0 {
		m.nextID++
		link.ID = m.nextID
		m.links[link.ID] = *link
		return nil
	}
	cur, ok := m.links[link.ID]
	if !ok || cur.OwnerID != link.OwnerID {
		return ErrNotFound
	}
	cur.OriginalURL = link.OriginalURL
	cur.ShortCode = link.ShortCode
	m.links[link.ID] = cur
	*link = cur
	return nil
}

func (m *memRepo) DeleteEntity(ctx context.Context, link Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()
	cur, ok := m.links[link.ID]
	if !ok || cur.OwnerID != link.OwnerID {
		return ErrNotFound
	}
	delete(m.links, link.ID)
	return nil
}

func (m *memRepo) FindByShortCode(ctx context.Context, code string) (Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()
	for _, l := range m.links {
		if l.ShortCode == code {
			return l, nil
		}
	}
	return Link{}, ErrNotFound
}

func (m *memRepo) FindByIDAndOwner(ctx context.Context, id, ownerID int64) (Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()
	l, ok := m.links[id]
	if !ok || l.OwnerID != ownerID {
		return Link{}, ErrNotFound
	}
	return l, nil
}

func (m *memRepo) ExistsByShortCode(ctx context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()
	for _, l := range m.links {
		if l.ShortCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) IncrementClicks(ctx context.Context, id int64) (Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()
	l, ok := m.links[id]
	if !ok {
		return Link{}, ErrNotFound
	}
	l.ClickCount++
	m.links[id] = l
	return l, nil
}

func (m *memRepo) page(ownerID int64, keep func(Link) bool, req PageRequest) Page[Link] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()
	var all []Link
	for _, l := range m.links {
		if l.OwnerID == ownerID && keep(l) {
			all = append(all, l)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := int64(len(all))
	start := req.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + req.Size
	if end > len(all) {
		end = len(all)
	}
	return NewPage(all[start:end], req, total)
}

func (m *memRepo) FindAllByOwner(ctx context.Context, ownerID int64, req PageRequest) (Page[Link], error) {
	return m.page(ownerID, func(Link) bool { return true }, req), nil
}

func (m *memRepo) FindActiveByOwner(ctx context.Context, ownerID int64, now time.Time, req PageRequest) (Page[Link], error) {
	return m.page(ownerID, func(l Link) bool { return !l.ExpiredAt(now) }, req), nil
}

func (m *memRepo) FindExpiredByOwner(ctx context.Context, ownerID int64, now time.Time, req PageRequest) (Page[Link], error) {
	return m.page(ownerID, func(l Link) bool { return l.ExpiredAt(now) }, req), nil
}

func (m *memRepo) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
