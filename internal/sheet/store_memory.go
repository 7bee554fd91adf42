package sheet

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/markingsheet/internal/apperr"
	"github.com/mind-engage/markingsheet/internal/validate"
)

type memoryStore struct {
	mu              sync.RWMutex
	sheets          map[string]Sheet
	defaultPassword string
	hashCost        int
	onDelete        func(ctx context.Context, sheetID string) error
}

// MemoryOption configures a store returned by NewMemoryStore.
type MemoryOption func(*memoryStore)

// WithHashCost sets the bcrypt cost for sheet passwords.
func WithHashCost(cost int) MemoryOption {
	return func(m *memoryStore) { m.hashCost = cost }
}

// WithOnDelete registers fn to remove data that belongs to a sheet. It runs
// before the sheet itself is removed; an error leaves the sheet in place.
func WithOnDelete(fn func(ctx context.Context, sheetID string) error) MemoryOption {
	return func(m *memoryStore) { m.onDelete = fn }
}

// NewMemoryStore returns a Store kept in process memory, for demos and
// tests.
func NewMemoryStore(defaultPassword string, opts ...MemoryOption) Store {
	m := &memoryStore{
		sheets:          map[string]Sheet{},
		defaultPassword: defaultPassword,
		hashCost:        bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *memoryStore) List(_ context.Context, opts ListOpts) ([]Sheet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := lo.Filter(lo.Values(m.sheets), func(s Sheet, _ int) bool { return opts.IncludeDisabled || s.IsEnabled })
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *memoryStore) Get(_ context.Context, id string) (Sheet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sheets[id]
	if !ok {
		return Sheet{}, apperr.NotFound("marking sheet")
	}
	return s, nil
}

func (m *memoryStore) Create(ctx context.Context, d Draft) (Sheet, error) {
	d = d.Normalize()
	if err := validate.Struct(ctx, d); err != nil {
		return Sheet{}, err
	}
	hash, err := m.hash(lo.Ternary(d.Password == "", m.defaultPassword, d.Password))
	if err != nil {
		return Sheet{}, err
	}

	now := time.Now().UTC().Truncate(time.Second)
	id := uuid.NewString()
	items := d.items(id, nil, uuid.NewString)
	s := Sheet{
		ID:           id,
		Name:         d.Name,
		Description:  d.Description,
		PassingScore: d.passingScore(),
		TotalPoints:  totalPoints(items),
		IsEnabled:    d.enabled(),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
		Items:        items,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sheets[id] = s
	return s, nil
}

func (m *memoryStore) Update(ctx context.Context, id string, d Draft) (Sheet, error) {
	d = d.Normalize()
	if err := validate.Struct(ctx, d); err != nil {
		return Sheet{}, err
	}
	var hash string
	if d.Password != "" {
		h, err := m.hash(d.Password)
		if err != nil {
			return Sheet{}, err
		}
		hash = h
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sheets[id]
	if !ok {
		return Sheet{}, apperr.NotFound("marking sheet")
	}
	existing := lo.SliceToMap(s.Items, func(it Item) (string, bool) { return it.ID, true })
	s.Items = d.items(id, existing, uuid.NewString)
	s.Name = d.Name
	s.Description = d.Description
	s.PassingScore = d.passingScore()
	s.TotalPoints = totalPoints(s.Items)
	s.IsEnabled = d.enabled()
	if hash != "" {
		s.PasswordHash = hash
	}
	s.UpdatedAt = time.Now().UTC().Truncate(time.Second)
	m.sheets[id] = s
	return s, nil
}

func (m *memoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sheets[id]; !ok {
		return apperr.NotFound("marking sheet")
	}
	if m.onDelete != nil {
		if err := m.onDelete(ctx, id); err != nil {
			return err
		}
	}
	delete(m.sheets, id)
	return nil
}

func (m *memoryStore) VerifyPassword(ctx context.Context, id, password string) (bool, error) {
	s, err := m.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if !s.IsEnabled {
		return false, apperr.Forbidden("This marking sheet is disabled")
	}
	return bcrypt.CompareHashAndPassword([]byte(s.PasswordHash), []byte(password)) == nil, nil
}

func (m *memoryStore) hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), m.hashCost)
	if err != nil {
		return "", apperr.Internal(err, "hash password")
	}
	return string(h), nil
}
