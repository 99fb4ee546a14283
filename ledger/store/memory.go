// Package store provides an in-memory ledger.TxStore.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/ynaut/reward-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	accounts    map[ledger.UserID]ledger.Account
	likes       map[likeKey]ledger.Like
	journal     map[ledger.UserID][]ledger.Transaction
	idempotency map[string]bool
}

type likeKey struct {
	User   ledger.UserID
	Target ledger.TargetID
}

func NewMemory() *Memory {
	return &Memory{
		accounts:    make(map[ledger.UserID]ledger.Account),
		likes:       make(map[likeKey]ledger.Like),
		journal:     make(map[ledger.UserID][]ledger.Transaction),
		idempotency: make(map[string]bool),
	}
}

var _ ledger.TxStore = (*Memory)(nil)

func (m *Memory) CreateAccount(_ context.Context, a ledger.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[a.UserID]; ok {
		return ledger.ErrAccountExists
	}
	m.accounts[a.UserID] = cloneAccount(a)
	return nil
}

func (m *Memory) GetAccount(_ context.Context, id ledger.UserID) (ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	if !ok {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	return cloneAccount(a), nil
}

func (m *Memory) SaveAccount(_ context.Context, a ledger.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[a.UserID]; !ok {
		return ledger.ErrAccountNotFound
	}
	m.accounts[a.UserID] = cloneAccount(a)
	return nil
}

func (m *Memory) HasLike(_ context.Context, user ledger.UserID, target ledger.TargetID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.likes[likeKey{user, target}]
	return ok, nil
}

func (m *Memory) AddLike(_ context.Context, like ledger.Like) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.likes[likeKey{like.UserID, like.TargetID}] = like
	return nil
}

func (m *Memory) RemoveLike(_ context.Context, user ledger.UserID, target ledger.TargetID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.likes, likeKey{user, target})
	return nil
}

func (m *Memory) CountLikes(_ context.Context, target ledger.TargetID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for k := range m.likes {
		if k.Target == target {
			n++
		}
	}
	return n, nil
}

// Append adds a single journal entry. Append-only.
func (m *Memory) Append(_ context.Context, tx ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(tx)
}

func (m *Memory) appendLocked(tx ledger.Transaction) error {
	if tx.IdempotencyKey != "" {
		if m.idempotency[tx.IdempotencyKey] {
			return ledger.ErrDuplicateRequest
		}
		m.idempotency[tx.IdempotencyKey] = true
	}
	m.journal[tx.UserID] = append(m.journal[tx.UserID], tx)
	return nil
}

func (m *Memory) Transactions(_ context.Context, user ledger.UserID) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Transaction, len(m.journal[user]))
	copy(out, m.journal[user])
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

// =============================================================================
// TRANSACTIONS - Buffered view, applied on success
// =============================================================================

// WithTx runs fn against a view that buffers every write. The buffer is
// applied under the store lock only when fn succeeds, so a failed callback
// leaves no trace and readers never see a half-applied commit.
func (m *Memory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	view := &txView{
		base:     m,
		accounts: make(map[ledger.UserID]*ledger.Account),
		likes:    make(map[likeKey]*ledger.Like),
	}
	if err := fn(view); err != nil {
		return err
	}
	return m.apply(view)
}

func (m *Memory) apply(v *txView) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, tx := range v.journal {
		if tx.IdempotencyKey != "" && m.idempotency[tx.IdempotencyKey] {
			return ledger.ErrDuplicateRequest
		}
	}
	for id, a := range v.accounts {
		m.accounts[id] = cloneAccount(*a)
	}
	for k, l := range v.likes {
		if l == nil {
			delete(m.likes, k)
			continue
		}
		m.likes[k] = *l
	}
	for _, tx := range v.journal {
		if err := m.appendLocked(tx); err != nil {
			return err
		}
	}
	return nil
}

// txView reads through its buffer to the base store.
type txView struct {
	base     *Memory
	accounts map[ledger.UserID]*ledger.Account
	likes    map[likeKey]*ledger.Like // nil value = removed
	journal  []ledger.Transaction
	keys     map[string]bool
}

func (v *txView) CreateAccount(ctx context.Context, a ledger.Account) error {
	if _, err := v.GetAccount(ctx, a.UserID); err == nil {
		return ledger.ErrAccountExists
	}
	c := cloneAccount(a)
	v.accounts[a.UserID] = &c
	return nil
}

func (v *txView) GetAccount(ctx context.Context, id ledger.UserID) (ledger.Account, error) {
	if a, ok := v.accounts[id]; ok {
		return cloneAccount(*a), nil
	}
	return v.base.GetAccount(ctx, id)
}

func (v *txView) SaveAccount(ctx context.Context, a ledger.Account) error {
	if _, err := v.GetAccount(ctx, a.UserID); err != nil {
		return err
	}
	c := cloneAccount(a)
	v.accounts[a.UserID] = &c
	return nil
}

func (v *txView) HasLike(ctx context.Context, user ledger.UserID, target ledger.TargetID) (bool, error) {
	if l, ok := v.likes[likeKey{user, target}]; ok {
		return l != nil, nil
	}
	return v.base.HasLike(ctx, user, target)
}

func (v *txView) AddLike(_ context.Context, like ledger.Like) error {
	l := like
	v.likes[likeKey{like.UserID, like.TargetID}] = &l
	return nil
}

func (v *txView) RemoveLike(_ context.Context, user ledger.UserID, target ledger.TargetID) error {
	v.likes[likeKey{user, target}] = nil
	return nil
}

func (v *txView) CountLikes(ctx context.Context, target ledger.TargetID) (int, error) {
	n, err := v.base.CountLikes(ctx, target)
	if err != nil {
		return 0, err
	}
	for k, l := range v.likes {
		if k.Target != target {
			continue
		}
		had, _ := v.base.HasLike(ctx, k.User, k.Target)
		switch {
		case l != nil && !had:
			n++
		case l == nil && had:
			n--
		}
	}
	return n, nil
}

func (v *txView) Append(ctx context.Context, tx ledger.Transaction) error {
	if tx.IdempotencyKey != "" {
		if used, _ := v.Exists(ctx, tx.IdempotencyKey); used {
			return ledger.ErrDuplicateRequest
		}
		if v.keys == nil {
			v.keys = make(map[string]bool)
		}
		v.keys[tx.IdempotencyKey] = true
	}
	v.journal = append(v.journal, tx)
	return nil
}

func (v *txView) Transactions(ctx context.Context, user ledger.UserID) ([]ledger.Transaction, error) {
	out, err := v.base.Transactions(ctx, user)
	if err != nil {
		return nil, err
	}
	for _, tx := range v.journal {
		if tx.UserID == user {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (v *txView) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	if v.keys[idempotencyKey] {
		return true, nil
	}
	return v.base.Exists(ctx, idempotencyKey)
}

func cloneAccount(a ledger.Account) ledger.Account {
	if a.BoostActiveUntil != nil {
		t := *a.BoostActiveUntil
		a.BoostActiveUntil = &t
	}
	return a
}
