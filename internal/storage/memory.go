package storage

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sol1corejz/invertgold/internal/models"
)

// Memory keeps everything in process. It backs local runs without a database
// and the handler tests.
type Memory struct {
	mu          sync.Mutex
	users       []models.User
	balances    map[int64]*models.UserBalance
	withdrawals []models.Withdrawal
	schedules   []models.WithdrawalSchedule
	nextID      int64
}

func NewMemory() *Memory {
	return &Memory{balances: make(map[int64]*models.UserBalance)}
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *Memory) findUser(pred func(models.User) bool) (models.User, bool) {
	for _, u := range m.users {
		if pred(u) {
			return u, true
		}
	}
	return models.User{}, false
}

func (m *Memory) GetUserByLogin(_ context.Context, login string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.findUser(func(u models.User) bool {
		return u.Username == login || strings.EqualFold(u.Email, login)
	})
	if !ok {
		return models.User{}, ErrNotFound
	}
	return u, nil
}

func (m *Memory) GetUserByID(_ context.Context, id int64) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.findUser(func(u models.User) bool { return u.ID == id })
	if !ok {
		return models.User{}, ErrNotFound
	}
	return u, nil
}

func (m *Memory) CreateUser(_ context.Context, user models.User) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.findUser(func(u models.User) bool {
		return u.Username == user.Username || strings.EqualFold(u.Email, user.Email)
	}); ok {
		return models.User{}, ErrUserExists
	}
	if user.SponsorID != nil {
		if _, ok := m.findUser(func(u models.User) bool { return u.ID == *user.SponsorID }); !ok {
			return models.User{}, ErrNotFound
		}
	}

	if user.Role == "" {
		user.Role = models.RoleMember
	}
	user.ID = m.id()
	user.CreatedAt = time.Now()
	m.users = append(m.users, user)
	m.balances[user.ID] = &models.UserBalance{
		ID:             m.id(),
		UserID:         user.ID,
		CurrentBalance: decimal.Zero,
		WithdrawnTotal: decimal.Zero,
	}
	return user, nil
}

func (m *Memory) UpdateSponsor(_ context.Context, userID, sponsorID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := -1
	for i, u := range m.users {
		if u.ID == userID {
			idx = i
		}
	}
	if _, ok := m.findUser(func(u models.User) bool { return u.ID == sponsorID }); !ok || idx < 0 {
		return ErrNotFound
	}
	for _, u := range m.downline(userID) {
		if u.ID == sponsorID {
			return ErrSponsorCycle
		}
	}

	m.users[idx].SponsorID = &sponsorID
	return nil
}

// downline walks breadth-first from root; the seen set keeps it finite.
func (m *Memory) downline(root int64) []models.User {
	var out []models.User
	seen := map[int64]bool{}
	queue := []int64{root}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		for _, u := range m.users {
			if u.ID == id {
				out = append(out, u)
			}
			if u.SponsorID != nil && *u.SponsorID == id && !seen[u.ID] {
				queue = append(queue, u.ID)
			}
		}
	}
	return out
}

func (m *Memory) GetDownlinePayload(_ context.Context, userID int64) ([]byte, error) {
	m.mu.Lock()
	users := m.downline(userID)
	m.mu.Unlock()

	sort.SliceStable(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})

	records := make([]legacyRecord, 0, len(users))
	for _, u := range users {
		records = append(records, legacyRecord{
			ID:        u.ID,
			SponsorID: u.SponsorID,
			Name:      u.Name,
			LastName:  u.LastName,
			Username:  u.Username,
			Email:     u.Email,
		})
	}
	return json.Marshal(records)
}

func (m *Memory) GetUserBalance(_ context.Context, userID int64) (models.UserBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.balances[userID]
	if !ok {
		return models.UserBalance{}, ErrNotFound
	}
	return *b, nil
}

func (m *Memory) CreditBalance(_ context.Context, userID int64, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.balances[userID]
	if !ok {
		return ErrNotFound
	}
	b.CurrentBalance = b.CurrentBalance.Add(amount)
	return nil
}

func (m *Memory) CreateWithdrawal(_ context.Context, w models.Withdrawal) (models.Withdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.balances[w.UserID]
	if !ok || b.CurrentBalance.LessThan(w.Amount) {
		return models.Withdrawal{}, ErrInsufficientFunds
	}
	b.CurrentBalance = b.CurrentBalance.Sub(w.Amount)
	b.WithdrawnTotal = b.WithdrawnTotal.Add(w.Amount)

	if w.Reference == uuid.Nil {
		w.Reference = uuid.New()
	}
	w.ID = m.id()
	w.ProcessedAt = time.Now()
	m.withdrawals = append(m.withdrawals, w)
	return w, nil
}

func (m *Memory) GetUserWithdrawals(_ context.Context, userID int64) ([]models.Withdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Withdrawal
	for _, w := range m.withdrawals {
		if w.UserID == userID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *Memory) GetSchedules(_ context.Context) ([]models.WithdrawalSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.WithdrawalSchedule, len(m.schedules))
	copy(out, m.schedules)
	return out, nil
}

func (m *Memory) CreateSchedule(_ context.Context, s models.WithdrawalSchedule) (models.WithdrawalSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s.ID = m.id()
	s.Message = strings.TrimSpace(s.Message)
	s.CreatedAt = time.Now()
	m.schedules = append(m.schedules, s)
	return s, nil
}

func (m *Memory) DeleteSchedules(_ context.Context, ids []int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	var deleted int64
	kept := m.schedules[:0]
	for _, s := range m.schedules {
		if drop[s.ID] {
			deleted++
			continue
		}
		kept = append(kept, s)
	}
	m.schedules = kept

	for i := range m.withdrawals {
		if id := m.withdrawals[i].ScheduleID; id != nil && drop[*id] {
			m.withdrawals[i].ScheduleID = nil
		}
	}
	return deleted, nil
}
