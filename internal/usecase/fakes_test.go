package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"deposit-service/internal/domain"

	"github.com/shopspring/decimal"
)

// memStore mirrors the conditional-update semantics of the postgres repository
type memStore struct {
	mu       sync.Mutex
	orders   map[string]*domain.DepositOrder
	balances map[string]decimal.Decimal
	credits  int

	// forceExists makes PendingAmountExists report a collision for the first n calls
	forceExists int
	// raceOnCreate makes the first n Create calls fail as if another instance won
	raceOnCreate int
}

func newMemStore() *memStore {
	return &memStore{
		orders:   map[string]*domain.DepositOrder{},
		balances: map[string]decimal.Decimal{},
	}
}

func clone(o *domain.DepositOrder) *domain.DepositOrder {
	c := *o
	return &c
}

func (s *memStore) Create(_ context.Context, order *domain.DepositOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.raceOnCreate > 0 {
		s.raceOnCreate--
		return domain.ErrDuplicateAmount
	}
	for _, o := range s.orders {
		if o.Status == domain.OrderStatusPending && o.ReceiveAddress == order.ReceiveAddress && o.ExpectedAmount.Equal(order.ExpectedAmount) {
			return domain.ErrDuplicateAmount
		}
	}
	s.orders[order.OrderID] = clone(order)
	return nil
}

func (s *memStore) PendingAmountExists(_ context.Context, address string, expected decimal.Decimal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.forceExists > 0 {
		s.forceExists--
		return true, nil
	}
	for _, o := range s.orders {
		if o.Status == domain.OrderStatusPending && o.ReceiveAddress == address && o.ExpectedAmount.Equal(expected) {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) GetByID(_ context.Context, orderID string) (*domain.DepositOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return clone(o), nil
}

func (s *memStore) ListByUser(_ context.Context, f domain.ListFilter) ([]*domain.DepositOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.DepositOrder
	for _, o := range s.orders {
		if o.UserID != f.UserID {
			continue
		}
		if !f.IncludeCanceled && o.Status == domain.OrderStatusCanceled {
			continue
		}
		out = append(out, clone(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *memStore) ListOpenPending(_ context.Context, now time.Time, limit int) ([]*domain.DepositOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.DepositOrder
	for _, o := range s.orders {
		if o.Status == domain.OrderStatusPending && o.ExpireAt.After(now) {
			out = append(out, clone(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) MarkPaid(_ context.Context, st domain.Settlement) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[st.OrderID]
	if !ok || o.Status != domain.OrderStatusPending || !o.ExpireAt.After(st.PaidAt) {
		return false, nil
	}
	for _, other := range s.orders {
		if other.TxID != nil && *other.TxID == st.TxID {
			return false, domain.ErrTransferAlreadyUsed
		}
	}

	paidAt := st.PaidAt
	txID, from := st.TxID, st.FromAddress
	o.Status = domain.OrderStatusPaid
	o.PaidAt = &paidAt
	o.TxID = &txID
	o.FromAddress = &from

	s.balances[o.UserID] = s.balances[o.UserID].Add(o.BaseAmount)
	s.credits++
	return true, nil
}

func (s *memStore) MarkExpired(_ context.Context, orderID string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok || o.Status != domain.OrderStatusPending || o.ExpireAt.After(now) {
		return false, nil
	}
	o.Status = domain.OrderStatusExpired
	return true, nil
}

func (s *memStore) ExpireDue(_ context.Context, now time.Time, limit int) ([]*domain.DepositOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.DepositOrder
	for _, o := range s.orders {
		if len(out) >= limit {
			break
		}
		if o.Status == domain.OrderStatusPending && !o.ExpireAt.After(now) {
			o.Status = domain.OrderStatusExpired
			out = append(out, clone(o))
		}
	}
	return out, nil
}

func (s *memStore) Cancel(_ context.Context, orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok || o.Status != domain.OrderStatusPending {
		return false, nil
	}
	o.Status = domain.OrderStatusCanceled
	return true, nil
}

func (s *memStore) balance(userID string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[userID]
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

// seqRand returns the queued values in order, then repeats the last one
type seqRand struct {
	mu   sync.Mutex
	vals []int
}

func (r *seqRand) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.vals[0]
	if len(r.vals) > 1 {
		r.vals = r.vals[1:]
	}
	return v % n
}

type fakeSource struct {
	mu        sync.Mutex
	transfers map[string][]domain.Transfer
	calls     map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{transfers: map[string][]domain.Transfer{}, calls: map[string]int{}}
}

func (f *fakeSource) add(address string, t domain.Transfer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers[address] = append([]domain.Transfer{t}, f.transfers[address]...)
}

func (f *fakeSource) FetchRecentTransfers(_ context.Context, address string, _ int) []domain.Transfer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[address]++
	return append([]domain.Transfer(nil), f.transfers[address]...)
}

type recordingNotifier struct {
	mu   sync.Mutex
	user []domain.Notification
	ops  []domain.Notification
	err  error
}

func (n *recordingNotifier) NotifyUser(_ context.Context, msg domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.user = append(n.user, msg)
	return n.err
}

func (n *recordingNotifier) NotifyOps(_ context.Context, msg domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ops = append(n.ops, msg)
	return n.err
}

func (n *recordingNotifier) userTypes() []domain.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []domain.EventType
	for _, m := range n.user {
		out = append(out, m.Type)
	}
	return out
}
