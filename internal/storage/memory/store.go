// Package memory is an in-process implementation of storage.Store. It keeps the
// same semantics as the postgres store and backs the tests and the demo mode.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"comedor-backend/internal/models"
	"comedor-backend/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Store struct {
	mu sync.RWMutex

	students     map[uuid.UUID]models.Student
	products     map[uuid.UUID]models.Product
	prices       []models.Price
	consumptions []models.Consumption
	payments     []models.Payment
	users        []models.User
	auditLogs    []models.AuditLog

	now func() time.Time
}

func New() *Store {
	return &Store{
		students: make(map[uuid.UUID]models.Student),
		products: make(map[uuid.UUID]models.Product),
		now:      time.Now,
	}
}

// SetClock replaces the time source used for created_at stamps.
func (m *Store) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// -------------------------------------------------
// Students
// -------------------------------------------------

func (m *Store) CreateStudent(ctx context.Context, s *models.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkStudentCode(*s, nil); err != nil {
		return err
	}
	m.prepareStudent(s)
	m.students[s.ID] = *s
	return nil
}

func (m *Store) CreateStudents(ctx context.Context, rows []models.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool)
	for i := range rows {
		if err := m.checkStudentCode(rows[i], nil); err != nil {
			return err
		}
		if rows[i].Code != nil {
			if seen[*rows[i].Code] {
				return storage.ErrConflict
			}
			seen[*rows[i].Code] = true
		}
	}
	for i := range rows {
		m.prepareStudent(&rows[i])
		m.students[rows[i].ID] = rows[i]
	}
	return nil
}

func (m *Store) UpdateStudent(ctx context.Context, s *models.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.students[s.ID]
	if !ok {
		return storage.ErrNotFound
	}
	if err := m.checkStudentCode(*s, &s.ID); err != nil {
		return err
	}
	s.CreatedAt = current.CreatedAt
	s.UpdatedAt = m.now()
	m.students[s.ID] = *s
	return nil
}

func (m *Store) GetStudent(ctx context.Context, id uuid.UUID) (models.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.students[id]
	if !ok {
		return models.Student{}, storage.ErrNotFound
	}
	return s, nil
}

func (m *Store) GetStudentBalance(ctx context.Context, id uuid.UUID) (models.StudentBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.students[id]
	if !ok {
		return models.StudentBalance{}, storage.ErrNotFound
	}
	return m.balanceOf(s), nil
}

func (m *Store) ListStudentBalances(ctx context.Context, f storage.StudentFilter) ([]models.StudentBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	terms := strings.Fields(strings.ToLower(f.Query))
	out := make([]models.StudentBalance, 0, len(m.students))
	for _, s := range m.students {
		if f.Active != nil && s.Active != *f.Active {
			continue
		}
		if f.Level != "" && !strings.EqualFold(s.Level, f.Level) {
			continue
		}
		if !matchesTerms(s, terms) {
			continue
		}
		out = append(out, m.balanceOf(s))
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Student, out[j].Student
		if a.Level != b.Level {
			return a.Level < b.Level
		}
		if a.Section != b.Section {
			return a.Section < b.Section
		}
		if a.FirstName != b.FirstName {
			return a.FirstName < b.FirstName
		}
		return a.LastName < b.LastName
	})

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func matchesTerms(s models.Student, terms []string) bool {
	fields := []string{
		strings.ToLower(s.FirstName),
		strings.ToLower(s.LastName),
		strings.ToLower(s.Level),
		strings.ToLower(s.Section),
		strings.ToLower(s.Group()),
	}
	for _, t := range terms {
		found := false
		for _, f := range fields {
			if strings.Contains(f, t) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (m *Store) balanceOf(s models.Student) models.StudentBalance {
	b := models.StudentBalance{Student: s}
	for _, p := range m.payments {
		if p.StudentID == s.ID {
			b.TotalPaid = b.TotalPaid.Add(p.Amount)
		}
	}
	for _, c := range m.consumptions {
		if c.StudentID == s.ID {
			b.TotalConsumed = b.TotalConsumed.Add(c.Charged())
		}
	}
	b.Balance = b.TotalPaid.Sub(b.TotalConsumed)
	return b
}

func (m *Store) checkStudentCode(s models.Student, self *uuid.UUID) error {
	if s.Code == nil {
		return nil
	}
	for id, other := range m.students {
		if self != nil && id == *self {
			continue
		}
		if other.Code != nil && *other.Code == *s.Code {
			return storage.ErrConflict
		}
	}
	return nil
}

func (m *Store) prepareStudent(s *models.Student) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.PaymentPlan == "" {
		s.PaymentPlan = models.PaymentPlanMonthly
	}
	now := m.now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
}

// -------------------------------------------------
// Products
// -------------------------------------------------

func (m *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := m.now()
	p.CreatedAt = now
	p.UpdatedAt = now
	m.products[p.ID] = *p
	return nil
}

func (m *Store) UpdateProduct(ctx context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.products[p.ID]
	if !ok {
		return storage.ErrNotFound
	}
	p.CreatedAt = current.CreatedAt
	p.UpdatedAt = m.now()
	m.products[p.ID] = *p
	return nil
}

func (m *Store) GetProduct(ctx context.Context, id uuid.UUID) (models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.products[id]
	if !ok {
		return models.Product{}, storage.ErrNotFound
	}
	return p, nil
}

func (m *Store) ListProducts(ctx context.Context, onlyActive bool) ([]models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Product, 0, len(m.products))
	for _, p := range m.products {
		if onlyActive && !p.Active {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *Store) CountProducts(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.products)), nil
}

// -------------------------------------------------
// Prices
// -------------------------------------------------

func (m *Store) CurrentPrice(ctx context.Context, menuType string) (models.Price, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.prices {
		if p.MenuType == menuType && p.Open() {
			return p, nil
		}
	}
	return models.Price{}, storage.ErrNotFound
}

func (m *Store) ListCurrentPrices(ctx context.Context) ([]models.Price, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Price, 0)
	for _, p := range m.prices {
		if p.Open() {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MenuType < out[j].MenuType })
	return out, nil
}

func (m *Store) ListPriceHistory(ctx context.Context, limit int) ([]models.Price, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Price, 0)
	for _, p := range m.prices {
		if !p.Open() {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ki, kj := models.DayKey(*out[i].ValidTo), models.DayKey(*out[j].ValidTo)
		if ki != kj {
			return ki > kj
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Store) ReplacePrice(ctx context.Context, menuType string, amount decimal.Decimal, day time.Time) (models.Price, *models.Price, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var closed *models.Price
	for i := range m.prices {
		if m.prices[i].MenuType == menuType && m.prices[i].Open() {
			until := models.Day(day)
			m.prices[i].ValidTo = &until
			c := m.prices[i]
			closed = &c
			break
		}
	}

	p := models.Price{
		ID:        uuid.New(),
		MenuType:  menuType,
		Amount:    amount,
		ValidFrom: models.Day(day),
		CreatedAt: m.now(),
	}
	m.prices = append(m.prices, p)
	return p, closed, nil
}

// -------------------------------------------------
// Consumptions
// -------------------------------------------------

func (m *Store) CreateConsumption(ctx context.Context, c *models.Consumption) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.students[c.StudentID]; !ok {
		return storage.ErrUnknownStudent
	}
	m.prepareConsumption(c)
	m.consumptions = append(m.consumptions, *c)
	return nil
}

func (m *Store) CreateConsumptions(ctx context.Context, rows []models.Consumption) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range rows {
		if _, ok := m.students[c.StudentID]; !ok {
			return storage.ErrUnknownStudent
		}
	}
	for i := range rows {
		m.prepareConsumption(&rows[i])
	}
	m.consumptions = append(m.consumptions, rows...)
	return nil
}

func (m *Store) prepareConsumption(c *models.Consumption) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = m.now()
	}
	c.Date = models.Day(c.Date)
	c.Student = nil
}

func (m *Store) ListConsumptions(ctx context.Context, f storage.ConsumptionFilter) ([]models.Consumption, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Consumption, 0)
	for _, c := range m.consumptions {
		if f.StudentID != nil && c.StudentID != *f.StudentID {
			continue
		}
		if !inRange(c.Date, f.From, f.To) {
			continue
		}
		if f.WithStudent {
			if s, ok := m.students[c.StudentID]; ok {
				c.Student = &s
			}
		}
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if f.Newest {
			return consumptionLess(out[j], out[i])
		}
		return consumptionLess(out[i], out[j])
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func consumptionLess(a, b models.Consumption) bool {
	ka, kb := models.DayKey(a.Date), models.DayKey(b.Date)
	if ka != kb {
		return ka < kb
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}

func (m *Store) StudentsWithConsumptionOn(ctx context.Context, day time.Time) (map[uuid.UUID]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := models.DayKey(day)
	out := make(map[uuid.UUID]bool)
	for _, c := range m.consumptions {
		if models.DayKey(c.Date) == key {
			out[c.StudentID] = true
		}
	}
	return out, nil
}

// -------------------------------------------------
// Payments
// -------------------------------------------------

func (m *Store) CreatePayment(ctx context.Context, p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.students[p.StudentID]; !ok {
		return storage.ErrUnknownStudent
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = m.now()
	}
	p.Date = models.Day(p.Date)
	p.Student = nil
	m.payments = append(m.payments, *p)
	return nil
}

func (m *Store) ListPayments(ctx context.Context, f storage.PaymentFilter) ([]models.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Payment, 0)
	for _, p := range m.payments {
		if f.StudentID != nil && p.StudentID != *f.StudentID {
			continue
		}
		if !inRange(p.Date, f.From, f.To) {
			continue
		}
		if f.WithStudent {
			if s, ok := m.students[p.StudentID]; ok {
				p.Student = &s
			}
		}
		out = append(out, p)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if f.Newest {
			return paymentLess(out[j], out[i])
		}
		return paymentLess(out[i], out[j])
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func paymentLess(a, b models.Payment) bool {
	ka, kb := models.DayKey(a.Date), models.DayKey(b.Date)
	if ka != kb {
		return ka < kb
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}

func (m *Store) SumPayments(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := decimal.Zero
	for _, p := range m.payments {
		if inRange(p.Date, &from, &to) {
			total = total.Add(p.Amount)
		}
	}
	return total, nil
}

func inRange(day time.Time, from, to *time.Time) bool {
	k := models.DayKey(day)
	if from != nil && k < models.DayKey(*from) {
		return false
	}
	if to != nil && k > models.DayKey(*to) {
		return false
	}
	return true
}

// -------------------------------------------------
// Users
// -------------------------------------------------

func (m *Store) CreateUser(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, other := range m.users {
		if strings.EqualFold(other.Email, u.Email) {
			return storage.ErrConflict
		}
	}
	u.ID = uint(len(m.users) + 1)
	now := m.now()
	u.CreatedAt = now
	u.UpdatedAt = now
	m.users = append(m.users, *u)
	return nil
}

func (m *Store) GetUser(ctx context.Context, id uint) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return models.User{}, storage.ErrNotFound
}

func (m *Store) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return models.User{}, storage.ErrNotFound
}

func (m *Store) CountUsersByRole(ctx context.Context, role models.UserRole) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, u := range m.users {
		if u.Role == role {
			n++
		}
	}
	return n, nil
}

// -------------------------------------------------
// Audit
// -------------------------------------------------

func (m *Store) CreateAuditLog(ctx context.Context, l *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l.ID = uint(len(m.auditLogs) + 1)
	l.CreatedAt = m.now()
	m.auditLogs = append(m.auditLogs, *l)
	return nil
}

func (m *Store) ListAuditLogs(ctx context.Context, f storage.AuditFilter) ([]models.AuditLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.AuditLog, 0)
	for i := len(m.auditLogs) - 1; i >= 0; i-- {
		l := m.auditLogs[i]
		if f.EntityType != "" && l.EntityType != f.EntityType {
			continue
		}
		if f.EntityID != "" && l.EntityID != f.EntityID {
			continue
		}
		out = append(out, l)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

var _ storage.Store = (*Store)(nil)
