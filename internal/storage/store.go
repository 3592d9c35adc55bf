// Package storage defines the persistence capabilities the cafeteria core depends on:
// filtered selects, inserts, update-by-id and two atomic writes (batch consumption
// posting and vigente price replacement).
package storage

import (
	"context"
	"errors"
	"time"

	"comedor-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound       = errors.New("storage: record not found")
	ErrConflict       = errors.New("storage: conflicting record")
	ErrUnknownStudent = errors.New("storage: unknown student")
)

type StudentFilter struct {
	Active *bool
	Level  string
	Query  string // case-insensitive substring on first/last name, level and section
	Limit  int
}

type ConsumptionFilter struct {
	StudentID   *uuid.UUID
	From        *time.Time // inclusive, by day
	To          *time.Time // inclusive, by day
	Newest      bool       // newest first instead of oldest first
	Limit       int
	WithStudent bool
}

type PaymentFilter struct {
	StudentID   *uuid.UUID
	From        *time.Time
	To          *time.Time
	Newest      bool
	Limit       int
	WithStudent bool
}

type AuditFilter struct {
	EntityType string
	EntityID   string
	Limit      int
}

type Students interface {
	CreateStudent(ctx context.Context, s *models.Student) error
	// CreateStudents inserts every row or none.
	CreateStudents(ctx context.Context, rows []models.Student) error
	UpdateStudent(ctx context.Context, s *models.Student) error
	GetStudent(ctx context.Context, id uuid.UUID) (models.Student, error)
	GetStudentBalance(ctx context.Context, id uuid.UUID) (models.StudentBalance, error)
	ListStudentBalances(ctx context.Context, f StudentFilter) ([]models.StudentBalance, error)
}

type Products interface {
	CreateProduct(ctx context.Context, p *models.Product) error
	UpdateProduct(ctx context.Context, p *models.Product) error
	GetProduct(ctx context.Context, id uuid.UUID) (models.Product, error)
	ListProducts(ctx context.Context, onlyActive bool) ([]models.Product, error)
	CountProducts(ctx context.Context) (int64, error)
}

type Prices interface {
	// CurrentPrice returns the open (vigente) row for the menu type, or ErrNotFound.
	CurrentPrice(ctx context.Context, menuType string) (models.Price, error)
	ListCurrentPrices(ctx context.Context) ([]models.Price, error)
	// ListPriceHistory returns closed rows, most recently closed first.
	ListPriceHistory(ctx context.Context, limit int) ([]models.Price, error)
	// ReplacePrice closes the vigente row of the menu type (if any) on day and
	// inserts a new open row starting on day, atomically.
	ReplacePrice(ctx context.Context, menuType string, amount decimal.Decimal, day time.Time) (models.Price, *models.Price, error)
}

type Consumptions interface {
	CreateConsumption(ctx context.Context, c *models.Consumption) error
	// CreateConsumptions is a single all-or-nothing multi-row insert.
	CreateConsumptions(ctx context.Context, rows []models.Consumption) error
	ListConsumptions(ctx context.Context, f ConsumptionFilter) ([]models.Consumption, error)
	// StudentsWithConsumptionOn returns the ids of students having any consumption row on day.
	StudentsWithConsumptionOn(ctx context.Context, day time.Time) (map[uuid.UUID]bool, error)
}

type Payments interface {
	CreatePayment(ctx context.Context, p *models.Payment) error
	ListPayments(ctx context.Context, f PaymentFilter) ([]models.Payment, error)
	SumPayments(ctx context.Context, from, to time.Time) (decimal.Decimal, error)
}

type Users interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id uint) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	CountUsersByRole(ctx context.Context, role models.UserRole) (int64, error)
}

type Audit interface {
	CreateAuditLog(ctx context.Context, l *models.AuditLog) error
	ListAuditLogs(ctx context.Context, f AuditFilter) ([]models.AuditLog, error)
}

type Store interface {
	Students
	Products
	Prices
	Consumptions
	Payments
	Users
	Audit
}
