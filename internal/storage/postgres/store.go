// Package postgres implements storage.Store on gorm with the postgres driver.
// Balances are read from the student_balances view created by the database package.
package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"comedor-backend/internal/models"
	"comedor-backend/internal/storage"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	pkgerrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// translate maps driver errors onto the storage sentinels.
func translate(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return pkgerrors.Wrap(storage.ErrConflict, pgErr.ConstraintName)
		case pgForeignKeyViolation:
			if strings.Contains(pgErr.ConstraintName, "student") {
				return pkgerrors.Wrap(storage.ErrUnknownStudent, pgErr.ConstraintName)
			}
		}
	}
	return pkgerrors.Wrap(err, op)
}

func dayOnly(t time.Time) string {
	return t.Format("2006-01-02")
}

// -------------------------------------------------
// Students
// -------------------------------------------------

func (s *Store) CreateStudent(ctx context.Context, st *models.Student) error {
	if st.ID == uuid.Nil {
		st.ID = uuid.New()
	}
	return translate(s.db.WithContext(ctx).Create(st).Error, "create student")
}

func (s *Store) CreateStudents(ctx context.Context, rows []models.Student) error {
	if len(rows) == 0 {
		return nil
	}
	for i := range rows {
		if rows[i].ID == uuid.Nil {
			rows[i].ID = uuid.New()
		}
	}
	// a single INSERT ... VALUES (...), (...) statement is all-or-nothing
	return translate(s.db.WithContext(ctx).Create(&rows).Error, "create students")
}

func (s *Store) UpdateStudent(ctx context.Context, st *models.Student) error {
	res := s.db.WithContext(ctx).Model(&models.Student{}).Where("id = ?", st.ID).
		Select("first_name", "last_name", "level", "section", "code", "allergies",
			"requires_invoice", "guardian_name", "guardian_phone", "payment_plan", "active").
		Updates(st)
	if res.Error != nil {
		return translate(res.Error, "update student")
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) GetStudent(ctx context.Context, id uuid.UUID) (models.Student, error) {
	var st models.Student
	err := s.db.WithContext(ctx).First(&st, "id = ?", id).Error
	return st, translate(err, "get student")
}

func (s *Store) GetStudentBalance(ctx context.Context, id uuid.UUID) (models.StudentBalance, error) {
	var b models.StudentBalance
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&b).Error
	return b, translate(err, "get student balance")
}

func (s *Store) ListStudentBalances(ctx context.Context, f storage.StudentFilter) ([]models.StudentBalance, error) {
	dbq := s.db.WithContext(ctx).Model(&models.StudentBalance{})

	if f.Active != nil {
		dbq = dbq.Where("active = ?", *f.Active)
	}
	if f.Level != "" {
		dbq = dbq.Where("LOWER(level) = LOWER(?)", f.Level)
	}
	for _, term := range strings.Fields(f.Query) {
		like := "%" + escapeLike(term) + "%"
		dbq = dbq.Where(
			"(first_name ILIKE ? OR last_name ILIKE ? OR level ILIKE ? OR section ILIKE ? OR (level || section) ILIKE ?)",
			like, like, like, like, like,
		)
	}
	if f.Limit > 0 {
		dbq = dbq.Limit(f.Limit)
	}

	var rows []models.StudentBalance
	err := dbq.Order("level asc, section asc, first_name asc, last_name asc").Find(&rows).Error
	return rows, translate(err, "list student balances")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// -------------------------------------------------
// Products
// -------------------------------------------------

func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return translate(s.db.WithContext(ctx).Create(p).Error, "create product")
}

func (s *Store) UpdateProduct(ctx context.Context, p *models.Product) error {
	res := s.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", p.ID).
		Select("name", "price", "active", "sort_order").
		Updates(p)
	if res.Error != nil {
		return translate(res.Error, "update product")
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) GetProduct(ctx context.Context, id uuid.UUID) (models.Product, error) {
	var p models.Product
	err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error
	return p, translate(err, "get product")
}

func (s *Store) ListProducts(ctx context.Context, onlyActive bool) ([]models.Product, error) {
	dbq := s.db.WithContext(ctx).Model(&models.Product{})
	if onlyActive {
		dbq = dbq.Where("active = ?", true)
	}
	var rows []models.Product
	err := dbq.Order("sort_order asc, name asc").Find(&rows).Error
	return rows, translate(err, "list products")
}

func (s *Store) CountProducts(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Product{}).Count(&n).Error
	return n, translate(err, "count products")
}

// -------------------------------------------------
// Prices
// -------------------------------------------------

func (s *Store) CurrentPrice(ctx context.Context, menuType string) (models.Price, error) {
	var p models.Price
	err := s.db.WithContext(ctx).
		Where("menu_type = ? AND valid_to IS NULL", menuType).
		Take(&p).Error
	return p, translate(err, "current price")
}

func (s *Store) ListCurrentPrices(ctx context.Context) ([]models.Price, error) {
	var rows []models.Price
	err := s.db.WithContext(ctx).
		Where("valid_to IS NULL").
		Order("menu_type asc").
		Find(&rows).Error
	return rows, translate(err, "list current prices")
}

func (s *Store) ListPriceHistory(ctx context.Context, limit int) ([]models.Price, error) {
	dbq := s.db.WithContext(ctx).
		Where("valid_to IS NOT NULL").
		Order("valid_to desc, created_at desc")
	if limit > 0 {
		dbq = dbq.Limit(limit)
	}
	var rows []models.Price
	err := dbq.Find(&rows).Error
	return rows, translate(err, "list price history")
}

func (s *Store) ReplacePrice(ctx context.Context, menuType string, amount decimal.Decimal, day time.Time) (models.Price, *models.Price, error) {
	var (
		created models.Price
		closed  *models.Price
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.Price
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("menu_type = ? AND valid_to IS NULL", menuType).
			Take(&current).Error
		switch {
		case err == nil:
			until := models.CalendarDate(day)
			if err := tx.Model(&models.Price{}).
				Where("id = ? AND valid_to IS NULL", current.ID).
				Update("valid_to", dayOnly(until)).Error; err != nil {
				return err
			}
			current.ValidTo = &until
			closed = &current
		case errors.Is(err, gorm.ErrRecordNotFound):
			// first price for this menu type
		default:
			return err
		}

		created = models.Price{
			ID:        uuid.New(),
			MenuType:  menuType,
			Amount:    amount,
			ValidFrom: models.CalendarDate(day),
		}
		return tx.Create(&created).Error
	})
	if err != nil {
		return models.Price{}, nil, translate(err, "replace price")
	}
	return created, closed, nil
}

// -------------------------------------------------
// Consumptions
// -------------------------------------------------

func (s *Store) CreateConsumption(ctx context.Context, c *models.Consumption) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.Student = nil
	c.Date = models.CalendarDate(c.Date)
	return translate(s.db.WithContext(ctx).Create(c).Error, "create consumption")
}

func (s *Store) CreateConsumptions(ctx context.Context, rows []models.Consumption) error {
	if len(rows) == 0 {
		return nil
	}
	for i := range rows {
		if rows[i].ID == uuid.Nil {
			rows[i].ID = uuid.New()
		}
		rows[i].Student = nil
		rows[i].Date = models.CalendarDate(rows[i].Date)
	}
	// one multi-row INSERT: either every student is charged or none is
	return translate(s.db.WithContext(ctx).Create(&rows).Error, "create consumptions")
}

func (s *Store) ListConsumptions(ctx context.Context, f storage.ConsumptionFilter) ([]models.Consumption, error) {
	dbq := s.db.WithContext(ctx).Model(&models.Consumption{})
	if f.StudentID != nil {
		dbq = dbq.Where("student_id = ?", *f.StudentID)
	}
	if f.From != nil {
		dbq = dbq.Where("date >= ?", dayOnly(*f.From))
	}
	if f.To != nil {
		dbq = dbq.Where("date <= ?", dayOnly(*f.To))
	}
	if f.WithStudent {
		dbq = dbq.Preload("Student")
	}
	if f.Newest {
		dbq = dbq.Order("date desc, created_at desc, id desc")
	} else {
		dbq = dbq.Order("date asc, created_at asc, id asc")
	}
	if f.Limit > 0 {
		dbq = dbq.Limit(f.Limit)
	}

	var rows []models.Consumption
	err := dbq.Find(&rows).Error
	return rows, translate(err, "list consumptions")
}

func (s *Store) StudentsWithConsumptionOn(ctx context.Context, day time.Time) (map[uuid.UUID]bool, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).Model(&models.Consumption{}).
		Distinct("student_id").
		Where("date = ?", dayOnly(day)).
		Pluck("student_id", &ids).Error
	if err != nil {
		return nil, translate(err, "students with consumption")
	}
	out := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

// -------------------------------------------------
// Payments
// -------------------------------------------------

func (s *Store) CreatePayment(ctx context.Context, p *models.Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.Student = nil
	p.Date = models.CalendarDate(p.Date)
	return translate(s.db.WithContext(ctx).Create(p).Error, "create payment")
}

func (s *Store) ListPayments(ctx context.Context, f storage.PaymentFilter) ([]models.Payment, error) {
	dbq := s.db.WithContext(ctx).Model(&models.Payment{})
	if f.StudentID != nil {
		dbq = dbq.Where("student_id = ?", *f.StudentID)
	}
	if f.From != nil {
		dbq = dbq.Where("date >= ?", dayOnly(*f.From))
	}
	if f.To != nil {
		dbq = dbq.Where("date <= ?", dayOnly(*f.To))
	}
	if f.WithStudent {
		dbq = dbq.Preload("Student")
	}
	if f.Newest {
		dbq = dbq.Order("date desc, created_at desc, id desc")
	} else {
		dbq = dbq.Order("date asc, created_at asc, id asc")
	}
	if f.Limit > 0 {
		dbq = dbq.Limit(f.Limit)
	}

	var rows []models.Payment
	err := dbq.Find(&rows).Error
	return rows, translate(err, "list payments")
}

func (s *Store) SumPayments(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := s.db.WithContext(ctx).Model(&models.Payment{}).
		Select("SUM(amount)").
		Where("date >= ? AND date <= ?", dayOnly(from), dayOnly(to)).
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, translate(err, "sum payments")
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

// -------------------------------------------------
// Users
// -------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	return translate(s.db.WithContext(ctx).Create(u).Error, "create user")
}

func (s *Store) GetUser(ctx context.Context, id uint) (models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).First(&u, id).Error
	return u, translate(err, "get user")
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where("LOWER(email) = LOWER(?)", email).First(&u).Error
	return u, translate(err, "get user by email")
}

func (s *Store) CountUsersByRole(ctx context.Context, role models.UserRole) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.User{}).Where("role = ?", role).Count(&n).Error
	return n, translate(err, "count users")
}

// -------------------------------------------------
// Audit
// -------------------------------------------------

func (s *Store) CreateAuditLog(ctx context.Context, l *models.AuditLog) error {
	return translate(s.db.WithContext(ctx).Create(l).Error, "create audit log")
}

func (s *Store) ListAuditLogs(ctx context.Context, f storage.AuditFilter) ([]models.AuditLog, error) {
	dbq := s.db.WithContext(ctx).Model(&models.AuditLog{})
	if f.EntityType != "" {
		dbq = dbq.Where("entity_type = ?", f.EntityType)
	}
	if f.EntityID != "" {
		dbq = dbq.Where("entity_id = ?", f.EntityID)
	}
	if f.Limit > 0 {
		dbq = dbq.Limit(f.Limit)
	}
	var rows []models.AuditLog
	err := dbq.Order("created_at desc, id desc").Find(&rows).Error
	return rows, translate(err, "list audit logs")
}

var _ storage.Store = (*Store)(nil)
