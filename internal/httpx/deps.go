// Package httpx holds what every handler package shares: the dependency set,
// date parsing in the school's timezone and storage error mapping.
package httpx

import (
	"context"
	"errors"
	"time"

	"comedor-backend/internal/balance"
	"comedor-backend/internal/config"
	"comedor-backend/internal/events"
	"comedor-backend/internal/models"
	"comedor-backend/internal/receipts"
	"comedor-backend/internal/storage"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

type Deps struct {
	Cfg      *config.Config
	Store    storage.Store
	Receipts receipts.Store
	Events   events.Publisher
	Validate *validator.Validate
	Now      func() time.Time
}

func NewDeps(cfg *config.Config, store storage.Store, rs receipts.Store, pub events.Publisher) *Deps {
	return &Deps{
		Cfg:      cfg,
		Store:    store,
		Receipts: rs,
		Events:   pub,
		Validate: validator.New(),
		Now:      time.Now,
	}
}

func (d *Deps) location() *time.Location {
	if d.Cfg != nil && d.Cfg.Location != nil {
		return d.Cfg.Location
	}
	return time.UTC
}

// Clock is the current instant in the school's timezone.
func (d *Deps) Clock() time.Time {
	return d.Now().In(d.location())
}

func (d *Deps) Today() time.Time {
	return models.Day(d.Clock())
}

// ParseDay reads a YYYY-MM-DD value as midnight in the school's timezone.
func (d *Deps) ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, d.location())
}

// CurrentPrice returns the vigente price of menuType, ok=false when none exists.
func (d *Deps) CurrentPrice(ctx context.Context, menuType string) (models.Price, bool, error) {
	p, err := d.Store.CurrentPrice(ctx, menuType)
	if errors.Is(err, storage.ErrNotFound) {
		return models.Price{}, false, nil
	}
	if err != nil {
		return models.Price{}, false, err
	}
	return p, true, nil
}

// ReferencePrice is the classifier reference: the default menu's vigente
// price, or the configured fallback.
func (d *Deps) ReferencePrice(ctx context.Context) (decimal.Decimal, error) {
	p, ok, err := d.CurrentPrice(ctx, d.Cfg.DefaultMenuType)
	if err != nil {
		return decimal.Zero, err
	}
	return balance.ReferencePrice(p, ok, d.Cfg.FallbackUnitPrice), nil
}
