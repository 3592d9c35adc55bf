package audit

import (
	"context"
	"fmt"
	"log"

	"comedor-backend/internal/auth"
	"comedor-backend/internal/models"
	"comedor-backend/internal/storage"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
)

type LogOptions struct {
	UserID      uint
	UserName    string
	EntityType  string
	EntityID    string
	Action      models.AuditAction
	Description string
	Before      any
	After       any
}

func snapshot(v any) datatypes.JSON {
	// jsonb columns need "null" rather than an empty string
	if v == nil {
		return datatypes.JSON("null")
	}
	b, err := sonic.Marshal(v)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(b)
}

func WriteLog(ctx context.Context, store storage.Audit, opts LogOptions) error {
	entry := models.AuditLog{
		UserID:      opts.UserID,
		UserName:    opts.UserName,
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		Action:      opts.Action,
		Description: opts.Description,
		BeforeData:  snapshot(opts.Before),
		AfterData:   snapshot(opts.After),
	}

	if err := store.CreateAuditLog(ctx, &entry); err != nil {
		return fmt.Errorf("no se pudo guardar el audit log: %w", err)
	}
	return nil
}

// Record fills the acting user from the request and writes the entry.
// Failures are logged only; the write it describes already happened.
func Record(c *fiber.Ctx, store storage.Store, opts LogOptions) {
	if user, err := auth.CurrentUser(c, store); err == nil {
		opts.UserID = user.ID
		opts.UserName = user.Name
	}
	if err := WriteLog(c.UserContext(), store, opts); err != nil {
		log.Printf("[WARN] %v", err)
	}
}
