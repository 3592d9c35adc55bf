package audit

import (
	"comedor-backend/internal/httpx"
	"comedor-backend/internal/storage"

	"github.com/gofiber/fiber/v2"
)

// GET /api/audit-logs?entity_type=payment&entity_id=<uuid>&limit=100
func ListAuditLogsHandler(d *httpx.Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", 100)
		if limit <= 0 || limit > 500 {
			limit = 100
		}

		logs, err := d.Store.ListAuditLogs(c.UserContext(), storage.AuditFilter{
			EntityType: c.Query("entity_type"),
			EntityID:   c.Query("entity_id"),
			Limit:      limit,
		})
		if err != nil {
			return httpx.StoreError(err, "No se pudieron listar los registros")
		}

		return c.JSON(logs)
	}
}
