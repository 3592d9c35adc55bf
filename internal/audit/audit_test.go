package audit_test

import (
	"context"
	"testing"

	"comedor-backend/internal/audit"
	"comedor-backend/internal/httpx/httpxtest"
	"comedor-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordFillsActingUser(t *testing.T) {
	env := httpxtest.New(t)
	app := env.App(func(r fiber.Router) {
		r.Post("/touch", func(c *fiber.Ctx) error {
			audit.Record(c, env.Store, audit.LogOptions{
				EntityType:  "product",
				EntityID:    "p-1",
				Action:      models.AuditActionUpdate,
				Description: "Producto actualizado",
				Before:      fiber.Map{"price": "1"},
				After:       fiber.Map{"price": "2"},
			})
			return c.SendStatus(fiber.StatusNoContent)
		})
		r.Get("/api/audit-logs", audit.ListAuditLogsHandler(env.Deps))
	})

	status, _ := httpxtest.Do(t, app, "POST", "/touch", nil)
	require.Equal(t, fiber.StatusNoContent, status)

	_, raw := httpxtest.Do(t, app, "GET", "/api/audit-logs?entity_type=product", nil)
	logs := httpxtest.List(t, raw)
	require.Len(t, logs, 1)
	assert.Equal(t, "Admin", logs[0]["user_name"])
	assert.Equal(t, "update", logs[0]["action"])
	assert.Equal(t, map[string]any{"price": "2"}, logs[0]["after_data"])
}

func TestListFilters(t *testing.T) {
	env := httpxtest.New(t)
	ctx := context.Background()
	for _, e := range []struct{ typ, id string }{{"payment", "a"}, {"payment", "b"}, {"student", "a"}} {
		require.NoError(t, audit.WriteLog(ctx, env.Store, audit.LogOptions{EntityType: e.typ, EntityID: e.id, Action: models.AuditActionCreate}))
	}
	app := env.App(func(r fiber.Router) {
		r.Get("/api/audit-logs", audit.ListAuditLogsHandler(env.Deps))
	})

	tests := []struct {
		query string
		want  int
	}{
		{"", 3},
		{"?entity_type=payment", 2},
		{"?entity_type=payment&entity_id=b", 1},
		{"?limit=1", 1},
		{"?entity_type=price", 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			status, raw := httpxtest.Do(t, app, "GET", "/api/audit-logs"+tt.query, nil)
			require.Equal(t, fiber.StatusOK, status)
			assert.Len(t, httpxtest.List(t, raw), tt.want)
		})
	}
}
