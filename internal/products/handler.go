package products

import (
	"fmt"
	"strings"

	"comedor-backend/internal/audit"
	"comedor-backend/internal/httpx"
	"comedor-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type CreateProductRequest struct {
	Name  string           `json:"name"`
	Price *decimal.Decimal `json:"price"`
}

type UpdateProductRequest struct {
	Name  *string          `json:"name"`
	Price *decimal.Decimal `json:"price"`
}

// GET /api/products?active=true
func ListHandler(d *httpx.Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		onlyActive := c.QueryBool("active", false)

		list, err := d.Store.ListProducts(c.UserContext(), onlyActive)
		if err != nil {
			return httpx.StoreError(err, "No se pudieron listar los productos")
		}
		return c.JSON(list)
	}
}

// POST /api/products (admin)
func CreateHandler(d *httpx.Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateProductRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Datos inválidos")
		}

		body.Name = strings.TrimSpace(body.Name)
		if body.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "El nombre es obligatorio")
		}
		price := decimal.Zero
		if body.Price != nil {
			if body.Price.IsNegative() {
				return fiber.NewError(fiber.StatusBadRequest, "El precio no puede ser negativo")
			}
			price = body.Price.Round(2)
		}

		count, err := d.Store.CountProducts(c.UserContext())
		if err != nil {
			return httpx.StoreError(err, "No se pudo crear el producto")
		}

		p := models.Product{
			Name:      body.Name,
			Price:     price,
			Active:    true,
			SortOrder: int(count) + 1,
		}
		if err := d.Store.CreateProduct(c.UserContext(), &p); err != nil {
			return httpx.StoreError(err, "No se pudo crear el producto")
		}

		audit.Record(c, d.Store, audit.LogOptions{
			EntityType:  "product",
			EntityID:    p.ID.String(),
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Producto creado: %s (%s)", p.Name, p.Price.StringFixed(2)),
			After:       p,
		})

		return c.Status(fiber.StatusCreated).JSON(p)
	}
}

// PUT /api/products/:id (admin). Past consumptions keep their own amount.
func UpdateHandler(d *httpx.Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := httpx.ParamUUID(c, "id")
		if err != nil {
			return err
		}

		p, err := d.Store.GetProduct(c.UserContext(), id)
		if err != nil {
			return httpx.StoreError(err, "No se pudo obtener el producto")
		}
		before := p

		var body UpdateProductRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Datos inválidos")
		}

		if body.Name != nil {
			name := strings.TrimSpace(*body.Name)
			if name == "" {
				return fiber.NewError(fiber.StatusBadRequest, "El nombre no puede estar vacío")
			}
			p.Name = name
		}
		if body.Price != nil {
			if body.Price.IsNegative() {
				return fiber.NewError(fiber.StatusBadRequest, "El precio no puede ser negativo")
			}
			p.Price = body.Price.Round(2)
		}

		if err := d.Store.UpdateProduct(c.UserContext(), &p); err != nil {
			return httpx.StoreError(err, "No se pudo actualizar el producto")
		}

		audit.Record(c, d.Store, audit.LogOptions{
			EntityType:  "product",
			EntityID:    p.ID.String(),
			Action:      models.AuditActionUpdate,
			Description: "Producto actualizado: " + p.Name,
			Before:      before,
			After:       p,
		})

		return c.JSON(p)
	}
}

// PATCH /api/products/:id/toggle (admin)
func ToggleHandler(d *httpx.Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := httpx.ParamUUID(c, "id")
		if err != nil {
			return err
		}

		p, err := d.Store.GetProduct(c.UserContext(), id)
		if err != nil {
			return httpx.StoreError(err, "No se pudo obtener el producto")
		}
		p.Active = !p.Active
		if err := d.Store.UpdateProduct(c.UserContext(), &p); err != nil {
			return httpx.StoreError(err, "No se pudo actualizar el producto")
		}

		audit.Record(c, d.Store, audit.LogOptions{
			EntityType:  "product",
			EntityID:    p.ID.String(),
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Producto %s activo=%t", p.Name, p.Active),
			After:       fiber.Map{"active": p.Active},
		})

		return c.JSON(p)
	}
}
