package auth

import (
	"context"
	"errors"
	"log"
	"strings"

	"comedor-backend/internal/httpx"
	"comedor-backend/internal/models"
	"comedor-backend/internal/storage"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

type RegisterAdminRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type CreateUserRequest struct {
	Name     string          `json:"name" validate:"required"`
	Email    string          `json:"email" validate:"required,email"`
	Password string          `json:"password" validate:"required,min=8"`
	Role     models.UserRole `json:"role" validate:"required,oneof=admin cashier"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func newUser(name, email, password string, role models.UserRole) (models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}
	return models.User{
		Name:         strings.TrimSpace(name),
		Email:        strings.TrimSpace(strings.ToLower(email)),
		PasswordHash: string(hash),
		Role:         role,
	}, nil
}

// Bootstrap creates the first admin from configuration when none exists yet.
func Bootstrap(ctx context.Context, users storage.Users, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	n, err := users.CountUsersByRole(ctx, models.RoleAdmin)
	if err != nil || n > 0 {
		return err
	}
	u, err := newUser("Administrador", email, password, models.RoleAdmin)
	if err != nil {
		return err
	}
	if err := users.CreateUser(ctx, &u); err != nil {
		return err
	}
	log.Printf("[INFO] admin inicial creado: %s", u.Email)
	return nil
}

// POST /api/auth/register-admin, only while there is no admin.
func RegisterAdminHandler(d *httpx.Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body RegisterAdminRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Cuerpo de la solicitud inválido")
		}
		if err := d.Validate.Struct(body); err != nil {
			return httpx.ValidationError(err)
		}

		count, err := d.Store.CountUsersByRole(c.UserContext(), models.RoleAdmin)
		if err != nil {
			return httpx.StoreError(err, "No se pudo verificar usuarios")
		}
		if count > 0 {
			return fiber.NewError(fiber.StatusForbidden, "Ya existe un administrador")
		}

		user, err := newUser(body.Name, body.Email, body.Password, models.RoleAdmin)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo procesar la contraseña")
		}
		if err := d.Store.CreateUser(c.UserContext(), &user); err != nil {
			return httpx.StoreError(err, "No se pudo crear el usuario")
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"id":    user.ID,
			"email": user.Email,
			"role":  user.Role,
		})
	}
}

func LoginHandler(d *httpx.Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body LoginRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Cuerpo de la solicitud inválido")
		}

		body.Email = strings.TrimSpace(strings.ToLower(body.Email))

		user, err := d.Store.GetUserByEmail(c.UserContext(), body.Email)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				log.Printf("[ERROR] login lookup: %v", err)
			}
			return fiber.NewError(fiber.StatusUnauthorized, "Email o contraseña incorrectos")
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(body.Password)); err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Email o contraseña incorrectos")
		}

		token, err := GenerateToken(d.Cfg.JWTSecret, &user, d.Now())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo generar el token")
		}

		return c.JSON(fiber.Map{
			"token": token,
			"user":  user,
		})
	}
}

func MeHandler(d *httpx.Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := CurrentUser(c, d.Store)
		if err != nil {
			return err
		}
		return c.JSON(user)
	}
}

// POST /api/users (admin)
func CreateUserHandler(d *httpx.Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateUserRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Cuerpo de la solicitud inválido")
		}
		if err := d.Validate.Struct(body); err != nil {
			return httpx.ValidationError(err)
		}

		user, err := newUser(body.Name, body.Email, body.Password, body.Role)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo procesar la contraseña")
		}
		if err := d.Store.CreateUser(c.UserContext(), &user); err != nil {
			return httpx.StoreError(err, "No se pudo crear el usuario")
		}

		return c.Status(fiber.StatusCreated).JSON(user)
	}
}

// CurrentUser loads the authenticated staff member.
func CurrentUser(c *fiber.Ctx, users storage.Users) (models.User, error) {
	userID, ok := c.Locals(CtxUserIDKey).(uint)
	if !ok {
		return models.User{}, fiber.NewError(fiber.StatusForbidden, "No se pudo obtener el usuario")
	}
	user, err := users.GetUser(c.UserContext(), userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.User{}, fiber.NewError(fiber.StatusUnauthorized, "Usuario no encontrado")
		}
		return models.User{}, httpx.StoreError(err, "No se pudo obtener el usuario")
	}
	return user, nil
}
