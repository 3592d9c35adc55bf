package httpx

import (
	"errors"
	"log"

	"comedor-backend/internal/storage"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// StoreError maps storage sentinels onto HTTP errors. Unexpected errors are
// logged and hidden behind msg.
func StoreError(err error, msg string) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Registro no encontrado")
	case errors.Is(err, storage.ErrUnknownStudent):
		return fiber.NewError(fiber.StatusNotFound, "Estudiante no encontrado")
	case errors.Is(err, storage.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, "Ya existe un registro con esos datos")
	}
	log.Printf("[ERROR] %s: %v", msg, err)
	return fiber.NewError(fiber.StatusInternalServerError, msg)
}

func ParamUUID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "ID inválido")
	}
	return id, nil
}

// FieldsError is a 400 carrying the failing field names and rules.
type FieldsError struct {
	Fields map[string]string
}

func (e *FieldsError) Error() string {
	return "validation failed"
}

// ValidationError converts validator output into a *FieldsError.
func ValidationError(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return fiber.NewError(fiber.StatusBadRequest, "Datos inválidos")
	}
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		fields[fe.Field()] = fe.Tag()
	}
	return &FieldsError{Fields: fields}
}

// Warning is the soft 409: the client may repeat the request with confirm=true.
func Warning(c *fiber.Ctx, code, msg string, extra fiber.Map) error {
	body := fiber.Map{
		"error":   msg,
		"warning": code,
	}
	for k, v := range extra {
		body[k] = v
	}
	return c.Status(fiber.StatusConflict).JSON(body)
}

// ErrorHandler renders {"error": msg} for every failed request.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *FieldsError
	if errors.As(err, &fe) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "Validación fallida",
			"fields": fe.Fields,
		})
	}
	var e *fiber.Error
	if errors.As(err, &e) {
		return c.Status(e.Code).JSON(fiber.Map{
			"error": e.Message,
		})
	}
	log.Println("[ERROR] unexpected error:", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Error inesperado del servidor",
	})
}
