package database

import (
	"log"

	"comedor-backend/internal/config"
	"comedor-backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

// balanceView aggregates lifetime credits and debits per student.
// Absence rows are charged zero.
const balanceView = `
CREATE VIEW student_balances AS
SELECT s.*,
       COALESCE(p.total, 0)::numeric(12,2) AS total_paid,
       COALESCE(c.total, 0)::numeric(12,2) AS total_consumed,
       (COALESCE(p.total, 0) - COALESCE(c.total, 0))::numeric(12,2) AS balance
FROM students s
LEFT JOIN (
    SELECT student_id, SUM(amount) AS total
    FROM payments
    GROUP BY student_id
) p ON p.student_id = s.id
LEFT JOIN (
    SELECT student_id, SUM(amount) AS total
    FROM consumptions
    WHERE NOT absent
    GROUP BY student_id
) c ON c.student_id = s.id`

func Init(cfg *config.Config) *gorm.DB {
	var err error

	DB, err = gorm.Open(postgres.New(postgres.Config{
		DSN:                  cfg.DatabaseDSN,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger: NewGormLogger(),
	})
	if err != nil {
		log.Fatalf("No se pudo conectar a la base de datos: %v", err)
	}

	// the view pins the students columns; drop it before AutoMigrate can alter them
	if err := DB.Exec("DROP VIEW IF EXISTS student_balances").Error; err != nil {
		log.Fatalf("No se pudo eliminar la vista student_balances: %v", err)
	}

	err = DB.AutoMigrate(
		&models.User{},
		&models.Student{},
		&models.Product{},
		&models.Price{},
		&models.Consumption{},
		&models.Payment{},
		&models.AuditLog{},
	)
	if err != nil {
		log.Fatalf("Error en AutoMigrate: %v", err)
	}

	// at most one open price row per menu type
	if err := DB.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_prices_open_menu_type
		ON prices (menu_type) WHERE valid_to IS NULL`).Error; err != nil {
		log.Fatalf("No se pudo crear el índice de precios vigentes: %v", err)
	}

	if err := DB.Exec(balanceView).Error; err != nil {
		log.Fatalf("No se pudo crear la vista student_balances: %v", err)
	}

	log.Println("Conexión a la base de datos exitosa. Migración completada.")
	return DB
}
