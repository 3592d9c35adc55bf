package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"comedor-backend/internal/auth"
	"comedor-backend/internal/config"
	"comedor-backend/internal/database"
	"comedor-backend/internal/events"
	"comedor-backend/internal/httpx"
	"comedor-backend/internal/receipts"
	"comedor-backend/internal/storage"
	"comedor-backend/internal/storage/memory"
	"comedor-backend/internal/storage/postgres"
)

func openStore(cfg *config.Config) storage.Store {
	if cfg.Storage == "memory" {
		return memory.New()
	}
	return postgres.New(database.Init(cfg))
}

func openReceipts(cfg *config.Config) receipts.Store {
	if cfg.ReceiptStorage == "oss" {
		rs, err := receipts.NewOSSStore(receipts.OSSConfig{
			Endpoint:        cfg.OSSEndpoint,
			AccessKeyID:     cfg.OSSAccessKeyID,
			AccessKeySecret: cfg.OSSAccessKeySecret,
			Bucket:          cfg.OSSBucket,
			PublicBaseURL:   cfg.OSSPublicBaseURL,
		})
		if err != nil {
			log.Fatalf("[FATAL] OSS: %v", err)
		}
		return rs
	}

	rs, err := receipts.NewLocalStore(cfg.ReceiptPath, cfg.ReceiptBaseURL)
	if err != nil {
		log.Fatalf("[FATAL] no se pudo crear %s: %v", cfg.ReceiptPath, err)
	}
	return rs
}

func main() {
	cfg := config.Load()

	store := openStore(cfg)
	pub := events.New(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer pub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := auth.Bootstrap(ctx, store, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword); err != nil {
		log.Printf("[WARN] no se pudo crear el admin inicial: %v", err)
	}
	cancel()

	d := httpx.NewDeps(cfg, store, openReceipts(cfg), pub)
	app := newApp(d)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("[INFO] apagando servidor...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("[WARN] shutdown: %v", err)
		}
	}()

	log.Println("Servidor escuchando en el puerto:", cfg.HTTPPort)
	if err := app.Listen(":" + cfg.HTTPPort); err != nil {
		log.Fatal(err)
	}
}
