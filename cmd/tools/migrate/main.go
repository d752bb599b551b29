package main

import (
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/medantara/backend-klinik/internal/app"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on environment variables")
	}

	dir := flag.String("dir", "migrations", "directory holding migration files")
	flag.Parse()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	if err := app.RunMigrations(dbURL, *dir); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Println("migrations applied")
}
