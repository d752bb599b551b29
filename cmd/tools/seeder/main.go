package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

// Seeds a development database with a login, a couple of doctors,
// the standard service catalog and demo customers. Idempotent: safe
// to run against an already-seeded database.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("ping database: %v", err)
	}

	seedUsers(ctx, pool)
	seedDoctors(ctx, pool)
	seedServices(ctx, pool)
	seedCustomers(ctx, pool)

	log.Println("seeding completed")
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool) {
	users := []struct {
		name, email, password string
		roles                 []string
	}{
		{"Admin", "admin@klinik.local", "admin12345", []string{"admin"}},
		{"Finance", "finance@klinik.local", "finance12345", []string{"finance"}},
		{"Front Desk", "staff@klinik.local", "staff12345", []string{"staff"}},
	}
	for _, u := range users {
		hash, err := argon2id.CreateHash(u.password, argon2id.DefaultParams)
		if err != nil {
			log.Fatalf("hash password: %v", err)
		}
		_, err = pool.Exec(ctx, `
			INSERT INTO users (name, email, password_hash, roles)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (email) DO NOTHING`,
			u.name, u.email, hash, u.roles)
		if err != nil {
			log.Fatalf("seed user %s: %v", u.email, err)
		}
	}
	log.Println("seeded users")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool) {
	doctors := []struct {
		name, specialty string
		fee             string
	}{
		{"dr. Ayu Lestari", "General Practice", "150000"},
		{"dr. Budi Santoso", "Dentistry", "250000"},
		{"dr. Citra Dewi", "Pediatrics", "200000"},
	}
	for _, d := range doctors {
		_, err := pool.Exec(ctx, `
			INSERT INTO doctors (name, specialty, consultation_fee, active)
			VALUES ($1, $2, $3, TRUE)
			ON CONFLICT DO NOTHING`,
			d.name, d.specialty, d.fee)
		if err != nil {
			log.Fatalf("seed doctor %s: %v", d.name, err)
		}
	}
	log.Println("seeded doctors")
}

func seedServices(ctx context.Context, pool *pgxpool.Pool) {
	services := []struct {
		name        string
		price       string
		taxRate     string
		durationMin int
	}{
		{"General Consultation", "150000", "10", 30},
		{"Dental Cleaning", "350000", "10", 45},
		{"Blood Panel", "275000", "0", 15},
		{"Vaccination", "120000", "0", 15},
	}
	for _, s := range services {
		_, err := pool.Exec(ctx, `
			INSERT INTO services (name, price, tax_rate_percent, duration_minutes, active)
			VALUES ($1, $2, $3, $4, TRUE)
			ON CONFLICT DO NOTHING`,
			s.name, s.price, s.taxRate, s.durationMin)
		if err != nil {
			log.Fatalf("seed service %s: %v", s.name, err)
		}
	}
	log.Println("seeded services")
}

func seedCustomers(ctx context.Context, pool *pgxpool.Pool) {
	customers := []struct {
		name, email, phone string
		coins              string
	}{
		{"Rina Wulandari", "rina@example.com", "+62811111111", "500"},
		{"Joko Prasetyo", "joko@example.com", "+62822222222", "0"},
	}
	for _, c := range customers {
		_, err := pool.Exec(ctx, `
			INSERT INTO customers (name, email, phone, coin_balance)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT DO NOTHING`,
			c.name, c.email, c.phone, c.coins)
		if err != nil {
			log.Fatalf("seed customer %s: %v", c.name, err)
		}
	}
	log.Println("seeded customers")
}
