// Command seed-admin creates the bootstrap admin account if it does not
// already exist. Driven entirely by ADMIN_* and DATABASE_* environment
// variables; intended to run once per deployment.
package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		envOr("DATABASE_HOST", "localhost"),
		envOr("DATABASE_PORT", "5432"),
		envOr("DATABASE_USER", "postgres"),
		os.Getenv("DATABASE_PASSWORD"),
		envOr("DATABASE_DBNAME", "inventory_db"),
		envOr("DATABASE_SSLMODE", "disable"),
	)

	adminEmail := strings.ToLower(strings.TrimSpace(os.Getenv("ADMIN_EMAIL")))
	adminPassword := os.Getenv("ADMIN_PASSWORD")
	adminFirstName := strings.TrimSpace(os.Getenv("ADMIN_FIRST_NAME"))
	adminLastName := strings.TrimSpace(os.Getenv("ADMIN_LAST_NAME"))
	if adminEmail == "" || adminPassword == "" || adminFirstName == "" || adminLastName == "" {
		log.Fatal("missing ADMIN_EMAIL, ADMIN_PASSWORD, ADMIN_FIRST_NAME or ADMIN_LAST_NAME")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatal(err)
	}

	var exists bool
	err = db.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM users WHERE email = $1 AND role = 'admin')",
		adminEmail,
	).Scan(&exists)
	if err != nil {
		log.Fatalf("failed to check for existing admin: %v", err)
	}
	if exists {
		fmt.Println("admin already exists, skipping seeding")
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(adminPassword), 12)
	if err != nil {
		log.Fatalf("failed to hash admin password: %v", err)
	}

	now := time.Now()
	_, err = db.Exec(
		`INSERT INTO users (first_name, last_name, email, age, gender, password, role, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, 'admin', $7, $7)`,
		adminFirstName, adminLastName, adminEmail, 30, "male", string(hashedPassword), now,
	)
	if err != nil {
		log.Fatalf("failed to create admin user: %v", err)
	}

	fmt.Printf("admin user (%s) created successfully\n", adminEmail)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
