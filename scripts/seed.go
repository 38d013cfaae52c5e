//go:build ignore

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/projectbrain/backend/internal/database"
	"github.com/projectbrain/backend/internal/database/models"
	"github.com/projectbrain/backend/pkg/config"
	"github.com/projectbrain/backend/pkg/util"
)

// Seeds a development database: an admin user bound to a known Auth0
// subject, plus the intake quizzes the frontend expects.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Server.Env)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	auth0ID := os.Getenv("ADMIN_AUTH0_ID")
	email := os.Getenv("ADMIN_EMAIL")
	name := os.Getenv("ADMIN_NAME")

	if auth0ID == "" {
		auth0ID = "auth0|dev-admin"
	}
	if email == "" {
		email = "admin@example.com"
	}
	if name == "" {
		name = "Admin"
	}

	var existing models.User
	if err := db.Where("auth0_id = ?", auth0ID).First(&existing).Error; err == nil {
		fmt.Printf("Admin user already exists: %s\n", existing.Email)
	} else {
		admin := models.User{
			Auth0ID:       auth0ID,
			Email:         email,
			Name:          name,
			EmailVerified: true,
			Onboarded:     true,
			Roles:         models.StringArray{models.RoleAdmin},
		}
		if err := db.Create(&admin).Error; err != nil {
			log.Fatalf("failed to create admin user: %v", err)
		}
		fmt.Printf("Admin user created: %s (%s)\n", admin.Email, admin.Auth0ID)
	}

	quizzes := []models.Quiz{
		{
			Title: "Onboarding intake",
			Questions: `[
				{"id": "q1", "text": "What does a productive day look like for you?", "kind": "text"},
				{"id": "q2", "text": "How often do deadlines sneak up on you?", "kind": "scale", "min": 1, "max": 5},
				{"id": "q3", "text": "Which areas do you want coaching support with?", "kind": "multi", "options": ["planning", "focus", "energy", "communication"]}
			]`,
			IsActive: true,
		},
		{
			Title: "Weekly check-in",
			Questions: `[
				{"id": "q1", "text": "How was your energy this week?", "kind": "scale", "min": 1, "max": 5},
				{"id": "q2", "text": "What is one win from this week?", "kind": "text"}
			]`,
			IsActive: true,
		},
	}

	for _, quiz := range quizzes {
		var count int64
		if err := db.Model(&models.Quiz{}).Where("title = ?", quiz.Title).Count(&count).Error; err != nil {
			log.Fatalf("failed to check quiz %q: %v", quiz.Title, err)
		}
		if count > 0 {
			fmt.Printf("Quiz already exists: %s\n", quiz.Title)
			continue
		}
		if err := db.Create(&quiz).Error; err != nil {
			log.Fatalf("failed to create quiz %q: %v", quiz.Title, err)
		}
		fmt.Printf("Quiz created: %s\n", quiz.Title)
	}

	fmt.Println("Seed complete.")
}
