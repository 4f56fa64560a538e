// Command tokengen prints a signed token for local testing against the
// server's JWT_SECRET.
package main

import (
	"flag"
	"fmt"

	"chat-live/internal/auth"
	"chat-live/internal/config"
	"chat-live/internal/models"
	"chat-live/pkg/logger"
)

func main() {
	user := flag.String("user", "", "user id to issue the token for")
	role := flag.String("role", string(models.RoleUser), "role claim")
	flag.Parse()

	if *user == "" {
		logger.Fatal("-user is required")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	token, err := auth.NewService(cfg).IssueToken(models.Identity{UserID: models.UserID(*user), Role: models.Role(*role)})
	if err != nil {
		logger.Fatal("Failed to sign token: %v", err)
	}
	fmt.Println(token)
}
