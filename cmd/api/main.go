package main

import (
	"os"

	_ "github.com/redmonkez12/go-account-service/docs" // Swagger docs
)

// @title           Account Service API
// @version         1.0
// @description     Account registration with email or voice-call verification, sessions and password reset.

// @contact.name   API Support
// @contact.email  support@example.com

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the session token.

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
