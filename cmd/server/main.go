package main

import (
	"log"
	"os"

	"github.com/david/scholarship-scout/internal/api"
	"github.com/david/scholarship-scout/internal/auth"
	"github.com/david/scholarship-scout/internal/config"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	paths := config.NewPaths("")
	if err := paths.EnsureDirs(); err != nil {
		log.Fatalf("Failed to prepare directories: %v", err)
	}

	authService, err := auth.Open(paths.UsersDB())
	if err != nil {
		log.Fatalf("Failed to open user store: %v", err)
	}
	defer authService.Close()

	srv := api.NewServer(paths, authService)
	log.Printf("Server starting on port %s...", port)
	if err := srv.Start(port); err != nil {
		log.Fatal(err)
	}
}
