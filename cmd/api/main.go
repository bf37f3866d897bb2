package main

import (
	"log"

	"campus-chat/internal/server"
)

func main() {
	app, err := server.NewApp()
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}
