package main

import (
	"os"

	"study-buddy/backend/internal/app"
)

// @title        Study Buddy API
// @version      1.0
// @description  Tutoring chat backend: sessions, streamed turns, visuals and voice dictation.
// @BasePath     /api
func main() {
	os.Exit(app.Run())
}
