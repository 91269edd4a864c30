// Command psm runs propensity score matching analyses.
//
// Database connections read the environment variables host, user, password and db, which may also be set
// in a .env file in the working directory.
package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
)

func main() {
	// a missing .env is fine, the environment may already be set
	_ = godotenv.Load()

	if e := rootCmd.Execute(); e != nil {
		_, _ = color.New(color.FgRed).Fprintf(os.Stderr, "psm: %v\n", e)
		os.Exit(1)
	}
}
