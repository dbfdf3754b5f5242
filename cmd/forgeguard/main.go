// ForgeGuard CLI — contract-driven LLM build engine.
package main

import (
	"github.com/joho/godotenv"
)

func main() {
	// A missing .env is fine; the environment may carry the keys directly.
	_ = godotenv.Load()
	Execute()
}
