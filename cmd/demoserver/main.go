// Command demoserver starts an in-memory stand-in for the GitHub REST API so
// sitedrop can deploy locally without touching a real account.
// Usage: go run ./cmd/demoserver [port]
// Default port: 9999
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/raysh454/sitedrop/internal/demoserver"
)

func main() {
	cfg := demoserver.DefaultConfig()

	// Optional: custom port from command line
	if len(os.Args) > 1 {
		port, err := strconv.Atoi(os.Args[1])
		if err != nil || port < 1 || port > 65535 {
			log.Fatalf("Invalid port: %s", os.Args[1])
		}
		cfg.Port = port
	}
	if owner := os.Getenv("DEMO_OWNER"); owner != "" {
		cfg.Owner = owner
	}
	cfg.Token = os.Getenv("DEMO_TOKEN")
	cfg.RequireRootIndex = os.Getenv("DEMO_REQUIRE_INDEX") == "true"

	fmt.Println("===========================================")
	fmt.Println("   Sitedrop Demo Provider")
	fmt.Println("===========================================")
	fmt.Println()
	fmt.Println("Point sitedrop at this server to deploy without a GitHub account:")
	fmt.Printf("  GITHUB_API_URL=http://localhost:%d/ GITHUB_USERNAME=%s GITHUB_TOKEN=<any> sitedrop serve\n", cfg.Port, cfg.Owner)
	fmt.Println()
	fmt.Println("Endpoints emulated:")
	fmt.Println("  - POST /user/repos")
	fmt.Println("  - GET/POST/PUT /repos/{owner}/{repo}/pages")
	fmt.Println("  - GET/PUT /repos/{owner}/{repo}/contents/{path}")
	fmt.Println("Published files are browsable under /sites/{owner}/{repo}/")
	fmt.Println()

	server := demoserver.NewDemoServer(cfg)
	if err := server.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
