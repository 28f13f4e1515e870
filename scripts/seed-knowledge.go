//go:build ignore

// Seeds the knowledge base through the admin API.
//
// Usage:
//
//	ADMIN_JWT=<token> go run scripts/seed-knowledge.go testdata/knowledge.json
//
// The input file is a JSON object mapping keys to answer text:
//
//	{"horario": "Lunes a viernes de 9:00 a 18:00", "precio": "..."}
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run scripts/seed-knowledge.go <knowledge-file.json>")
		os.Exit(1)
	}

	apiURL := os.Getenv("API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}
	token := os.Getenv("ADMIN_JWT")

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Printf("error reading file: %v\n", err)
		os.Exit(1)
	}

	var entries map[string]string
	if err := json.Unmarshal(data, &entries); err != nil {
		fmt.Printf("error parsing JSON: %v\n", err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	seeded := 0
	for key, value := range entries {
		body, _ := json.Marshal(map[string]string{"key": key, "value": value})
		req, err := http.NewRequest(http.MethodPut, apiURL+"/admin/knowledge", bytes.NewReader(body))
		if err != nil {
			fmt.Printf("error building request for %q: %v\n", key, err)
			os.Exit(1)
		}
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := client.Do(req)
		if err != nil {
			fmt.Printf("error seeding %q: %v\n", key, err)
			os.Exit(1)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			fmt.Printf("error seeding %q: status %d\n", key, resp.StatusCode)
			os.Exit(1)
		}
		seeded++
		fmt.Printf("seeded %q\n", key)
	}

	fmt.Printf("done: %d entries\n", seeded)
}
