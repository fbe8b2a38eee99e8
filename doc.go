// Package vlmrun is the Go SDK for the VLM Run API.
//
// # Installation
//
//	go get github.com/vlm-run/vlmrun-golang
//
// # Quick Start
//
// Create a client and extract an invoice:
//
//	package main
//
//	import (
//		"fmt"
//		"log"
//		"os"
//
//		vlmrun "github.com/vlm-run/vlmrun-golang"
//	)
//
//	type Invoice struct {
//		InvoiceID string  `json:"invoice_id" validate:"required"`
//		Total     float64 `json:"total"`
//	}
//
//	func main() {
//		client, err := vlmrun.NewClient(
//			os.Getenv("VLMRUN_API_KEY"),
//			"", // baseURL (optional)
//			0,  // timeout (0 = default 120s)
//			0,  // max attempts (0 = default 5)
//		)
//		if err != nil {
//			log.Fatal(err)
//		}
//		defer client.Close()
//
//		pred, err := client.Document().Generate(vlmrun.GenerateRequest{
//			Input:  vlmrun.InputPath("invoice.pdf"),
//			Domain: "document.invoice",
//		})
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		invoice, err := vlmrun.Cast[Invoice](pred)
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Println(invoice.InvoiceID, invoice.Total)
//	}
//
// # Core Features
//
//   - Image, document, audio and video predictions with typed results
//   - Files, models, datasets, fine-tuning, feedback and hub endpoints
//   - Agents, executions and chat-style completions with artifacts
//   - Automatic retries with exponential backoff, jitter and Retry-After
//   - A single *Error type classified by kind, matched with errors.Is
//   - Lazy pagination with optional filter expressions
//   - Context-aware operations and Go/Await for concurrent calls
//
// # Environment Variables
//
//   - VLMRUN_API_KEY: Your VLM Run API key
//   - VLMRUN_BASE_URL: Optional API base URL (defaults to https://api.vlm.run/v1)
//   - VLMRUN_TIMEOUT: Optional per-attempt timeout in seconds (defaults to 120)
//   - VLMRUN_MAX_ATTEMPTS: Optional attempts per call (defaults to 5)
//   - VLMRUN_CACHE_DIR: Optional cache directory (defaults to ~/.vlmrun/cache)
//
// # Links
//
//   - GitHub: https://github.com/vlm-run/vlmrun-golang
//   - API Docs: https://docs.vlm.run
//   - Website: https://vlm.run
package vlmrun
