// order-preview interprets a free-form order message against the merchant
// catalog and prints the resulting preview invoice as JSON. Nothing is
// persisted.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"strings"

	"github.com/adiwendra/fakturo/internal/intake"
	"github.com/adiwendra/fakturo/internal/merchant"
	"github.com/adiwendra/fakturo/internal/pipeline"
	"github.com/adiwendra/fakturo/internal/store"
)

func main() {
	dbPath := flag.String("db", "fakturo.db", "SQLite database path")
	messagePath := flag.String("message", "-", "order message file, or - for stdin")
	profilePath := flag.String("profile", "", "business profile JSON file")
	offline := flag.Bool("offline", false, "skip the completion collaborator and use the deterministic fallback")
	flag.Parse()

	message, err := readMessage(*messagePath)
	if err != nil {
		log.Fatalf("read message: %v", err)
	}

	st, err := store.Open(*dbPath)
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	var caller intake.LLMCaller
	if *offline {
		caller = offlineCaller{}
	} else {
		caller, err = intake.NewAnthropicCallerFromEnv()
		if err != nil {
			log.Fatal(err)
		}
	}

	svc := pipeline.NewService(st, caller, loadProfile(*profilePath))
	preview, err := svc.Preview(context.Background(), intake.InterpretRequest{Message: message})
	if err != nil {
		log.Fatal(err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(preview); err != nil {
		log.Fatal(err)
	}
}

func readMessage(path string) (string, error) {
	var blob []byte
	var err error
	if path == "-" {
		blob, err = io.ReadAll(os.Stdin)
	} else {
		blob, err = os.ReadFile(path)
	}
	if err != nil {
		return "", err
	}
	msg := strings.TrimSpace(string(blob))
	if msg == "" {
		return "", errors.New("empty order message")
	}
	return msg, nil
}

func loadProfile(path string) merchant.BusinessProfile {
	profile := merchant.BusinessProfile{Name: "My Shop", Currency: "IDR"}
	if path == "" {
		return profile
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read profile: %v", err)
	}
	if err := json.Unmarshal(blob, &profile); err != nil {
		log.Fatalf("parse profile: %v", err)
	}
	return profile
}

// offlineCaller forces the interpreter onto its deterministic fallback path.
type offlineCaller struct{}

func (offlineCaller) GenerateJSON(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return "", errors.New("offline mode: completion collaborator disabled")
}

func (offlineCaller) ModelName() string { return "offline" }
