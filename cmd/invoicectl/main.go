// invoicectl drives the invoice lifecycle from the command line:
//
//	invoicectl -db fakturo.db -draft draft.json confirm
//	invoicectl -db fakturo.db downpayment <invoice-id>
//	invoicectl -db fakturo.db finalpayment <invoice-id>
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/adiwendra/fakturo/internal/intake"
	"github.com/adiwendra/fakturo/internal/merchant"
	"github.com/adiwendra/fakturo/internal/pipeline"
	"github.com/adiwendra/fakturo/internal/store"
)

func main() {
	dbPath := flag.String("db", "fakturo.db", "SQLite database path")
	profilePath := flag.String("profile", "", "business profile JSON file")
	draftPath := flag.String("draft", "", "extracted-order JSON file (confirm only)")
	otlpEndpoint := flag.String("otlp-endpoint", "", "OTLP/HTTP trace collector endpoint (optional)")
	flag.Parse()

	if flag.NArg() < 1 {
		log.Fatal("usage: invoicectl [flags] confirm|downpayment|finalpayment [invoice-id]")
	}
	verb := flag.Arg(0)

	ctx := context.Background()
	if *otlpEndpoint != "" {
		shutdown, err := setupTracing(ctx, *otlpEndpoint)
		if err != nil {
			log.Fatalf("tracing setup: %v", err)
		}
		defer func() {
			if err := shutdown(ctx); err != nil {
				log.Printf("invoicectl trace_shutdown_failed err=%q", err.Error())
			}
		}()
	}

	st, err := store.Open(*dbPath)
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	svc := pipeline.NewService(st, noCaller{}, loadProfile(*profilePath))

	var result any
	switch verb {
	case "confirm":
		if *draftPath == "" {
			log.Fatal("confirm requires -draft")
		}
		draft, err := loadDraft(*draftPath)
		if err != nil {
			log.Fatal(err)
		}
		result, err = svc.Confirm(ctx, draft)
		if err != nil {
			log.Fatal(err)
		}
	case "downpayment":
		result, err = svc.ConfirmDownPayment(ctx, requireID())
		if err != nil {
			log.Fatal(err)
		}
	case "finalpayment":
		result, err = svc.ConfirmFinalPayment(ctx, requireID())
		if err != nil {
			log.Fatal(err)
		}
	default:
		log.Fatalf("unknown verb %q", verb)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.Fatal(err)
	}
}

func requireID() string {
	if flag.NArg() < 2 {
		log.Fatal("missing invoice id argument")
	}
	return flag.Arg(1)
}

func loadDraft(path string) (*intake.ExtractedOrder, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read draft: %w", err)
	}
	var draft intake.ExtractedOrder
	if err := json.Unmarshal(blob, &draft); err != nil {
		return nil, fmt.Errorf("parse draft: %w", err)
	}
	return &draft, nil
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

func setupTracing(ctx context.Context, endpoint string) (func(context.Context) error, error) {
	exp, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}
	res, err := resource.Merge(resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName("fakturo")))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// noCaller guards the lifecycle verbs, which never invoke the completion
// collaborator.
type noCaller struct{}

func (noCaller) GenerateJSON(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return "", errors.New("invoicectl does not interpret messages; use order-preview")
}

func (noCaller) ModelName() string { return "none" }
