package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/Vikiflow-Dev-Design/chat-app-sub001/pkg/config"
	"github.com/Vikiflow-Dev-Design/chat-app-sub001/pkg/llm"
	"github.com/Vikiflow-Dev-Design/chat-app-sub001/pkg/logger"
	"github.com/Vikiflow-Dev-Design/chat-app-sub001/pkg/rag"
)

func main() {
	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	store, err := rag.OpenSQLiteStore(cfg.Store.Path)
	if err != nil {
		fmt.Printf("Error opening store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	sub := os.Args[1]
	args := os.Args[2:]

	switch sub {
	case "ask":
		askCmd(cfg, store, args)
	case "warm":
		warmCmd(cfg, store, args)
	case "invalidate":
		invalidateCmd(cfg, store, args)
	case "seed":
		seedCmd(store, args)
	case "stats":
		statsCmd(cfg, store)
	default:
		fmt.Printf("Unknown command: %s\n", sub)
		help()
		os.Exit(1)
	}
}

func help() {
	fmt.Println("\nchatrag commands")
	fmt.Println()
	fmt.Println("Usage: chatrag <subcommand> [options]")
	fmt.Println()
	fmt.Println("Subcommands:")
	fmt.Println("  ask          Answer a question for a tenant")
	fmt.Println("  warm         Warm a tenant's metadata cache")
	fmt.Println("  invalidate   Discard a tenant's cached metadata")
	fmt.Println("  seed         Load chunk fixtures into the store")
	fmt.Println("  stats        Show metadata cache counters")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  chatrag ask --tenant acme --query \"what does the pro plan cost\" --json")
	fmt.Println("  chatrag seed --tenant acme --file fixtures/chunks.json")
}

func newService(cfg *config.Config, store *rag.SQLiteStore) *rag.Service {
	model, err := llm.NewModel(cfg.Model)
	if err != nil {
		fmt.Printf("Error configuring model: %v\n", err)
		os.Exit(1)
	}
	svc := rag.NewService(store, model, cfg)
	if err := svc.Cache().StartSweeper(cfg.Retrieval.SweepSchedule); err != nil {
		logger.Warn(fmt.Sprintf("cache sweeper disabled: %v", err))
	}
	return svc
}

func askCmd(cfg *config.Config, store *rag.SQLiteStore, args []string) {
	var tenant, query, persona string
	jsonOut := false
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--tenant":
			if i+1 < len(args) {
				tenant = args[i+1]
				i++
			}
		case "--query":
			if i+1 < len(args) {
				query = args[i+1]
				i++
			}
		case "--persona":
			if i+1 < len(args) {
				persona = args[i+1]
				i++
			}
		case "--json":
			jsonOut = true
		}
	}
	if tenant == "" || query == "" {
		fmt.Println("ask requires --tenant and --query")
		os.Exit(1)
	}

	svc := newService(cfg, store)
	resp := svc.ProcessQuery(context.Background(), tenant, query, persona)

	if jsonOut {
		b, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Println(string(b))
		return
	}
	fmt.Println(resp.Answer)
	fmt.Printf("\n(type=%s chunks=%d fallback=%v duration=%dms)\n",
		resp.ResponseType, len(resp.ChunksUsed), resp.FallbackUsed, resp.DurationMs)
}

func warmCmd(cfg *config.Config, store *rag.SQLiteStore, args []string) {
	tenant := flagValue(args, "--tenant")
	if tenant == "" {
		fmt.Println("warm requires --tenant")
		os.Exit(1)
	}
	svc := newService(cfg, store)
	if err := svc.Cache().Warm(context.Background(), tenant); err != nil {
		fmt.Printf("Warm failed: %v\n", err)
		os.Exit(1)
	}
	stats := svc.Cache().Stats()
	fmt.Printf("Cache warmed for %s (entries=%d)\n", tenant, stats.Entries)
}

func invalidateCmd(cfg *config.Config, store *rag.SQLiteStore, args []string) {
	tenant := flagValue(args, "--tenant")
	if tenant == "" {
		fmt.Println("invalidate requires --tenant")
		os.Exit(1)
	}
	svc := newService(cfg, store)
	svc.Cache().Invalidate(tenant)
	fmt.Printf("Cache invalidated for %s\n", tenant)
}

func seedCmd(store *rag.SQLiteStore, args []string) {
	tenant := flagValue(args, "--tenant")
	file := flagValue(args, "--file")
	if tenant == "" || file == "" {
		fmt.Println("seed requires --tenant and --file")
		os.Exit(1)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		fmt.Printf("Error reading %s: %v\n", file, err)
		os.Exit(1)
	}
	var chunks []rag.StoredChunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		fmt.Printf("Error parsing %s: %v\n", file, err)
		os.Exit(1)
	}
	if err := store.SaveChunks(context.Background(), tenant, chunks); err != nil {
		fmt.Printf("Seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Seeded %d chunks for %s. Remember to invalidate any warm caches.\n", len(chunks), tenant)
}

func statsCmd(cfg *config.Config, store *rag.SQLiteStore) {
	svc := newService(cfg, store)
	b, _ := json.MarshalIndent(svc.Cache().Stats(), "", "  ")
	fmt.Println(string(b))
}

func flagValue(args []string, name string) string {
	for i := 0; i < len(args); i++ {
		if args[i] == name && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}
