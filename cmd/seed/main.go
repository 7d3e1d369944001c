package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/vortunix/noderegistry/internal/client"
	"github.com/vortunix/noderegistry/internal/model"
)

var owners = []string{
	"Bob", "Ann", "Rizky", "Dewi", "Putra",
	"Sari", "Agus", "Maya", "Tono", "Lina",
}

var statuses = []model.Status{
	model.StatusActive, model.StatusActive, model.StatusActive,
	model.StatusNonactive, model.StatusBanned,
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Registry server URL")
	pings := flag.Int("pings", 30, "Number of random check-ins after seeding")
	file := flag.String("file", "", "Seed from this registry JSON file instead of demo nodes")
	flag.Parse()

	ctx := context.Background()
	c := client.New(*baseURL)

	log.Printf("Seeding registry at %s...\n", *baseURL)

	reg := demoNodes()
	if *file != "" {
		data, err := os.ReadFile(*file)
		if err != nil {
			log.Fatalf("read %s: %v", *file, err)
		}
		reg = nil
		if err := json.Unmarshal(data, &reg); err != nil {
			log.Fatalf("parse %s: %v", *file, err)
		}
	}
	if err := c.Sync(ctx, reg, "seed"); err != nil {
		log.Fatalf("sync: %v", err)
	}
	log.Printf("✓ Seeded %d nodes", len(reg))

	ok := 0
	for i := 0; i < *pings && len(reg) > 0; i++ {
		bot := reg[rand.Intn(len(reg))]
		if _, err := c.Verify(ctx, bot.Token); err != nil {
			log.Printf("✗ Check-in for %s failed: %v", bot.OwnerName, err)
			continue
		}
		ok++
		// async servers commit in the background; give the queue room
		time.Sleep(50 * time.Millisecond)
	}
	log.Printf("✓ Sent %d check-ins", ok)

	stats, err := c.Stats(ctx)
	if err != nil {
		log.Fatalf("stats: %v", err)
	}

	fmt.Println("\n=== Seed Complete ===")
	fmt.Printf("Nodes:     %d\n", stats.Total)
	fmt.Printf("Active:    %d\n", stats.Active)
	fmt.Printf("Banned:    %d\n", stats.Banned)
	fmt.Printf("Nonactive: %d\n", stats.Nonactive)
	fmt.Println("\nTokens:")
	for _, b := range reg {
		fmt.Printf("  %-6s %s\n", b.OwnerName, b.Token)
	}
	fmt.Println("\nView at:", *baseURL+"/dashboard")
}

func demoNodes() model.Registry {
	reg := make(model.Registry, 0, len(owners))
	for i, owner := range owners {
		reg = append(reg, model.Bot{
			Token:     uuid.NewString(),
			OwnerName: owner,
			Number:    model.NewLabel(strconv.Itoa(100 + i)),
			Status:    statuses[rand.Intn(len(statuses))],
			Logs:      []model.LogEntry{},
		})
	}
	return reg
}
