// Command demo runs two chained turns against a Responses API endpoint
// and prints the streamed output. Pair it with cmd/mock-backend for a
// self-contained run:
//
//	MOCK_PORT=9090 ./mock-backend &
//	ANFRAGE_BASE_URL=http://localhost:9090/v1 ./demo
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/anfrage-dev/anfrage/pkg/api"
	"github.com/anfrage-dev/anfrage/pkg/client"
	"github.com/anfrage-dev/anfrage/pkg/config"
	"github.com/anfrage-dev/anfrage/pkg/history"
	"github.com/anfrage-dev/anfrage/pkg/history/memory"
	"github.com/anfrage-dev/anfrage/pkg/history/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "demo failed: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	var store history.Store
	switch cfg.History.Type {
	case "memory":
		store = memory.New(cfg.History.MaxSize, cfg.History.TTL)
	case "postgres":
		pg, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.History.Postgres.DSN,
			MaxConns:       cfg.History.Postgres.MaxConns,
			MigrateOnStart: cfg.History.Postgres.MigrateOnStart,
		})
		if err != nil {
			return fmt.Errorf("connecting history store: %w", err)
		}
		store = pg
	}

	model := cfg.Model
	if model == "" {
		model = "mock-model"
	}

	c, err := client.New(client.Options{
		Provider:    cfg.BuildProvider(),
		Credentials: cfg.BuildCredentials(),
		Model:       model,
		History:     store,
	})
	if err != nil {
		return err
	}
	defer c.Close()

	sess := client.NewSession()
	fmt.Printf("session %s against %s\n\n", sess.ID, cfg.Provider.BaseURL)

	turns := []string{
		"Count from 1 to 5.",
		"Now say hello.",
	}

	prompt := &client.Prompt{}
	for i, text := range turns {
		prompt.Items = append(prompt.Items, api.UserMessage(text))

		fmt.Printf("[turn %d] > %s\n", i+1, text)
		result, err := c.Respond(ctx, sess, prompt, func(ev api.StreamEvent) {
			if ev.Type == api.EventOutputTextDelta {
				fmt.Print(ev.Delta)
			}
		})
		if err != nil {
			return fmt.Errorf("turn %d: %w", i+1, err)
		}
		fmt.Println()

		lastID, acknowledged := sess.Chain().Snapshot()
		fmt.Printf("[turn %d] response=%s status=%s chain_head=%s acknowledged=%d\n\n",
			i+1, result.Response.ID, result.Response.Status, lastID, acknowledged)

		// Fold the model output into the next turn's input.
		prompt.Items = append(prompt.Items, result.Response.Output...)
	}

	return nil
}
