package postgres

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/anfrage-dev/anfrage/pkg/api"
	"github.com/anfrage-dev/anfrage/pkg/history"
)

func init() {
	// Configure testcontainers to use podman.
	// Detect the podman socket from `podman machine inspect`.
	if os.Getenv("DOCKER_HOST") == "" {
		out, err := exec.Command("podman", "machine", "inspect", "--format", "{{.ConnectionInfo.PodmanSocket.Path}}").Output()
		if err == nil {
			sock := strings.TrimSpace(string(out))
			if sock != "" {
				os.Setenv("DOCKER_HOST", "unix://"+sock)
			}
		}
	}
	// Ryuk needs privileged mode with podman.
	if os.Getenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED", "true")
	}
}

// setupTestDB starts a PostgreSQL container and returns a connected
// Store. Tests are skipped if no container runtime is available.
func setupTestDB(t *testing.T) *Store {
	t.Helper()

	if os.Getenv("SKIP_INTEGRATION") == "true" {
		t.Skip("SKIP_INTEGRATION=true, skipping PostgreSQL integration tests")
	}
	if _, err := exec.LookPath("podman"); err != nil {
		t.Skip("podman not found, skipping integration tests")
	}

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("anfrage_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skipf("skipping: could not start PostgreSQL container (is podman running?): %v", err)
	}
	t.Cleanup(func() {
		container.Terminate(context.Background())
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}

	store, err := New(ctx, Config{
		DSN:            connStr,
		MigrateOnStart: true,
	})
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func TestAppendLoadRoundTrip(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	turn1 := []api.Item{api.UserMessage("first question")}
	if err := store.Append(ctx, "sess-1", turn1); err != nil {
		t.Fatalf("Append turn 1: %v", err)
	}
	turn2 := []api.Item{
		api.FunctionOutput("call-1", "tool result"),
		api.UserMessage("follow-up"),
	}
	if err := store.Append(ctx, "sess-1", turn2); err != nil {
		t.Fatalf("Append turn 2: %v", err)
	}

	items, err := store.Load(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}
	wantTypes := []api.ItemType{
		api.ItemTypeMessage,
		api.ItemTypeFunctionCallOutput,
		api.ItemTypeMessage,
	}
	for i, want := range wantTypes {
		if items[i].Type != want {
			t.Errorf("item %d type = %s, want %s", i, items[i].Type, want)
		}
	}
	if items[1].FunctionCallOutput.CallID != "call-1" {
		t.Errorf("call ID = %q", items[1].FunctionCallOutput.CallID)
	}
}

func TestLoadUnknownSession(t *testing.T) {
	store := setupTestDB(t)

	_, err := store.Load(context.Background(), "never-seen")
	if !errors.Is(err, history.ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestResetDiscardsSession(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	store.Append(ctx, "sess-1", []api.Item{api.UserMessage("hello")})
	store.Append(ctx, "sess-2", []api.Item{api.UserMessage("other")})

	if err := store.Reset(ctx, "sess-1"); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	if _, err := store.Load(ctx, "sess-1"); !errors.Is(err, history.ErrSessionNotFound) {
		t.Errorf("err after reset = %v, want ErrSessionNotFound", err)
	}
	if _, err := store.Load(ctx, "sess-2"); err != nil {
		t.Errorf("unrelated session lost: %v", err)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	store.Append(ctx, "a", []api.Item{api.UserMessage("for a")})
	store.Append(ctx, "b", []api.Item{api.UserMessage("for b")})

	items, err := store.Load(ctx, "a")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(items) != 1 || items[0].Message.Content[0].Text != "for a" {
		t.Errorf("session a items = %+v", items)
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	store := setupTestDB(t)

	// Running migrations again must not fail or duplicate schema.
	if err := store.migrate(context.Background()); err != nil {
		t.Fatalf("re-running migrations: %v", err)
	}
	if err := store.HealthCheck(context.Background()); err != nil {
		t.Errorf("health check: %v", err)
	}
}
