package integration

import (
	"context"
	"testing"

	"github.com/anfrage-dev/anfrage/pkg/api"
	"github.com/anfrage-dev/anfrage/pkg/client"
)

// TestRateLimitedTurnIsRetried provokes one 429 and verifies the
// client retries with the identical envelope and idempotency key, then
// chains normally on the successful attempt.
func TestRateLimitedTurnIsRetried(t *testing.T) {
	testEnv.Backend.resetCaptures()
	c := newClient(t)
	sess := client.NewSession()

	prompt := &client.Prompt{Items: []api.Item{api.UserMessage("rate limit me")}}
	result, err := c.Respond(context.Background(), sess, prompt, nil)
	if err != nil {
		t.Fatalf("turn failed despite retry budget: %v", err)
	}

	if got := testEnv.Backend.createCount(); got != 2 {
		t.Fatalf("backend saw %d create calls, want 2", got)
	}

	first := testEnv.Backend.create(0)
	second := testEnv.Backend.create(1)
	if first.IdempotencyKey == "" {
		t.Fatal("first attempt carried no idempotency key")
	}
	if first.IdempotencyKey != second.IdempotencyKey {
		t.Errorf("retry changed idempotency key: %q vs %q", first.IdempotencyKey, second.IdempotencyKey)
	}
	if len(first.Request.Input) != len(second.Request.Input) {
		t.Errorf("retry changed the envelope: %d vs %d input items",
			len(first.Request.Input), len(second.Request.Input))
	}

	head, _ := sess.Chain().Snapshot()
	if head != result.Response.ID {
		t.Errorf("chain head = %q, want %q", head, result.Response.ID)
	}
}
