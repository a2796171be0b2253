// Command mock-backend runs a deterministic Responses API server for
// client conformance testing. It echoes predictable completions,
// supports server-side chaining via previous_response_id, and can be
// provoked into rate-limit responses for retry testing.
//
// Configuration:
//
//	MOCK_PORT - Listen port (default: 9090)
//
// Provocations, keyed on the last input message text:
//
//	"count from 1 to 5"  - streams the numbers as separate deltas
//	"call a tool"        - responds with a function call item
//	"rate limit me"      - one 429 with Retry-After before succeeding
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/anfrage-dev/anfrage/pkg/api"
)

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}

	backend := newBackend()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/responses", backend.handleCreate)
	mux.HandleFunc("GET /v1/responses/{id}", backend.handleGet)
	mux.HandleFunc("DELETE /v1/responses/{id}", backend.handleDelete)
	mux.HandleFunc("POST /v1/responses/{id}/cancel", backend.handleCancel)
	mux.HandleFunc("GET /v1/responses/{id}/input_items", backend.handleInputItems)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	srv := &http.Server{Addr: ":" + port, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock backend starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock backend failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock backend shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

// storedResponse keeps a completed response alongside the input that
// produced it, so chained turns and input_items listings work.
type storedResponse struct {
	response api.Response
	input    []api.Item
}

type backend struct {
	mu        sync.Mutex
	responses map[string]*storedResponse
	seq       atomic.Int64
	throttled atomic.Bool
}

func newBackend() *backend {
	return &backend{responses: make(map[string]*storedResponse)}
}

func (b *backend) nextID() string {
	return fmt.Sprintf("resp-mock-%d", b.seq.Add(1))
}

func (b *backend) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req api.CreateResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, api.ErrorTypeInvalidRequest, "invalid request body")
		return
	}

	// Resolve the chain: prior input plus this request's items.
	var history []api.Item
	if req.PreviousResponseID != "" {
		b.mu.Lock()
		prev, ok := b.responses[req.PreviousResponseID]
		b.mu.Unlock()
		if !ok {
			writeAPIError(w, http.StatusBadRequest, api.ErrorTypeInvalidRequest,
				fmt.Sprintf("previous response %s not found", req.PreviousResponseID))
			return
		}
		history = append(history, prev.input...)
		history = append(history, prev.response.Output...)
	}
	history = append(history, req.Input...)

	lastText := lastUserText(req.Input)

	// One 429 per provocation, then success on retry.
	if strings.Contains(strings.ToLower(lastText), "rate limit me") {
		if b.throttled.CompareAndSwap(false, true) {
			w.Header().Set("Retry-After", "1")
			writeAPIError(w, http.StatusTooManyRequests, api.ErrorTypeTooManyRequests, "rate limited, retry in 1s")
			return
		}
		b.throttled.Store(false)
	}

	resp := b.buildResponse(&req, lastText)

	b.mu.Lock()
	b.responses[resp.ID] = &storedResponse{response: resp, input: history}
	b.mu.Unlock()

	if req.Stream {
		b.streamResponse(w, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (b *backend) buildResponse(req *api.CreateResponseRequest, lastText string) api.Response {
	id := b.nextID()
	model := req.Model
	if model == "" {
		model = "mock-model"
	}

	var output []api.Item
	switch {
	case strings.Contains(strings.ToLower(lastText), "call a tool"):
		output = []api.Item{{
			ID:   "item-" + id,
			Type: api.ItemTypeFunctionCall,
			FunctionCall: &api.FunctionCallData{
				Name:      "get_weather",
				CallID:    "call-" + id,
				Arguments: `{"location":"Berlin"}`,
			},
		}}
	case strings.Contains(strings.ToLower(lastText), "count from 1 to 5"):
		output = []api.Item{assistantText("item-"+id, "1, 2, 3, 4, 5")}
	default:
		output = []api.Item{assistantText("item-"+id, "Hello, nice day!")}
	}

	return api.Response{
		ID:        id,
		Object:    "response",
		CreatedAt: time.Now().Unix(),
		Status:    api.ResponseStatusCompleted,
		Model:     model,
		Output:    output,
		Usage: &api.Usage{
			InputTokens:  10,
			OutputTokens: 5,
			TotalTokens:  15,
		},
		PreviousResponseID: req.PreviousResponseID,
	}
}

func assistantText(id, text string) api.Item {
	return api.Item{
		ID:   id,
		Type: api.ItemTypeMessage,
		Message: &api.MessageData{
			Role:   api.RoleAssistant,
			Output: []api.OutputContentPart{{Type: "output_text", Text: text}},
		},
	}
}

// streamResponse replays the completed response as a Responses SSE
// stream: created, one delta per token, output_item.done, completed.
func (b *backend) streamResponse(w http.ResponseWriter, resp api.Response) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	seq := 0
	emit := func(ev api.StreamEvent) {
		ev.SequenceNumber = seq
		seq++
		data, _ := json.Marshal(ev)
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	inProgress := resp
	inProgress.Status = api.ResponseStatusInProgress
	inProgress.Output = nil
	inProgress.Usage = nil
	emit(api.StreamEvent{Type: api.EventResponseCreated, Response: &inProgress})
	emit(api.StreamEvent{Type: api.EventResponseInProgress, Response: &inProgress})

	for i := range resp.Output {
		item := resp.Output[i]
		emit(api.StreamEvent{Type: api.EventOutputItemAdded, Item: &item, OutputIndex: i})
		switch item.Type {
		case api.ItemTypeMessage:
			for _, token := range tokenize(item.Message.Output[0].Text) {
				emit(api.StreamEvent{
					Type:   api.EventOutputTextDelta,
					ItemID: item.ID,
					Delta:  token,
				})
			}
			emit(api.StreamEvent{
				Type:   api.EventOutputTextDone,
				ItemID: item.ID,
				Text:   item.Message.Output[0].Text,
			})
		case api.ItemTypeFunctionCall:
			emit(api.StreamEvent{
				Type:   api.EventFunctionCallArgsDelta,
				ItemID: item.ID,
				CallID: item.FunctionCall.CallID,
				Name:   item.FunctionCall.Name,
				Delta:  item.FunctionCall.Arguments,
			})
			emit(api.StreamEvent{
				Type:      api.EventFunctionCallArgsDone,
				ItemID:    item.ID,
				CallID:    item.FunctionCall.CallID,
				Name:      item.FunctionCall.Name,
				Arguments: item.FunctionCall.Arguments,
			})
		}
		emit(api.StreamEvent{Type: api.EventOutputItemDone, Item: &item, OutputIndex: i})
	}

	emit(api.StreamEvent{Type: api.EventResponseCompleted, Response: &resp})
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// tokenize splits text into word-sized streaming deltas.
func tokenize(text string) []string {
	words := strings.SplitAfter(text, " ")
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}

func lastUserText(items []api.Item) string {
	for i := len(items) - 1; i >= 0; i-- {
		item := items[i]
		if item.Type != api.ItemTypeMessage || item.Message == nil || item.Message.Role != api.RoleUser {
			continue
		}
		for _, part := range item.Message.Content {
			if part.Text != "" {
				return part.Text
			}
		}
	}
	return ""
}

func (b *backend) lookup(w http.ResponseWriter, r *http.Request) (*storedResponse, string, bool) {
	id := r.PathValue("id")
	b.mu.Lock()
	stored, ok := b.responses[id]
	b.mu.Unlock()
	if !ok {
		writeAPIError(w, http.StatusNotFound, api.ErrorTypeNotFound,
			fmt.Sprintf("response %s not found", id))
		return nil, id, false
	}
	return stored, id, true
}

func (b *backend) handleGet(w http.ResponseWriter, r *http.Request) {
	stored, _, ok := b.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, stored.response)
}

func (b *backend) handleDelete(w http.ResponseWriter, r *http.Request) {
	_, id, ok := b.lookup(w, r)
	if !ok {
		return
	}
	b.mu.Lock()
	delete(b.responses, id)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, api.DeletedResponse{
		ID:      id,
		Object:  "response",
		Deleted: true,
	})
}

func (b *backend) handleCancel(w http.ResponseWriter, r *http.Request) {
	stored, _, ok := b.lookup(w, r)
	if !ok {
		return
	}
	// Completed responses stay completed; cancel is a no-op then.
	writeJSON(w, http.StatusOK, stored.response)
}

func (b *backend) handleInputItems(w http.ResponseWriter, r *http.Request) {
	stored, _, ok := b.lookup(w, r)
	if !ok {
		return
	}

	items := stored.input
	if r.URL.Query().Get("order") == "desc" {
		reversed := make([]api.Item, len(items))
		for i, item := range items {
			reversed[len(items)-1-i] = item
		}
		items = reversed
	}

	list := api.ResponseInputItemsList{
		Object: "list",
		Data:   items,
	}
	if len(items) > 0 {
		list.FirstID = items[0].ID
		list.LastID = items[len(items)-1].ID
	}
	writeJSON(w, http.StatusOK, list)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int, errType api.ErrorType, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": api.APIError{Type: errType, Message: msg},
	})
}
