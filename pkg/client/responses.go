package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/anfrage-dev/anfrage/pkg/api"
	"github.com/anfrage-dev/anfrage/pkg/transport"
)

// GetResponseOptions refine a GetResponse call.
type GetResponseOptions struct {
	// Include names extra response fields to return.
	Include []string
}

// GetResponse fetches a stored response by ID.
func (c *Client) GetResponse(ctx context.Context, responseID string, opts *GetResponseOptions) (*api.Response, error) {
	if !api.ValidResponseID(responseID) {
		return nil, &transport.ValidationError{Message: fmt.Sprintf("invalid response ID %q", responseID)}
	}

	query := url.Values{}
	if opts != nil {
		for _, inc := range opts.Include {
			query.Add("include", inc)
		}
	}

	body, err := c.http.Unary(ctx, http.MethodGet, "responses/"+responseID, query, nil)
	if err != nil {
		return nil, err
	}

	var resp api.Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &transport.ProtocolError{Message: fmt.Sprintf("decoding response: %v", err)}
	}
	return &resp, nil
}

// FollowResponseOptions refine a FollowResponse call.
type FollowResponseOptions struct {
	// StartingAfter, when non-negative, skips events up to that
	// sequence number so a reconnecting caller sees no duplicates.
	// Negative means replay the stream from the beginning.
	StartingAfter int

	// IncludeObfuscation asks the server to pad SSE frames with an
	// obfuscation field, defeating packet-size side channels.
	IncludeObfuscation bool
}

// FollowResponse resumes streaming a background response via GET with
// stream=true.
func (c *Client) FollowResponse(ctx context.Context, responseID string, opts *FollowResponseOptions) (*transport.Stream, error) {
	if !api.ValidResponseID(responseID) {
		return nil, &transport.ValidationError{Message: fmt.Sprintf("invalid response ID %q", responseID)}
	}

	query := url.Values{"stream": {"true"}}
	if opts != nil {
		if opts.StartingAfter >= 0 {
			query.Set("starting_after", strconv.Itoa(opts.StartingAfter))
		}
		if opts.IncludeObfuscation {
			query.Set("include_obfuscation", "true")
		}
	}
	return c.http.Watch(ctx, "responses/"+responseID, query)
}

// DeleteResponse removes a stored response.
func (c *Client) DeleteResponse(ctx context.Context, responseID string) (*api.DeletedResponse, error) {
	if !api.ValidResponseID(responseID) {
		return nil, &transport.ValidationError{Message: fmt.Sprintf("invalid response ID %q", responseID)}
	}

	body, err := c.http.Unary(ctx, http.MethodDelete, "responses/"+responseID, nil, nil)
	if err != nil {
		return nil, err
	}

	var deleted api.DeletedResponse
	if err := json.Unmarshal(body, &deleted); err != nil {
		return nil, &transport.ProtocolError{Message: fmt.Sprintf("decoding deletion: %v", err)}
	}
	return &deleted, nil
}

// CancelResponse cancels an in-flight background response. The
// returned response reflects the server's view; the session chain is
// never advanced by a cancelled turn.
func (c *Client) CancelResponse(ctx context.Context, responseID string) (*api.Response, error) {
	if !api.ValidResponseID(responseID) {
		return nil, &transport.ValidationError{Message: fmt.Sprintf("invalid response ID %q", responseID)}
	}

	body, err := c.http.Unary(ctx, http.MethodPost, "responses/"+responseID+"/cancel", nil, nil)
	if err != nil {
		return nil, err
	}

	var resp api.Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &transport.ProtocolError{Message: fmt.Sprintf("decoding cancellation: %v", err)}
	}
	return &resp, nil
}

// ListInputItemsOptions control pagination of ListInputItems.
type ListInputItemsOptions struct {
	// Limit is the page size, clamped to [1, 100]; 0 means 20.
	Limit int

	// Order is "asc" or "desc"; empty means the server default.
	Order string

	// After and Before are item-ID cursors.
	After  string
	Before string
}

// ListInputItems pages through the input items of a stored response.
func (c *Client) ListInputItems(ctx context.Context, responseID string, opts *ListInputItemsOptions) (*api.ResponseInputItemsList, error) {
	if !api.ValidResponseID(responseID) {
		return nil, &transport.ValidationError{Message: fmt.Sprintf("invalid response ID %q", responseID)}
	}

	query := url.Values{}
	if opts != nil {
		limit := opts.Limit
		if limit == 0 {
			limit = 20
		}
		if limit < 1 || limit > 100 {
			return nil, &transport.ValidationError{Message: fmt.Sprintf("limit %d out of range [1, 100]", opts.Limit)}
		}
		query.Set("limit", strconv.Itoa(limit))

		switch opts.Order {
		case "", "asc", "desc":
			if opts.Order != "" {
				query.Set("order", opts.Order)
			}
		default:
			return nil, &transport.ValidationError{Message: fmt.Sprintf("order %q must be asc or desc", opts.Order)}
		}

		if opts.After != "" {
			query.Set("after", opts.After)
		}
		if opts.Before != "" {
			query.Set("before", opts.Before)
		}
	}

	body, err := c.http.Unary(ctx, http.MethodGet, "responses/"+responseID+"/input_items", query, nil)
	if err != nil {
		return nil, err
	}

	var list api.ResponseInputItemsList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, &transport.ProtocolError{Message: fmt.Sprintf("decoding item list: %v", err)}
	}
	return &list, nil
}
