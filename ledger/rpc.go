package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

// Node error codes. The -326xx range is the JSON-RPC 2.0 reserved set.
const (
	codeNoSuchDeploy   = -32000
	codeQueryFailed    = -32003
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603

	maxBody = 16 << 20
)

// call performs one JSON-RPC round trip bounded by the per-call timeout and
// returns the raw result.
func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if params == nil {
		params = struct{}{}
	}
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: uuid.NewString(), Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("ledger: %s: encode request: %w", method, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ledger: %s: build request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// Parent cancellation is not retryable; the per-call deadline is.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, transient(method, err, "request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, transient(method, err, "read response")
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &Error{Kind: KindTransient, Op: method, Code: resp.StatusCode, Message: "http " + resp.Status}
	case resp.StatusCode != http.StatusOK:
		return nil, &Error{Kind: KindProtocol, Op: method, Code: resp.StatusCode, Message: "http " + resp.Status}
	}

	var env rpcResponse
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, protocol(method, err, "undecodable response")
	}
	if env.Error != nil {
		return nil, classifyRPCError(method, env.Error)
	}
	if len(env.Result) == 0 || bytes.Equal(env.Result, []byte("null")) {
		return nil, protocol(method, nil, "response has neither result nor error")
	}
	return env.Result, nil
}

// classifyRPCError maps node errors onto the ledger taxonomy. Only the node's
// lookup misses become ErrNotFound: a failed query whose cause is
// ValueNotFound, and an unknown deploy. The node's internal error is
// transient. Everything else, including an unknown method or rejected
// params, is a protocol error.
func classifyRPCError(method string, e *rpcError) error {
	switch e.Code {
	case codeQueryFailed:
		if strings.Contains(string(e.Data), "ValueNotFound") || strings.Contains(e.Message, "ValueNotFound") {
			return fmt.Errorf("%w: %s", ErrNotFound, e.Message)
		}
	case codeNoSuchDeploy:
		if method == methodGetDeploy {
			return fmt.Errorf("%w: %s", ErrNotFound, e.Message)
		}
	case codeInternal:
		return &Error{Kind: KindTransient, Op: method, Code: e.Code, Message: e.Message}
	}
	return &Error{Kind: KindProtocol, Op: method, Code: e.Code, Message: e.Message}
}

