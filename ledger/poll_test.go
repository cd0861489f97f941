package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func v2Result(msg *string) map[string]any {
	return map[string]any{
		"deploy": map[string]any{"hash": "d1"},
		"execution_info": map[string]any{
			"block_hash":       "b1",
			"execution_result": map[string]any{"Version2": map[string]any{"error_message": msg, "consumed": "100"}},
		},
	}
}

func TestAwaitOutcome_Success(t *testing.T) {
	node, srv := newFakeNode(t)
	node.on("info_get_deploy", func(n int, _ json.RawMessage) (any, *rpcError, int) {
		if n < 4 {
			return map[string]any{"deploy": map[string]any{}, "execution_info": nil}, nil, 0
		}
		return v2Result(nil), nil, 0
	})
	c, clock := newTestClient(t, srv)

	out, err := c.AwaitOutcome(context.Background(), PendingHandle{Hash: "d1"}, 30*time.Second, time.Second)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, out.Status)
	assert.Equal(t, 4, node.count("info_get_deploy"))
	assert.Equal(t, 4*time.Second, clock.Slept())
}

func TestAwaitOutcome_ExecutionError(t *testing.T) {
	node, srv := newFakeNode(t)
	msg := "User error: 1"
	node.on("info_get_deploy", func(int, json.RawMessage) (any, *rpcError, int) {
		return v2Result(&msg), nil, 0
	})
	c, _ := newTestClient(t, srv)

	out, err := c.AwaitOutcome(context.Background(), PendingHandle{Hash: "d1"}, 30*time.Second, time.Second)
	require.NoError(t, err)
	assert.Equal(t, OutcomeExecutionError, out.Status)
	assert.Equal(t, "User error: 1", out.Message)
}

func TestAwaitOutcome_TimesOutAfterExactlyBudgetPolls(t *testing.T) {
	node, srv := newFakeNode(t)
	node.on("info_get_deploy", func(int, json.RawMessage) (any, *rpcError, int) {
		return map[string]any{"deploy": map[string]any{}, "execution_info": nil}, nil, 0
	})
	c, clock := newTestClient(t, srv)

	out, err := c.AwaitOutcome(context.Background(), PendingHandle{Hash: "d1"}, 30*time.Second, time.Second)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindTimeout))
	assert.Equal(t, OutcomePending, out.Status)
	assert.Equal(t, 30, node.count("info_get_deploy"))
	assert.Len(t, clock.Sleeps(), 30)
	assert.Equal(t, 30*time.Second, clock.Slept())
}

func TestAwaitOutcome_TransientFailuresConsumePolls(t *testing.T) {
	node, srv := newFakeNode(t)
	node.on("info_get_deploy", func(n int, _ json.RawMessage) (any, *rpcError, int) {
		if n <= 2 {
			return nil, nil, http.StatusInternalServerError
		}
		return v2Result(nil), nil, 0
	})
	c, _ := newTestClient(t, srv)

	out, err := c.AwaitOutcome(context.Background(), PendingHandle{Hash: "d1"}, 3*time.Second, time.Second)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, out.Status)
	assert.Equal(t, 3, node.count("info_get_deploy"))
}

func TestAwaitOutcome_UnknownDeployIsPending(t *testing.T) {
	node, srv := newFakeNode(t)
	node.on("info_get_deploy", func(int, json.RawMessage) (any, *rpcError, int) {
		return nil, &rpcError{Code: -32000, Message: "No such deploy"}, 0
	})
	c, _ := newTestClient(t, srv)

	_, err := c.AwaitOutcome(context.Background(), PendingHandle{Hash: "d1"}, 5*time.Second, time.Second)
	assert.True(t, IsKind(err, KindTimeout))
	assert.Equal(t, 5, node.count("info_get_deploy"))
}

func TestAwaitOutcome_ProtocolErrorAborts(t *testing.T) {
	node, srv := newFakeNode(t)
	node.on("info_get_deploy", func(int, json.RawMessage) (any, *rpcError, int) {
		return nil, &rpcError{Code: -32602, Message: "Invalid params"}, 0
	})
	c, _ := newTestClient(t, srv)

	_, err := c.AwaitOutcome(context.Background(), PendingHandle{Hash: "d1"}, 30*time.Second, time.Second)
	assert.True(t, IsKind(err, KindProtocol))
	assert.Equal(t, 1, node.count("info_get_deploy"))
}

func TestPollBudget(t *testing.T) {
	assert.Equal(t, 30, PollBudget(30*time.Second, time.Second))
	assert.Equal(t, 1, PollBudget(500*time.Millisecond, time.Second))
	assert.Equal(t, 1, PollBudget(time.Second, 0))
	assert.Equal(t, 2, PollBudget(2500*time.Millisecond, time.Second))
}

func TestParseDeployInfo_Version1(t *testing.T) {
	out, err := parseDeployInfo("op", json.RawMessage(`{"execution_results":[{"block_hash":"b","result":{"Failure":{"error_message":"Out of gas"}}}]}`))
	require.NoError(t, err)
	assert.Equal(t, OutcomeExecutionError, out.Status)
	assert.Equal(t, "Out of gas", out.Message)

	out, err = parseDeployInfo("op", json.RawMessage(`{"execution_results":[{"result":{"Success":{"cost":"1"}}}]}`))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, out.Status)

	out, err = parseDeployInfo("op", json.RawMessage(`{"execution_info":{"execution_result":{"Version1":{"Success":{}}}}}`))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, out.Status)

	out, err = parseDeployInfo("op", json.RawMessage(`{"execution_results":[]}`))
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, out.Status)

	_, err = parseDeployInfo("op", json.RawMessage(`{"execution_results":[{"result":{}}]}`))
	assert.True(t, IsKind(err, KindProtocol))
}

func TestSystemClock_SleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := SystemClock{}.Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}
