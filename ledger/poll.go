package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const methodGetDeploy = "info_get_deploy"

type executionV1 struct {
	Success json.RawMessage `json:"Success"`
	Failure *struct {
		ErrorMessage string `json:"error_message"`
	} `json:"Failure"`
}

type deployInfo struct {
	ExecutionInfo *struct {
		ExecutionResult *struct {
			Version2 *struct {
				ErrorMessage *string `json:"error_message"`
			} `json:"Version2"`
			Version1 *executionV1 `json:"Version1"`
		} `json:"execution_result"`
	} `json:"execution_info"`
	ExecutionResults []struct {
		Result executionV1 `json:"result"`
	} `json:"execution_results"`
}

func (v executionV1) outcome(op string) (Outcome, error) {
	switch {
	case v.Failure != nil:
		return Outcome{Status: OutcomeExecutionError, Message: v.Failure.ErrorMessage}, nil
	case len(v.Success) > 0:
		return Outcome{Status: OutcomeSuccess}, nil
	default:
		return Outcome{}, protocol(op, nil, "execution result is neither Success nor Failure")
	}
}

func parseDeployInfo(op string, raw json.RawMessage) (Outcome, error) {
	var info deployInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return Outcome{}, protocol(op, err, "undecodable result")
	}
	var out Outcome
	var err error
	switch {
	case info.ExecutionInfo != nil && info.ExecutionInfo.ExecutionResult != nil:
		res := info.ExecutionInfo.ExecutionResult
		switch {
		case res.Version2 != nil:
			if msg := res.Version2.ErrorMessage; msg == nil || *msg == "" || *msg == "null" {
				out = Outcome{Status: OutcomeSuccess}
			} else {
				out = Outcome{Status: OutcomeExecutionError, Message: *res.Version2.ErrorMessage}
			}
		case res.Version1 != nil:
			out, err = res.Version1.outcome(op)
		default:
			err = protocol(op, nil, "unknown execution_result version")
		}
	case len(info.ExecutionResults) > 0:
		out, err = info.ExecutionResults[0].Result.outcome(op)
	default:
		out = Outcome{Status: OutcomePending}
	}
	if err != nil {
		return Outcome{}, err
	}
	out.Raw = raw
	return out, nil
}

// Status polls once for a deploy's outcome. A deploy the node does not know
// yet is pending.
func (c *Client) Status(ctx context.Context, h PendingHandle) (Outcome, error) {
	raw, err := c.call(ctx, methodGetDeploy, map[string]any{"deploy_hash": h.Hash, "finalized_approvals": false})
	if err != nil {
		if IsNotFound(err) {
			return Outcome{Status: OutcomePending}, nil
		}
		return Outcome{}, err
	}
	return parseDeployInfo(methodGetDeploy, raw)
}

// PollBudget is the number of polls AwaitOutcome makes for the given policy.
func PollBudget(timeout, interval time.Duration) int {
	if interval <= 0 {
		return 1
	}
	n := int(timeout / interval)
	if n < 1 {
		n = 1
	}
	return n
}

// AwaitOutcome sleeps interval and polls, up to timeout/interval times. A
// transient poll failure uses up its poll. When the budget runs out the
// returned error has KindTimeout and the action's outcome is unconfirmed.
func (c *Client) AwaitOutcome(ctx context.Context, h PendingHandle, timeout, interval time.Duration) (Outcome, error) {
	budget := PollBudget(timeout, interval)
	log := c.log.WithField("deploy", h.Hash)
	var lastErr error
	for poll := 1; poll <= budget; poll++ {
		if err := c.clock.Sleep(ctx, interval); err != nil {
			return Outcome{}, err
		}
		out, err := c.Status(ctx, h)
		if err != nil {
			if ctx.Err() != nil {
				return Outcome{}, ctx.Err()
			}
			if !IsKind(err, KindTransient) {
				return Outcome{}, err
			}
			lastErr = err
			log.WithField("poll", poll).Warnf("poll failed: %v", err)
			continue
		}
		if out.Done() {
			log.WithFields(map[string]interface{}{"poll": poll, "status": string(out.Status)}).Info("deploy executed")
			return out, nil
		}
		log.WithField("poll", poll).Debug("deploy pending")
	}
	return Outcome{Status: OutcomePending}, &Error{
		Kind:    KindTimeout,
		Op:      "await " + h.Hash,
		Message: fmt.Sprintf("no outcome after %d polls at %s", budget, interval),
		Cause:   lastErr,
	}
}
