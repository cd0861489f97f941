package lifecycle

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"xdao.co/credledger/journal"
	"xdao.co/credledger/keyderive"
	"xdao.co/credledger/ledger"
)

var testSeed = keyderive.MustParseSeed(keyderive.TestLocator)

// deployBehavior scripts how the node executes deploys for one entry point.
type deployBehavior struct {
	// pendingPolls is how many polls report pending before the outcome; -1 never executes.
	pendingPolls int
	errorMessage string
	onExecuted   func(n *chainNode)
}

// chainNode is an in-memory JSON-RPC node holding dictionary values by address.
type chainNode struct {
	t         *testing.T
	mu        sync.Mutex
	values    map[string]map[string]any
	behaviors map[string]deployBehavior
	deploys   map[string]string // hash -> entry point
	polls     map[string]int
	reads     int
	submits   int

	// unsupported methods are answered with -32601.
	unsupported map[string]bool
}

func newChainNode(t *testing.T) (*chainNode, *httptest.Server) {
	n := &chainNode{
		t:         t,
		values:    map[string]map[string]any{},
		behaviors: map[string]deployBehavior{},
		deploys:   map[string]string{},
		polls:     map[string]int{},

		unsupported: map[string]bool{},
	}
	srv := httptest.NewServer(http.HandlerFunc(n.serve))
	t.Cleanup(srv.Close)
	return n, srv
}

func (n *chainNode) set(field, item string, v map[string]any) {
	addr, err := keyderive.Derive(testSeed, field, item)
	require.NoError(n.t, err)
	n.mu.Lock()
	defer n.mu.Unlock()
	n.values[addr.String()] = v
}

func (n *chainNode) setLocked(field, item string, v map[string]any) {
	addr, _ := keyderive.Derive(testSeed, field, item)
	n.values[addr.String()] = v
}

func (n *chainNode) behave(entryPoint string, b deployBehavior) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.behaviors[entryPoint] = b
}

func (n *chainNode) pollsFor(hash string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.polls[hash]
}

func (n *chainNode) counts() (reads, submits int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.reads, n.submits
}

func (n *chainNode) serve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     string          `json:"id"`
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n.mu.Lock()
	result, rpcErr := n.handle(req.Method, req.Params)
	n.mu.Unlock()

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func rpcErr(code int, msg string) map[string]any { return map[string]any{"code": code, "message": msg} }

func (n *chainNode) handle(method string, params json.RawMessage) (any, map[string]any) {
	if n.unsupported[method] {
		return nil, rpcErr(-32601, "Method not found")
	}
	switch method {
	case "chain_get_state_root_hash":
		return map[string]string{"state_root_hash": "root-1"}, nil
	case "state_get_dictionary_item":
		n.reads++
		var p struct {
			Ident struct {
				Dictionary string `json:"Dictionary"`
			} `json:"dictionary_identifier"`
		}
		_ = json.Unmarshal(params, &p)
		v, ok := n.values[p.Ident.Dictionary]
		if !ok {
			return nil, map[string]any{"code": -32003, "message": "Query failed", "data": "ValueNotFound"}
		}
		return map[string]any{"dictionary_key": p.Ident.Dictionary, "stored_value": map[string]any{"CLValue": v}}, nil
	case "account_put_deploy":
		n.submits++
		var p struct {
			Deploy struct {
				Hash       string `json:"hash"`
				EntryPoint string `json:"entry_point"`
			} `json:"deploy"`
		}
		_ = json.Unmarshal(params, &p)
		n.deploys[p.Deploy.Hash] = p.Deploy.EntryPoint
		return map[string]string{"deploy_hash": p.Deploy.Hash}, nil
	case "info_get_deploy":
		var p struct {
			Hash string `json:"deploy_hash"`
		}
		_ = json.Unmarshal(params, &p)
		ep, ok := n.deploys[p.Hash]
		if !ok {
			return nil, rpcErr(-32000, "No such deploy")
		}
		n.polls[p.Hash]++
		b := n.behaviors[ep]
		if b.pendingPolls < 0 || n.polls[p.Hash] <= b.pendingPolls {
			return map[string]any{"deploy": map[string]any{"hash": p.Hash}, "execution_info": nil}, nil
		}
		if n.polls[p.Hash] == b.pendingPolls+1 && b.onExecuted != nil {
			b.onExecuted(n)
		}
		var msg any
		if b.errorMessage != "" {
			msg = b.errorMessage
		}
		return map[string]any{
			"deploy":         map[string]any{"hash": p.Hash},
			"execution_info": map[string]any{"execution_result": map[string]any{"Version2": map[string]any{"error_message": msg}}},
		}, nil
	}
	return nil, rpcErr(-32601, "Method not found")
}

func keyCL(tag byte, fill byte) map[string]any {
	return map[string]any{"cl_type": "Key", "bytes": fmt.Sprintf("%02x", tag) + strings.Repeat(fmt.Sprintf("%02x", fill), 32)}
}

func u8CL(v uint8) map[string]any { return map[string]any{"cl_type": "U8", "bytes": fmt.Sprintf("%02x", v)} }

func u64CL(v uint64) map[string]any {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return map[string]any{"cl_type": "U64", "bytes": hex.EncodeToString(b)}
}

func boolCL(v bool) map[string]any {
	if v {
		return map[string]any{"cl_type": "Bool", "bytes": "01"}
	}
	return map[string]any{"cl_type": "Bool", "bytes": "00"}
}

func stringCL(s string) map[string]any {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(len(s)))
	return map[string]any{"cl_type": "String", "bytes": hex.EncodeToString(append(b, s...))}
}

const testCID = "bafkreifzjut3te2nhyekklss27nh3k72ysco7y32koao5eei66wof36n5e"

var testNow = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

// issue stores a complete credential for item.
func (n *chainNode) issue(item string, revoked bool) {
	n.set("holder", item, keyCL(0, 0x11))
	n.set("issuer", item, keyCL(0, 0x22))
	n.set("confidence", item, u8CL(87))
	n.set("expires", item, u64CL(uint64(testNow.Add(90*24*time.Hour).UnixMilli())))
	n.set("revoked", item, boolCL(revoked))
	n.set("ipfs", item, stringCL(testCID))
}

// fakeSigner produces deterministic deploys without a subprocess.
type fakeSigner struct {
	mu      sync.Mutex
	actions []ledger.Action
	err     error
}

func (s *fakeSigner) Sign(_ context.Context, a ledger.Action) (ledger.SignedAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return ledger.SignedAction{}, s.err
	}
	s.actions = append(s.actions, a)
	hash := fmt.Sprintf("%s-%d", a.EntryPoint, len(s.actions))
	deploy, _ := json.Marshal(map[string]string{"hash": hash, "entry_point": a.EntryPoint})
	return ledger.SignedAction{Hash: hash, Deploy: deploy}, nil
}

func (s *fakeSigner) signed() []ledger.Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ledger.Action(nil), s.actions...)
}

// scriptedConfirmer answers "Continue to ..." and "Revoke ..." prompts separately.
type scriptedConfirmer struct {
	proceed bool
	revoke  bool
	prompts []string
}

func (c *scriptedConfirmer) Confirm(_ context.Context, prompt string) (bool, error) {
	c.prompts = append(c.prompts, prompt)
	if strings.HasPrefix(prompt, "Revoke") {
		return c.revoke, nil
	}
	return c.proceed, nil
}

type memRecorder struct {
	mu      sync.Mutex
	records []string
}

func (r *memRecorder) Record(_ context.Context, item, step, kind string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, item+"/"+step+"/"+kind)
	return nil
}

type memJournal struct {
	mu      sync.Mutex
	entries []journal.Entry
}

func (j *memJournal) Put(_ context.Context, e journal.Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	return nil
}

type recordingReporter struct {
	transitions []string
	steps       []StepResult
	queried     []*QueryResult
}

func (r *recordingReporter) Transition(_ string, from, to State) {
	r.transitions = append(r.transitions, string(from)+"->"+string(to))
}
func (r *recordingReporter) Queried(q *QueryResult) { r.queried = append(r.queried, q) }
func (r *recordingReporter) StepDone(s StepResult)  { r.steps = append(r.steps, s) }

type harness struct {
	node     *chainNode
	clock    *ledger.FakeClock
	signer   *fakeSigner
	confirm  *scriptedConfirmer
	recorder *memRecorder
	journal  *memJournal
	reporter *recordingReporter
	ctrl     *Controller
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	node, srv := newChainNode(t)
	h := &harness{
		node:     node,
		clock:    ledger.NewFakeClock(testNow),
		signer:   &fakeSigner{},
		confirm:  &scriptedConfirmer{proceed: true, revoke: true},
		recorder: &memRecorder{},
		journal:  &memJournal{},
		reporter: &recordingReporter{},
	}
	client, err := ledger.NewClient(ledger.Options{Endpoint: srv.URL, Clock: h.clock})
	require.NoError(t, err)
	cfg := Config{
		Seed:      testSeed,
		Ledger:    client,
		Signer:    h.signer,
		Clock:     h.clock,
		Confirmer: h.confirm,
		Reporter:  h.reporter,
		Recorder:  h.recorder,
		Journal:   h.journal,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	h.ctrl, err = New(cfg)
	require.NoError(t, err)
	return h
}
