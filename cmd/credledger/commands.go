package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"xdao.co/credledger/credential"
	"xdao.co/credledger/journal"
	"xdao.co/credledger/keyderive"
	"xdao.co/credledger/ledger"
	"xdao.co/credledger/lifecycle"
	"xdao.co/credledger/storage"
	"xdao.co/credledger/storage/bundle"
)

// writeJSON reports an encode or write failure on errOut and returns false.
func writeJSON(out, errOut io.Writer, v any) bool {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(errOut, "write json: %v\n", err)
		return false
	}
	return true
}

// item validates a credential id argument.
func item(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errors.New("credential id must not be empty")
	}
	return s, nil
}

func parseArgs(name string, args []string, errOut io.Writer) (*flag.FlagSet, bool) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return nil, false
	}
	return fs, true
}

func cmdQuery(ctx context.Context, g globalOptions, args []string, out io.Writer, errOut io.Writer) int {
	fs, ok := parseArgs("query", args, errOut)
	if !ok {
		return 2
	}
	if fs.NArg() != 1 {
		return usageErr(errOut, "query <id>")
	}
	id, err := item(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	a, err := newApp(g, out, errOut, false)
	if err != nil {
		fmt.Fprintf(errOut, "config: %v\n", err)
		return 1
	}
	defer a.close()

	q, err := a.ctrl.Query(ctx, id)
	if errors.Is(err, lifecycle.ErrCredentialNotFound) {
		fmt.Fprintf(errOut, "credential %s not found\n", id)
		return 1
	}
	if err != nil {
		fmt.Fprintf(errOut, "query: %v\n", err)
		return 1
	}
	if g.jsonOut && !writeJSON(out, errOut, q) {
		return 1
	}
	return 0
}

func stepExit(res lifecycle.StepResult) int {
	if res.Succeeded() && res.Discrepancy == "" {
		return 0
	}
	return 1
}

func cmdVerify(ctx context.Context, g globalOptions, args []string, out io.Writer, errOut io.Writer) int {
	fs, ok := parseArgs("verify", args, errOut)
	if !ok {
		return 2
	}
	if fs.NArg() != 1 {
		return usageErr(errOut, "verify <id>")
	}
	id, err := item(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	a, err := newApp(g, out, errOut, true)
	if err != nil {
		fmt.Fprintf(errOut, "config: %v\n", err)
		return 1
	}
	defer a.close()

	res, err := a.ctrl.Verify(ctx, id)
	if err != nil {
		fmt.Fprintf(errOut, "verify: %v\n", err)
		return 1
	}
	if g.jsonOut && !writeJSON(out, errOut, res) {
		return 1
	}
	return stepExit(res)
}

func cmdRevoke(ctx context.Context, g globalOptions, args []string, out io.Writer, errOut io.Writer) int {
	fs, ok := parseArgs("revoke", args, errOut)
	if !ok {
		return 2
	}
	if fs.NArg() < 1 {
		return usageErr(errOut, "revoke <id> [reason]")
	}
	id, err := item(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	reason := strings.Join(fs.Args()[1:], " ")

	a, err := newApp(g, out, errOut, true)
	if err != nil {
		fmt.Fprintf(errOut, "config: %v\n", err)
		return 1
	}
	defer a.close()

	res, err := a.ctrl.Revoke(ctx, id, reason)
	if err != nil {
		fmt.Fprintf(errOut, "revoke: %v\n", err)
		return 1
	}
	if g.jsonOut && !writeJSON(out, errOut, res) {
		return 1
	}
	if res.State == lifecycle.RevocationCancelled {
		return 0
	}
	return stepExit(res)
}

func cmdTest(ctx context.Context, g globalOptions, args []string, out io.Writer, errOut io.Writer) int {
	fs, ok := parseArgs("test", args, errOut)
	if !ok {
		return 2
	}
	if fs.NArg() < 1 {
		return usageErr(errOut, "test <id> [reason]")
	}
	id, err := item(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	reason := strings.Join(fs.Args()[1:], " ")

	a, err := newApp(g, out, errOut, true)
	if err != nil {
		fmt.Fprintf(errOut, "config: %v\n", err)
		return 1
	}
	defer a.close()

	w, err := a.ctrl.Run(ctx, id, reason)
	if g.jsonOut {
		if !writeJSON(out, errOut, w) {
			return 1
		}
	} else {
		a.console.Workflow(w)
	}
	if err != nil {
		fmt.Fprintf(errOut, "test halted: %v\n", err)
		return 1
	}
	for _, s := range w.Steps {
		if s.Status == lifecycle.Failed || s.Discrepancy != "" {
			return 1
		}
	}
	return 0
}

func cmdDerive(g globalOptions, args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("derive", flag.ContinueOnError)
	fs.SetOutput(errOut)
	seedFlag := fs.String("seed", "", "dictionary locator (defaults to contract.dictionary_seed)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 2 {
		return usageErr(errOut, "derive [--seed <locator>] <field|all> <id>")
	}
	field, id := fs.Arg(0), fs.Arg(1)

	locator := *seedFlag
	if locator == "" {
		cfg, err := loadConfig(g)
		if err != nil {
			fmt.Fprintf(errOut, "config: %v\n", err)
			return 1
		}
		locator = cfg.Contract.DictionarySeed
	}
	if locator == "" {
		fmt.Fprintln(errOut, "derive: no dictionary seed (set --seed or contract.dictionary_seed)")
		return 2
	}
	seed, err := keyderive.ParseSeed(locator)
	if err != nil {
		fmt.Fprintf(errOut, "derive: %v\n", err)
		return 2
	}

	fields := []credential.FieldName{credential.FieldName(field)}
	if field == "all" {
		fields = credential.Fields()
	}
	d := keyderive.NewDeriver(seed)
	for _, f := range fields {
		addr, err := d.Derive(string(f), id)
		if errors.Is(err, keyderive.ErrUnknownField) {
			fmt.Fprintf(errOut, "derive: %v\n", err)
			return 2
		}
		if err != nil {
			fmt.Fprintf(errOut, "derive: %v\n", err)
			return 1
		}
		if len(fields) == 1 {
			fmt.Fprintln(out, addr)
			continue
		}
		fmt.Fprintf(out, "%-10s %s\n", f, addr)
	}
	return 0
}

func cmdStatus(ctx context.Context, g globalOptions, args []string, out io.Writer, errOut io.Writer) int {
	fs, ok := parseArgs("status", args, errOut)
	if !ok {
		return 2
	}
	if fs.NArg() > 1 {
		return usageErr(errOut, "status [<deploy-hash>]")
	}
	a, err := newApp(g, out, errOut, false)
	if err != nil {
		fmt.Fprintf(errOut, "config: %v\n", err)
		return 1
	}
	defer a.close()

	var entries []journal.Entry
	if fs.NArg() == 1 {
		hash := strings.TrimSpace(fs.Arg(0))
		e := journal.Entry{Deploy: hash}
		if a.journal != nil {
			if known, err := a.journal.Get(ctx, hash); err == nil {
				e = known
			}
		}
		entries = append(entries, e)
	} else {
		if a.journal == nil {
			fmt.Fprintln(errOut, "status: no journal configured; pass a deploy hash")
			return 2
		}
		all, err := a.journal.List(ctx)
		if err != nil {
			fmt.Fprintf(errOut, "journal: %v\n", err)
			return 1
		}
		entries = journal.Unresolved(all)
		if len(entries) == 0 {
			fmt.Fprintln(out, "no unresolved deploys")
			return 0
		}
	}

	code := 0
	for _, e := range entries {
		o, err := a.client.Status(ctx, ledger.PendingHandle{Hash: e.Deploy, SubmittedAt: e.SubmittedAt})
		if err != nil {
			fmt.Fprintf(errOut, "%s: %v\n", e.Deploy, err)
			code = 1
			continue
		}
		if g.jsonOut {
			if !writeJSON(out, errOut, map[string]any{"deploy": e.Deploy, "item": e.Item, "step": e.Step, "outcome": o}) {
				code = 1
			}
		} else {
			line := fmt.Sprintf("%s  %s", e.Deploy, o.Status)
			if e.Item != "" {
				line += fmt.Sprintf("  item=%s step=%s", e.Item, e.Step)
			}
			if o.Message != "" {
				line += "  " + o.Message
			}
			fmt.Fprintln(out, line)
		}
		if a.journal != nil && e.Item != "" && o.Done() {
			e.Status, e.Message, e.UpdatedAt = string(o.Status), o.Message, time.Now().UTC()
			if err := a.journal.Put(ctx, e); err != nil {
				a.log.WithField("deploy", e.Deploy).Warnf("journal write failed: %v", err)
			}
		}
		if o.Status == ledger.OutcomeExecutionError {
			code = 1
		}
	}
	return code
}

func cmdWhoami(g globalOptions, args []string, out io.Writer, errOut io.Writer) int {
	fs, ok := parseArgs("whoami", args, errOut)
	if !ok {
		return 2
	}
	if fs.NArg() != 0 {
		return usageErr(errOut, "whoami")
	}
	cfg, err := loadConfig(g)
	if err != nil {
		fmt.Fprintf(errOut, "config: %v\n", err)
		return 1
	}
	pub, acct, err := signerAccount(cfg)
	if err != nil {
		fmt.Fprintf(errOut, "whoami: %v\n", err)
		return 1
	}
	if g.jsonOut {
		if !writeJSON(out, errOut, map[string]string{"algorithm": string(pub.Algorithm), "public_key": pub.Hex(), "account_hash": acct.String()}) {
			return 1
		}
		return 0
	}
	fmt.Fprintf(out, "algorithm:    %s\n", pub.Algorithm)
	fmt.Fprintf(out, "public key:   %s\n", pub.Hex())
	fmt.Fprintf(out, "account hash: %s\n", acct)
	return 0
}

func cmdExport(ctx context.Context, g globalOptions, args []string, out io.Writer, errOut io.Writer) int {
	fs, ok := parseArgs("export", args, errOut)
	if !ok {
		return 2
	}
	if fs.NArg() != 2 {
		return usageErr(errOut, "export <id> <file.tar>")
	}
	id, err := item(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	a, err := newApp(g, out, errOut, false)
	if err != nil {
		fmt.Fprintf(errOut, "config: %v\n", err)
		return 1
	}
	defer a.close()
	if a.recorder == nil {
		fmt.Fprintln(errOut, "export: artifacts are disabled (artifacts.dir is empty)")
		return 1
	}

	m, err := a.recorder.Manifest(id)
	if storage.IsNotFound(err) {
		fmt.Fprintf(errOut, "export: nothing recorded for credential %s\n", id)
		return 1
	}
	if err != nil {
		fmt.Fprintf(errOut, "export: %v\n", err)
		return 1
	}

	path := fs.Arg(1)
	f, err := os.Create(path)
	if err != nil {
		fmt.Fprintf(errOut, "export: %v\n", err)
		return 1
	}
	if err := bundle.Export(ctx, f, a.store, m); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		fmt.Fprintf(errOut, "export: %v\n", err)
		return 1
	}
	if err := f.Close(); err != nil {
		fmt.Fprintf(errOut, "export: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "%s: %d artifacts\n", path, len(m.Artifacts))
	return 0
}
