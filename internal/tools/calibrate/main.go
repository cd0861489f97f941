// Command calibrate checks which candidate derivation scheme reproduces a
// table of known dictionary addresses, and collects such tables from a node.
//
// It is a diagnostic. The production scheme is fixed in keyderive.Production.
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
	"xdao.co/credledger/keyderive"
	"xdao.co/credledger/ledger"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	if len(args) > 0 && args[0] == "collect" {
		return cmdCollect(ctx, args[1:], out, errOut)
	}
	return cmdScore(args, out, errOut)
}

func loadTable(name string) ([]keyderive.KnownPair, error) {
	if name == "observed" {
		return keyderive.ObservedPairs(), nil
	}
	b, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	var t keyderive.PairTable
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return t.KnownPairs()
}

func cmdScore(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("calibrate", flag.ContinueOnError)
	fs.SetOutput(errOut)
	table := fs.String("table", "observed", "observed or a JSON pair table file")
	all := fs.Bool("all", false, "print the score of every candidate")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	pairs, err := loadTable(*table)
	if err != nil {
		fmt.Fprintf(errOut, "table: %v\n", err)
		return 2
	}

	cal, err := keyderive.Calibrate(pairs)
	var nm *keyderive.NoMatchError
	switch {
	case errors.As(err, &nm):
		if *all {
			for _, s := range nm.Scores {
				fmt.Fprintln(out, s)
			}
		}
		fmt.Fprintf(out, "no match over %d pairs; best %s\n", len(pairs), nm.Best)
		return 1
	case err != nil:
		fmt.Fprintln(errOut, err)
		return 1
	}

	if *all {
		for _, s := range cal.Scores {
			fmt.Fprintln(out, s)
		}
	}
	fmt.Fprintf(out, "selected %s over %d pairs\n", cal.Selected, len(pairs))
	if m := cal.Matches(); len(m) > 1 {
		fmt.Fprintf(out, "note: %d candidates match; the table does not discriminate\n", len(m))
	}
	if cal.Selected != keyderive.Production {
		fmt.Fprintf(out, "warning: selected scheme differs from production %s\n", keyderive.Production)
		return 1
	}
	return 0
}

// cmdCollect asks the node to derive addresses through the contract's named
// dictionaries and prints them as a pair table.
func cmdCollect(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("calibrate collect", flag.ContinueOnError)
	fs.SetOutput(errOut)
	node := fs.String("node", os.Getenv("CASPER_NODE_URL"), "node RPC URL")
	contract := fs.String("contract", "", "contract hash")
	locator := fs.String("locator", "", "dictionary seed locator recorded in the table")
	items := fs.String("items", "", "comma separated credential ids")
	fields := fs.String("fields", "", "comma separated fields (default: every credential field)")
	timeout := fs.Duration("timeout", 30*time.Second, "per-call timeout")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *node == "" || *contract == "" || *locator == "" || *items == "" {
		fmt.Fprintln(errOut, "usage: calibrate collect --node <url> --contract <hash> --locator <uref> --items <id,...> [--fields f,...]")
		return 2
	}
	if _, err := keyderive.ParseSeed(*locator); err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}

	names := split(*fields)
	if len(names) == 0 {
		for _, f := range credential.Fields() {
			names = append(names, string(f))
		}
	}
	client, err := ledger.NewClient(ledger.Options{Endpoint: *node, CallTimeout: *timeout})
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	root, err := client.CurrentRoot(ctx)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	t := keyderive.PairTable{Locator: *locator}
	for _, id := range split(*items) {
		for _, f := range names {
			sv, err := client.ReadNamed(ctx, root, *contract, f, id)
			if ledger.IsNotFound(err) {
				fmt.Fprintf(errOut, "skip %s/%s: not on ledger\n", f, id)
				continue
			}
			if err != nil {
				fmt.Fprintf(errOut, "%s/%s: %v\n", f, id, err)
				return 1
			}
			if sv.DictionaryKey == "" {
				fmt.Fprintf(errOut, "%s/%s: node returned no dictionary_key\n", f, id)
				return 1
			}
			t.Pairs = append(t.Pairs, keyderive.TablePair{Field: f, Item: id, Address: sv.DictionaryKey})
		}
	}
	if len(t.Pairs) == 0 {
		fmt.Fprintln(errOut, "no pairs collected")
		return 1
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(t); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	return 0
}

func split(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
