package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"xdao.co/credledger/cidutil"
	"xdao.co/credledger/storage"
	"xdao.co/credledger/storage/bundle"
	"xdao.co/credledger/storage/registry"

	_ "xdao.co/credledger/storage/grpcstore"
	_ "xdao.co/credledger/storage/ipfs"
	_ "xdao.co/credledger/storage/localfs"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "put":
		return cmdPut(ctx, args[1:], out, errOut)
	case "get":
		return cmdGet(ctx, args[1:], out, errOut)
	case "import":
		return cmdImport(ctx, args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "artifactcli: inspect and move credledger artifacts")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  artifactcli put --backend localfs --set dir=<dir> <file>")
	fmt.Fprintln(w, "  artifactcli get --backend localfs --set dir=<dir> --cid <cid> [--out <file>]")
	fmt.Fprintln(w, "  artifactcli import --backend localfs --set dir=<dir> [--manifests <dir>] <bundle.tar>")
	fmt.Fprintln(w, "  artifactcli put --backend grpc --set target=<host:port> <file>")
	fmt.Fprintln(w, "  artifactcli put --backend ipfs --set repo=<repo> [--set pin=true] <file>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - --list-backends prints the backends and their settings")
	fmt.Fprintln(w, "  - grpc talks to credledger-artifactd")
	fmt.Fprintln(w, "  - artifacts are raw blocks (CIDv1 raw + sha2-256)")
	fmt.Fprintln(w, "  - import verifies every block of a bundle written by 'credledger export'")
}

type kvFlag map[string]string

func (f kvFlag) String() string {
	parts := make([]string, 0, len(f))
	for k, v := range f {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (f kvFlag) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return fmt.Errorf("expected key=value, got %q", s)
	}
	f[strings.TrimSpace(k)] = v
	return nil
}

type commonFlags struct {
	backend      string
	listBackends bool
	settings     kvFlag
}

func (c *commonFlags) add(fs *flag.FlagSet) {
	c.settings = kvFlag{}
	fs.StringVar(&c.backend, "backend", "localfs", "artifact store backend name")
	fs.BoolVar(&c.listBackends, "list-backends", false, "List supported backends and exit")
	fs.Var(c.settings, "set", "backend setting key=value (repeatable)")
}

func (c *commonFlags) open() (storage.Store, func() error, error) {
	return registry.Open(c.backend, registry.UsageCLI, c.settings)
}

func printBackends(w io.Writer) {
	for _, b := range registry.List(registry.UsageCLI) {
		line := b.Name
		if b.Description != "" {
			line += "\t" + b.Description
		}
		if len(b.Keys) > 0 {
			line += "\t[" + strings.Join(b.Keys, ", ") + "]"
		}
		_, _ = fmt.Fprintln(w, line)
	}
}

func cmdPut(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("put", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: artifactcli put [common flags] <file>")
		return 2
	}

	store, closeFn, err := common.open()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}

	p := fs.Arg(0)
	b, err := os.ReadFile(p)
	if err != nil {
		fmt.Fprintf(errOut, "read %s: %v\n", filepath.Base(p), err)
		return 1
	}
	id, err := store.Put(ctx, b)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	_, _ = fmt.Fprintln(out, id.String())
	return 0
}

func cmdGet(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)

	var cidStr string
	var outPath string
	fs.StringVar(&cidStr, "cid", "", "CID to fetch")
	fs.StringVar(&outPath, "out", "", "Output file (optional; default stdout)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	if cidStr == "" {
		fmt.Fprintln(errOut, "missing --cid")
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(errOut, "usage: artifactcli get [common flags] --cid <cid> [--out <file>]")
		return 2
	}

	id, err := cidutil.Parse(cidStr)
	if err != nil {
		fmt.Fprintf(errOut, "%v: %v\n", storage.ErrInvalidCID, err)
		return 2
	}

	store, closeFn, err := common.open()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}

	b, err := store.Get(ctx, id)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	if outPath == "" {
		_, _ = out.Write(b)
		return 0
	}
	if err := os.WriteFile(outPath, b, 0o600); err != nil {
		fmt.Fprintf(errOut, "write %s: %v\n", outPath, err)
		return 1
	}
	return 0
}

func cmdImport(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	var manifests string
	fs.StringVar(&manifests, "manifests", "", "Directory to write the imported manifest into (optional)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: artifactcli import [common flags] [--manifests <dir>] <bundle.tar>")
		return 2
	}

	store, closeFn, err := common.open()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer f.Close()

	m, err := bundle.Import(ctx, f, store)
	if err != nil {
		fmt.Fprintf(errOut, "import: %v\n", err)
		return 1
	}
	if manifests != "" {
		rec, err := storage.NewRecorder(store, manifests)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		if err := rec.Adopt(m); err != nil {
			fmt.Fprintf(errOut, "import: %v\n", err)
			return 1
		}
	}
	_, _ = fmt.Fprintf(out, "credential %s: %d artifacts imported\n", m.Item, len(m.Artifacts))
	return 0
}
