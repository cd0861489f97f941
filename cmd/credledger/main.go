package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// stdin is read by confirmation prompts.
var stdin io.Reader = os.Stdin

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type globalOptions struct {
	configPath string
	envFile    string
	logLevel   string
	yes        bool
	jsonOut    bool
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("credledger", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.Usage = func() { printUsage(errOut) }
	var g globalOptions
	fs.StringVar(&g.configPath, "config", os.Getenv("CREDLEDGER_CONFIG"), "YAML config file")
	fs.StringVar(&g.envFile, "env-file", ".env", "dotenv file loaded before the config (missing is fine)")
	fs.StringVar(&g.logLevel, "log-level", "", "error|warn|info|debug|off (overrides config)")
	fs.BoolVar(&g.yes, "yes", false, "answer yes to every confirmation")
	fs.BoolVar(&g.jsonOut, "json", false, "print results as JSON")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	args = fs.Args()
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "query":
		return cmdQuery(ctx, g, args[1:], out, errOut)
	case "verify":
		return cmdVerify(ctx, g, args[1:], out, errOut)
	case "revoke":
		return cmdRevoke(ctx, g, args[1:], out, errOut)
	case "test":
		return cmdTest(ctx, g, args[1:], out, errOut)
	case "derive":
		return cmdDerive(g, args[1:], out, errOut)
	case "status":
		return cmdStatus(ctx, g, args[1:], out, errOut)
	case "whoami":
		return cmdWhoami(g, args[1:], out, errOut)
	case "export":
		return cmdExport(ctx, g, args[1:], out, errOut)
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
	fmt.Fprintln(w, "credledger: credential lifecycle against the ledger")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  credledger [--config <file>] [--log-level <lvl>] [--yes] [--json] <command> ...")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  query <id>                 read every field and print the validity summary")
	fmt.Fprintln(w, "  verify <id>                submit verify_credential and wait for the outcome")
	fmt.Fprintln(w, "  revoke <id> [reason]       submit revoke_credential and re-check the record")
	fmt.Fprintln(w, "  test <id> [reason]         query, verify and revoke with confirmation between steps")
	fmt.Fprintln(w, "  derive <field> <id>        print the dictionary address of one field")
	fmt.Fprintln(w, "  status [<deploy-hash>]     poll one deploy, or every unresolved journal entry")
	fmt.Fprintln(w, "  whoami                     print the signer's public key and account hash")
	fmt.Fprintln(w, "  export <id> <file.tar>     write a credential's recorded artifacts as a bundle")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - settings come from --config, then CREDLEDGER_* variables (CASPER_NODE_URL is honoured)")
	fmt.Fprintln(w, "  - verify, revoke and test need contract.hash and signer.secret_key")
	fmt.Fprintln(w, "  - revocation re-queries the record after the settle delay and reports any mismatch")
}

func usageErr(errOut io.Writer, usage string) int {
	fmt.Fprintf(errOut, "usage: credledger %s\n", usage)
	return 2
}
