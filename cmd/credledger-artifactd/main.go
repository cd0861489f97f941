package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"google.golang.org/grpc"

	"xdao.co/credledger/logging"
	"xdao.co/credledger/storage/grpcstore"
	"xdao.co/credledger/storage/registry"

	_ "xdao.co/credledger/storage/ipfs"
	_ "xdao.co/credledger/storage/localfs"
)

// kvFlag collects repeated key=value backend settings.
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

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("credledger-artifactd", flag.ContinueOnError)
	fs.SetOutput(errOut)
	listen := fs.String("listen", "127.0.0.1:7787", "listen address")
	backend := fs.String("backend", "localfs", "artifact store backend name")
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")
	logLevel := fs.String("log-level", "info", "error|warn|info|debug|off")
	logFormat := fs.String("log-format", "text", "text|json")
	maxMsg := fs.Int("max-msg-bytes", grpcstore.DefaultMaxMsgBytes, "largest artifact accepted or returned")
	settings := kvFlag{}
	fs.Var(settings, "set", "backend setting key=value (repeatable), e.g. --set dir=/var/lib/credledger/blocks")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *listBackends {
		for _, b := range registry.List(registry.UsageDaemon) {
			line := b.Name
			if b.Description != "" {
				line += "\t" + b.Description
			}
			if len(b.Keys) > 0 {
				line += "\t[" + strings.Join(b.Keys, ", ") + "]"
			}
			fmt.Fprintln(out, line)
		}
		return 0
	}

	log := logging.New(logging.Options{Level: logging.ParseLevel(*logLevel), Format: *logFormat, Output: errOut})

	store, closeFn, err := registry.Open(*backend, registry.UsageDaemon, settings)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	if closeFn != nil {
		defer closeFn()
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer lis.Close()

	s := grpc.NewServer(grpc.MaxRecvMsgSize(*maxMsg), grpc.MaxSendMsgSize(*maxMsg))
	grpcstore.RegisterArtifactStoreServer(s, &grpcstore.Server{Store: store, Log: log.WithField("backend", *backend)})

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		s.GracefulStop()
	}()

	log.WithFields(map[string]interface{}{"addr": lis.Addr().String(), "backend": *backend}).Info("credledger-artifactd listening")
	if err := s.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		fmt.Fprintln(errOut, err)
		return 1
	}
	return 0
}
