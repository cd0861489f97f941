package grpcstore

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"xdao.co/credledger/storage"
	"xdao.co/credledger/storage/registry"
)

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "grpc",
		Description: "remote artifact daemon (credledger-artifactd)",
		Usage:       registry.UsageCLI,
		Keys:        []string{"target", "timeout", "max_msg_bytes"},
		Open: func(cfg map[string]string) (storage.Store, func() error, error) {
			target := strings.TrimSpace(cfg["target"])
			if target == "" {
				return nil, nil, fmt.Errorf("grpc: missing target")
			}
			var opts DialOptions
			if v := cfg["timeout"]; v != "" {
				d, err := time.ParseDuration(v)
				if err != nil {
					return nil, nil, fmt.Errorf("grpc: timeout: %w", err)
				}
				opts.Timeout = d
			}
			if v := cfg["max_msg_bytes"]; v != "" {
				n, err := strconv.Atoi(v)
				if err != nil || n < 0 {
					return nil, nil, fmt.Errorf("grpc: invalid max_msg_bytes %q", v)
				}
				opts.MaxMsgBytes = n
			}
			c, err := Dial(target, opts)
			if err != nil {
				return nil, nil, err
			}
			return c, c.Close, nil
		},
	})
}
