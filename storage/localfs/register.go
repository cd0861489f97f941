package localfs

import (
	"fmt"

	"xdao.co/credledger/storage"
	"xdao.co/credledger/storage/registry"
)

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "localfs",
		Description: "artifacts as files under a local directory",
		Usage:       registry.UsageCLI | registry.UsageDaemon,
		Keys:        []string{"dir"},
		Open: func(cfg map[string]string) (storage.Store, func() error, error) {
			dir := cfg["dir"]
			if dir == "" {
				return nil, nil, fmt.Errorf("localfs: missing dir")
			}
			s, err := New(dir)
			return s, nil, err
		},
	})
}
