package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"

	"xdao.co/credledger/clvalue"
	"xdao.co/credledger/compliance"
	"xdao.co/credledger/config"
	"xdao.co/credledger/journal"
	"xdao.co/credledger/keyderive"
	"xdao.co/credledger/keys"
	"xdao.co/credledger/ledger"
	"xdao.co/credledger/lifecycle"
	"xdao.co/credledger/logging"
	"xdao.co/credledger/report"
	"xdao.co/credledger/storage"
	"xdao.co/credledger/storage/localfs"
	"xdao.co/credledger/storage/registry"

	_ "xdao.co/credledger/storage/grpcstore"
	_ "xdao.co/credledger/storage/ipfs"
)

// app holds everything a command needs, built from configuration.
type app struct {
	cfg      *config.Config
	log      logging.Logger
	client   *ledger.Client
	seed     keyderive.NamespaceSeed
	console  *report.Console
	prompter *report.Prompter
	store    storage.Store
	recorder *storage.Recorder
	journal  journal.Store
	ctrl     *lifecycle.Controller

	closers []func() error
}

func loadConfig(g globalOptions) (*config.Config, error) {
	if g.envFile != "" {
		if err := config.LoadEnvFile(g.envFile, false); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	return cfg, nil
}

func colored(out io.Writer) bool {
	return out == io.Writer(os.Stdout) && !color.NoColor
}

// newApp wires the controller. signing adds the external signer and the
// signer account; read-only commands run without a key.
func newApp(g globalOptions, out io.Writer, errOut io.Writer, signing bool) (*app, error) {
	cfg, err := loadConfig(g)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if signing {
		if err := cfg.NeedSigner(); err != nil {
			return nil, err
		}
	}

	a := &app{cfg: cfg}
	a.log = logging.New(logging.Options{Level: logging.ParseLevel(cfg.Log.Level), Format: cfg.Log.Format, Output: errOut})
	a.seed, err = keyderive.ParseSeed(cfg.Contract.DictionarySeed)
	if err != nil {
		return nil, err
	}
	a.client, err = ledger.NewClient(ledger.Options{
		Endpoint:     cfg.Node.URL,
		CallTimeout:  cfg.Node.CallTimeout,
		ReadAttempts: cfg.Node.ReadAttempts,
		RetryBackoff: cfg.Node.RetryBackoff,
		Logger:       a.log.WithField("component", "ledger"),
	})
	if err != nil {
		return nil, err
	}
	a.console = report.NewConsole(out, colored(out))
	a.prompter = report.NewPrompter(stdin, out, colored(out))
	a.prompter.AssumeYes = g.yes

	if err := a.openArtifacts(); err != nil {
		a.close()
		return nil, err
	}
	if err := a.openJournal(); err != nil {
		a.close()
		return nil, err
	}

	mode, err := compliance.ParseMode(cfg.Policy.Mode)
	if err != nil {
		a.close()
		return nil, err
	}
	lc := lifecycle.Config{
		Seed:      a.seed,
		Ledger:    a.client,
		Confirmer: a.prompter,
		Reporter:  a.console,
		Logger:    a.log.WithField("component", "lifecycle"),
		Policy: lifecycle.Policy{
			VerifyTimeout:  cfg.Policy.VerifyTimeout,
			VerifyInterval: cfg.Policy.VerifyInterval,
			RevokeTimeout:  cfg.Policy.RevokeTimeout,
			RevokeInterval: cfg.Policy.RevokeInterval,
			SettleDelay:    cfg.Policy.SettleDelay,
			VerifyPayment:  cfg.Policy.VerifyPayment,
			RevokePayment:  cfg.Policy.RevokePayment,
			Mode:           mode,
		},
	}
	if a.recorder != nil {
		lc.Recorder = a.recorder
	}
	if a.journal != nil {
		lc.Journal = a.journal
	}
	if signing {
		lc.Signer, err = ledger.NewCasperClientSigner(ledger.CasperClientOptions{
			Bin:           cfg.Signer.Bin,
			ChainName:     cfg.Signer.ChainName,
			SecretKeyPath: cfg.Signer.SecretKey,
			SessionHash:   cfg.Contract.Hash,
			TTL:           cfg.Signer.TTL,
		})
		if err != nil {
			a.close()
			return nil, err
		}
		if pub, err := keys.LoadAccount(cfg.Signer.SecretKey); err != nil {
			a.log.Warnf("signer account unknown, issuer check disabled: %v", err)
		} else {
			acct := pub.AccountHash()
			lc.SignerAccount = &acct
			a.log.WithField("account", acct.String()).Debug("signer account loaded")
		}
	}
	a.ctrl, err = lifecycle.New(lc)
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) openArtifacts() error {
	c := a.cfg.Artifacts
	if !c.Enabled() {
		return nil
	}
	if len(c.Stores.Backends) == 0 {
		s, err := localfs.New(filepath.Join(c.Dir, "blocks"))
		if err != nil {
			return fmt.Errorf("artifacts: %w", err)
		}
		a.store = s
	} else {
		s, closeFn, err := c.Stores.Open(registry.UsageCLI)
		if err != nil {
			return fmt.Errorf("artifacts: %w", err)
		}
		a.store = s
		a.closers = append(a.closers, closeFn)
	}
	rec, err := storage.NewRecorder(a.store, c.Dir)
	if err != nil {
		return fmt.Errorf("artifacts: %w", err)
	}
	a.recorder = rec
	return nil
}

func (a *app) openJournal() error {
	c := a.cfg.Journal
	switch c.Backend {
	case "", "none":
		return nil
	case "file":
		j, err := journal.OpenFile(c.Path)
		if err != nil {
			return fmt.Errorf("journal: %w", err)
		}
		a.journal = j
	case "redis":
		j, err := journal.NewRedisStore(journal.RedisOptions{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
			Prefix:   c.Redis.Prefix,
		})
		if err != nil {
			return fmt.Errorf("journal: %w", err)
		}
		a.journal = j
	default:
		return fmt.Errorf("journal: unknown backend %q", c.Backend)
	}
	a.closers = append(a.closers, a.journal.Close)
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.log != nil {
			a.log.Warnf("close: %v", err)
		}
	}
	a.closers = nil
}

// signerAccount loads the configured signer's public key.
func signerAccount(cfg *config.Config) (keys.PublicKey, clvalue.Key, error) {
	if cfg.Signer.SecretKey == "" {
		return keys.PublicKey{}, clvalue.Key{}, errors.New("signer.secret_key is not configured")
	}
	pub, err := keys.LoadAccount(cfg.Signer.SecretKey)
	if err != nil {
		return keys.PublicKey{}, clvalue.Key{}, err
	}
	return pub, pub.AccountHash(), nil
}
