// Command tree-node runs and operates the carving store.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/carvexyz/tree-node/cmd/tree-node/keys"
	"github.com/carvexyz/tree-node/internal/config"
	"github.com/carvexyz/tree-node/internal/events"
	"github.com/carvexyz/tree-node/internal/keyring"
	"github.com/carvexyz/tree-node/internal/observability"
	"github.com/carvexyz/tree-node/internal/tree"
	"github.com/carvexyz/tree-node/internal/tree/physical"
	"github.com/carvexyz/tree-node/pkg/identity"
	"github.com/carvexyz/tree-node/pkg/identity/ed25519"

	// State backends register themselves on import.
	_ "github.com/carvexyz/tree-node/internal/tree/physical/badger"
	_ "github.com/carvexyz/tree-node/internal/tree/physical/memory"
	_ "github.com/carvexyz/tree-node/internal/tree/physical/redis"
	_ "github.com/carvexyz/tree-node/internal/tree/physical/s3"
	_ "github.com/carvexyz/tree-node/internal/tree/physical/sqlite"
)

func main() {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:           "tree-node",
		Short:         "Permissioned carving store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.BindCommonFlags(rootCmd, v)

	rootCmd.AddCommand(
		newStartCmd(v),
		keys.Entrypoint(v),
		newAppointCmd(v),
		newDismissCmd(v),
		newCarveCmd(v),
		newScratchCmd(v),
		newPublicizeCmd(v),
		newHideCmd(v),
		newReadCmd(v),
		newPeruseCmd(v),
		newNonceCmd(v),
		newDeriveCmd(v),
		newSignCmd(v),
		newRelayCmd(v),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig merges flags, env, and file, and wires the global logger.
func loadConfig(v *viper.Viper) (config.Config, error) {
	configFile := v.GetString("config")
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return config.Config{}, err
	}

	format := cfg.Observability.LogFormat
	if format == "" || format == "text" {
		if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
			format = "text"
		} else {
			format = "json"
		}
	}
	observability.SetupLogger(cfg.Observability.LogLevel, format, os.Stderr)
	return cfg, nil
}

func openKeyring(cfg config.Config) *keyring.Keyring {
	return keyring.New(cfg.DataDir)
}

// loadSigner resolves the signing key from --key-path, --key, or the
// keyring default, generating the default key on first use.
func loadSigner(ctx context.Context, cfg config.Config) (*keyring.Key, error) {
	kr := openKeyring(cfg)

	if cfg.Keys.Path != "" {
		seed, err := os.ReadFile(cfg.Keys.Path)
		if err != nil {
			return nil, fmt.Errorf("read key file: %w", err)
		}
		kp, err := ed25519.FromSeed(seed)
		if err != nil {
			return nil, fmt.Errorf("load key file: %w", err)
		}
		return &keyring.Key{
			Keypair:   kp,
			PublicKey: hex.EncodeToString(kp.PublicKey().Bytes),
		}, nil
	}

	name := cfg.Keys.Name
	if name == "" {
		name = keyring.DefaultAlias
	}
	return kr.LoadOrGenerate(ctx, name)
}

// openStore opens the configured state backend and the store on top of it.
// When no root principal is configured, the local signing key bootstraps an
// empty registry.
func openStore(ctx context.Context, cfg config.Config, metrics *observability.Metrics, emitter events.Emitter) (*tree.Store, error) {
	backendConfig := make(map[string]string, len(cfg.State.Config))
	for k, val := range cfg.State.Config {
		backendConfig[k] = val
	}
	switch cfg.State.Backend {
	case "badger":
		if backendConfig["path"] == "" {
			backendConfig["path"] = filepath.Join(cfg.DataDir, "state")
		}
	case "sqlite":
		if backendConfig["path"] == "" {
			backendConfig["path"] = filepath.Join(cfg.DataDir, "state.db")
		}
	}

	backend, err := physical.New(ctx, cfg.State.Backend, backendConfig)
	if err != nil {
		return nil, err
	}

	root := identity.Principal(cfg.Root)
	if root == "" {
		key, err := loadSigner(ctx, cfg)
		if err != nil {
			backend.Close()
			return nil, err
		}
		root = key.Principal()
	}

	store, err := tree.Open(ctx, tree.Options{
		Backend: backend,
		Root:    root,
		Metrics: metrics,
		Emitter: emitter,
	})
	if err != nil {
		backend.Close()
		return nil, err
	}
	return store, nil
}

// defaultEmitter builds the configured emitter chain: slog always, plus the
// JSONL journal when enabled.
func defaultEmitter(cfg config.Config) (events.Emitter, func() error, error) {
	if !cfg.Journal.Enabled {
		return events.SlogEmitter{}, func() error { return nil }, nil
	}
	journal, err := events.OpenJournal(cfg.JournalPath())
	if err != nil {
		return nil, nil, err
	}
	return events.Multi{events.SlogEmitter{}, journal}, journal.Close, nil
}
