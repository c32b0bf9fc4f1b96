package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/carvexyz/tree-node/internal/config"
	"github.com/carvexyz/tree-node/internal/keyring"
	"github.com/carvexyz/tree-node/internal/tree"
	"github.com/carvexyz/tree-node/pkg/carving"
	"github.com/carvexyz/tree-node/pkg/identity"
)

// runWithStore opens the store as the local signer and runs one direct-mode
// operation against it.
func runWithStore(cmd *cobra.Command, v *viper.Viper, fn func(ctx context.Context, cfg config.Config, s *tree.Store, key *keyring.Key) error) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	key, err := loadSigner(ctx, cfg)
	if err != nil {
		return err
	}
	emitter, closeJournal, err := defaultEmitter(cfg)
	if err != nil {
		return err
	}
	defer closeJournal()

	store, err := openStore(ctx, cfg, nil, emitter)
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(ctx, cfg, store, key)
}

func newAppointCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "appoint <principal>",
		Short: "Grant the officiant capability to a principal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithStore(cmd, v, func(ctx context.Context, _ config.Config, s *tree.Store, key *keyring.Key) error {
				candidate := identity.Principal(args[0])
				if err := s.Appoint(ctx, key.Principal(), candidate); err != nil {
					return err
				}
				fmt.Println("appointed", candidate)
				return nil
			})
		},
	}
}

func newDismissCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "dismiss <principal>",
		Short: "Revoke the officiant capability from a principal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithStore(cmd, v, func(ctx context.Context, _ config.Config, s *tree.Store, key *keyring.Key) error {
				target := identity.Principal(args[0])
				if err := s.Dismiss(ctx, key.Principal(), target); err != nil {
					return err
				}
				fmt.Println("dismissed", target)
				return nil
			})
		},
	}
}

func newCarveCmd(v *viper.Viper) *cobra.Command {
	var to, from, message, properties string

	cmd := &cobra.Command{
		Use:   "carve <id>",
		Short: "Store new content under an unused identifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := carving.ParseID(args[0])
			if err != nil {
				return err
			}
			props, err := carving.ParseProperties(properties)
			if err != nil {
				return err
			}
			return runWithStore(cmd, v, func(ctx context.Context, cfg config.Config, s *tree.Store, key *keyring.Key) error {
				content := carving.Content{
					To:         carving.TruncateLabel(to, cfg.Labels.MaxRunes),
					From:       carving.TruncateLabel(from, cfg.Labels.MaxRunes),
					Message:    message,
					Properties: props,
				}
				if err := s.Carve(ctx, tree.Direct(key.Principal()), id, content); err != nil {
					return err
				}
				fmt.Println("carved", id.Hex())
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "recipient label")
	cmd.Flags().StringVar(&from, "from", "", "sender label")
	cmd.Flags().StringVar(&message, "message", "", "carving message (required)")
	cmd.Flags().StringVar(&properties, "properties", "", "hex-encoded properties")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func newScratchCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "scratch <id>",
		Short: "Delete a carving; its identifier is burned forever",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := carving.ParseID(args[0])
			if err != nil {
				return err
			}
			return runWithStore(cmd, v, func(ctx context.Context, _ config.Config, s *tree.Store, key *keyring.Key) error {
				if err := s.Scratch(ctx, tree.Direct(key.Principal()), id); err != nil {
					return err
				}
				fmt.Println("scratched", id.Hex())
				return nil
			})
		},
	}
}

func newPublicizeCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "publicize <id>",
		Short: "List a carving in the public gallery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := carving.ParseID(args[0])
			if err != nil {
				return err
			}
			return runWithStore(cmd, v, func(ctx context.Context, _ config.Config, s *tree.Store, key *keyring.Key) error {
				if err := s.Publicize(ctx, tree.Direct(key.Principal()), id); err != nil {
					return err
				}
				fmt.Println("publicized", id.Hex())
				return nil
			})
		},
	}
}

func newHideCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "hide <id>",
		Short: "Remove a carving from the gallery without deleting it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := carving.ParseID(args[0])
			if err != nil {
				return err
			}
			return runWithStore(cmd, v, func(ctx context.Context, _ config.Config, s *tree.Store, key *keyring.Key) error {
				if err := s.Hide(ctx, tree.Direct(key.Principal()), id); err != nil {
					return err
				}
				fmt.Println("hidden", id.Hex())
				return nil
			})
		},
	}
}
