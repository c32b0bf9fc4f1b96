package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/carvexyz/tree-node/internal/config"
	"github.com/carvexyz/tree-node/internal/keyring"
	"github.com/carvexyz/tree-node/internal/tree"
	"github.com/carvexyz/tree-node/pkg/carving"
)

func newReadCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "read <id>",
		Short: "Print the content of a carving",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := carving.ParseID(args[0])
			if err != nil {
				return err
			}
			return runWithStore(cmd, v, func(ctx context.Context, _ config.Config, s *tree.Store, _ *keyring.Key) error {
				content, err := s.Read(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(content)
			})
		},
	}
}

func newPeruseCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "peruse",
		Short: "List the published carvings in gallery order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithStore(cmd, v, func(ctx context.Context, _ config.Config, s *tree.Store, _ *keyring.Key) error {
				return printJSON(s.Peruse(ctx))
			})
		},
	}
}

func newNonceCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "nonce <id>",
		Short: "Print the current nonce for an identifier",
		Long:  "Principals fetch the nonce before signing a relayed request for the identifier.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := carving.ParseID(args[0])
			if err != nil {
				return err
			}
			return runWithStore(cmd, v, func(_ context.Context, _ config.Config, s *tree.Store, _ *keyring.Key) error {
				fmt.Println(s.Nonce(id))
				return nil
			})
		},
	}
}

func newDeriveCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "derive <email> [index]",
		Short: "Derive a carving identifier from an email and index",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}

			index := uint32(0)
			if len(args) == 2 {
				n, err := strconv.ParseUint(args[1], 10, 32)
				if err != nil {
					return fmt.Errorf("parse index: %w", err)
				}
				index = uint32(n)
			}

			userID := carving.DeriveUserID(args[0], cfg.Salts.User)
			id := carving.DeriveID(userID, index, cfg.Salts.Carving)
			fmt.Println(id.Hex())
			return nil
		},
	}
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
