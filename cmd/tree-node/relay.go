package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/carvexyz/tree-node/internal/config"
	"github.com/carvexyz/tree-node/internal/keyring"
	"github.com/carvexyz/tree-node/internal/tree"
	"github.com/carvexyz/tree-node/pkg/carving"
	"github.com/carvexyz/tree-node/pkg/request"
)

// newSignCmd produces a SignedRequest a relayer can submit later. The nonce
// must match the store's current nonce for the identifier at submission
// time; fetch it with the nonce command.
func newSignCmd(v *viper.Viper) *cobra.Command {
	var to, from, message, properties string
	var nonce uint64
	var out string

	cmd := &cobra.Command{
		Use:   "sign <carve|scratch|publicize|hide> <id>",
		Short: "Sign a request for relayed submission",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}

			kind, err := request.ParseKind(args[0])
			if err != nil {
				return err
			}
			id, err := carving.ParseID(args[1])
			if err != nil {
				return err
			}

			req := &request.Request{Kind: kind, ID: id}
			if kind == request.KindCarve {
				props, err := carving.ParseProperties(properties)
				if err != nil {
					return err
				}
				req.To = carving.TruncateLabel(to, cfg.Labels.MaxRunes)
				req.From = carving.TruncateLabel(from, cfg.Labels.MaxRunes)
				req.Message = message
				req.Properties = props
			}

			key, err := loadSigner(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			sr, err := request.NewSignedRequest(req, nonce, key.Keypair)
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(sr, "", "  ")
			if err != nil {
				return err
			}
			data = append(data, '\n')
			if out == "" {
				_, err = os.Stdout.Write(data)
				return err
			}
			return os.WriteFile(out, data, 0o600)
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "recipient label (carve only)")
	cmd.Flags().StringVar(&from, "from", "", "sender label (carve only)")
	cmd.Flags().StringVar(&message, "message", "", "carving message (carve only)")
	cmd.Flags().StringVar(&properties, "properties", "", "hex-encoded properties (carve only)")
	cmd.Flags().Uint64Var(&nonce, "nonce", 0, "current nonce for the identifier")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the signed request to a file")
	return cmd
}

func newRelayCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Act as an untrusted relayer",
	}
	cmd.AddCommand(newRelaySubmitCmd(v))
	return cmd
}

// newRelaySubmitCmd submits a signed request file. The relayer never signs
// anything itself; authorization rests entirely on the embedded proof.
func newRelaySubmitCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <file>",
		Short: "Submit a signed request and print the receipt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var sr request.SignedRequest
			if err := json.Unmarshal(data, &sr); err != nil {
				return fmt.Errorf("parse signed request: %w", err)
			}

			return runWithStore(cmd, v, func(ctx context.Context, _ config.Config, s *tree.Store, _ *keyring.Key) error {
				receipt := s.Submit(ctx, &sr)
				if err := printJSON(receipt); err != nil {
					return err
				}
				if !receipt.OK {
					return fmt.Errorf("submission rejected: %s", receipt.Error)
				}
				return nil
			})
		},
	}
}
