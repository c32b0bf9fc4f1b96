// Package keys implements keyring management subcommands.
package keys

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/carvexyz/tree-node/internal/config"
	"github.com/carvexyz/tree-node/internal/keyring"
)

func Entrypoint(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage signing keys",
		Long:  "Manage ed25519 keys with alias support.\nKeys are stored in <data-dir>/keys/ with a keyring.json alias map.",
	}

	cmd.AddCommand(
		newGenerateCmd(v),
		newListCmd(v),
		newShowCmd(v),
		newDefaultCmd(v),
		newDeleteCmd(v),
	)
	return cmd
}

func dataDir(v *viper.Viper) string {
	if d := v.GetString("data_dir"); d != "" {
		return d
	}
	return config.DefaultDataDir()
}

func openKeyring(v *viper.Viper) *keyring.Keyring {
	return keyring.New(dataDir(v))
}

func newGenerateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "generate [alias]",
		Short: "Generate a new key",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			alias := keyring.DefaultAlias
			if len(args) > 0 {
				alias = args[0]
			}

			ctx := cmd.Context()
			kr := openKeyring(v)

			if _, err := kr.Load(ctx, alias); err == nil {
				return fmt.Errorf("key with alias %q already exists", alias)
			}

			key, err := kr.Generate(ctx, alias)
			if err != nil {
				return fmt.Errorf("generate key: %w", err)
			}
			if alias == keyring.DefaultAlias {
				_ = kr.SetDefault(alias)
			}

			fmt.Println("alias:     ", alias)
			fmt.Println("principal: ", key.Principal())
			fmt.Println("stored at: ", filepath.Join(dataDir(v), "keys", key.PublicKey+".key"))
			return nil
		},
	}
}

func newListCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := openKeyring(v).List(cmd.Context())
			if err != nil {
				return err
			}
			for _, info := range infos {
				marker := " "
				if info.IsDefault {
					marker = "*"
				}
				fmt.Printf("%s %s  %v\n", marker, info.PublicKey, info.Aliases)
			}
			return nil
		},
	}
}

func newShowCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "show <alias|pubkey>",
		Short: "Show a key's principal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := openKeyring(v).Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println("principal: ", key.Principal())
			fmt.Println("public key:", key.PublicKey)
			fmt.Println("created at:", key.Metadata.CreatedAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}

func newDefaultCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "default <alias>",
		Short: "Set the default key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := openKeyring(v).SetDefault(args[0]); err != nil {
				return err
			}
			fmt.Println("default key:", args[0])
			return nil
		},
	}
}

func newDeleteCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <alias|pubkey>",
		Short: "Delete a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := openKeyring(v).Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("deleted", args[0])
			return nil
		},
	}
}
