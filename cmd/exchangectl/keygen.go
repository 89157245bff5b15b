package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/uhyunpark/hyperswap/pkg/crypto"
)

type keyPair struct {
	Address    string `json:"address"`
	PrivateKey string `json:"privateKey"`
}

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new secp256k1 keypair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			signer, err := crypto.GenerateKey()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(keyPair{
				Address:    signer.Address().Hex(),
				PrivateKey: "0x" + signer.PrivateKeyHex(),
			})
		},
	}
}
