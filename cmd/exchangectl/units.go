package main

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/uhyunpark/hyperswap/pkg/util"
)

func newUnitsCmd() *cobra.Command {
	var decimals int32
	cmd := &cobra.Command{
		Use:   "units",
		Short: "Convert between human amounts and base units",
	}
	cmd.PersistentFlags().Int32Var(&decimals, "decimals", util.EtherDecimals, "decimals of the asset")

	cmd.AddCommand(
		&cobra.Command{
			Use:     "to-wei AMOUNT",
			Short:   "Convert a human amount such as 0.1 to base units",
			Example: "  exchangectl units to-wei 0.1",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := util.ParseUnits(args[0], decimals)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), v.Dec())
				return err
			},
		},
		&cobra.Command{
			Use:     "from-wei AMOUNT",
			Short:   "Convert base units (decimal or 0x hex) to a human amount",
			Example: "  exchangectl units from-wei 100000000000000000",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v := new(uint256.Int)
				if err := v.UnmarshalText([]byte(args[0])); err != nil {
					return fmt.Errorf("parse amount %q: %w", args[0], err)
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), util.FormatUnits(v, decimals))
				return err
			},
		},
	)
	return cmd
}
