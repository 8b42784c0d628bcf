package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"otc-exchange/internal/pda"
)

var deriveCmd = &cobra.Command{
	Use:   "derive",
	Short: "Print deterministic account addresses and their bumps.",
}

func init() {
	deriveCmd.AddCommand(
		deriveOne("platform <authority>", "Platform owned by an authority", 1, 0,
			func(d pda.Deriver, a []pda.Address, _ []string) (pda.Address, uint8, error) { return d.Platform(a[0]) }),
		deriveOne("listing <maker> <id>", "Listing of a maker", 1, 1,
			func(d pda.Deriver, a []pda.Address, rest []string) (pda.Address, uint8, error) {
				id, err := strconv.ParseUint(rest[0], 10, 64)
				if err != nil {
					return pda.Zero, 0, fmt.Errorf("invalid listing id %q: %w", rest[0], err)
				}
				return d.Listing(a[0], id)
			}),
		deriveOne("vault <listing>", "Escrow vault of a listing", 1, 0,
			func(d pda.Deriver, a []pda.Address, _ []string) (pda.Address, uint8, error) { return d.Vault(a[0]) }),
		deriveOne("profile <user>", "User profile", 1, 0,
			func(d pda.Deriver, a []pda.Address, _ []string) (pda.Address, uint8, error) { return d.UserProfile(a[0]) }),
		deriveOne("whitelist <mint>", "Whitelist entry of an asset", 1, 0,
			func(d pda.Deriver, a []pda.Address, _ []string) (pda.Address, uint8, error) { return d.Whitelist(a[0]) }),
		deriveOne("holding <owner> <asset>", "Ledger account of an owner for an asset", 2, 0,
			func(d pda.Deriver, a []pda.Address, _ []string) (pda.Address, uint8, error) {
				addr, err := d.Holding(a[0], a[1])
				return addr, 0, err
			}),
	)
}

type deriveFunc func(d pda.Deriver, addrs []pda.Address, rest []string) (pda.Address, uint8, error)

// deriveOne builds a subcommand taking nAddrs base58 addresses followed by nExtra plain arguments.
func deriveOne(use, short string, nAddrs, nExtra int, fn deriveFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nAddrs + nExtra),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := deriver()
			if err != nil {
				return err
			}
			addrs := make([]pda.Address, nAddrs)
			for i := range addrs {
				if addrs[i], err = pda.ParseAddress(args[i]); err != nil {
					return err
				}
			}
			addr, bump, err := fn(d, addrs, args[nAddrs:])
			if err != nil {
				return err
			}
			printDerived(cmd.OutOrStdout(), addr, bump)
			return nil
		},
	}
}

func printDerived(w io.Writer, addr pda.Address, bump uint8) {
	fmt.Fprintf(w, "address: %s\nbump:    %d\n", addr, bump)
}
