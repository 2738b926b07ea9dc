// Command marketctl is the operator CLI: derive record addresses, decode
// raw account blobs, and check entitlement against a live endpoint.
//
// The derive subcommand exists partly as a deployment check: run it
// against a known record and compare the output to the address the ledger
// actually uses before trusting a new deployment.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"tensormart.io/market/entitle"
	"tensormart.io/market/ledger"
	ledgerrpc "tensormart.io/market/ledger/rpc"
	"tensormart.io/market/record"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "marketctl",
		Short:         "Marketplace engine operator tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("program-id", "8g37Z8wZR9xMaHQRP8W8FzWqAj1A8VRt2c4t6LnBqAyb", "marketplace program address")
	root.AddCommand(newDeriveCmd(), newDecodeCmd(), newCheckAccessCmd())
	return root
}

func programFrom(cmd *cobra.Command) (ledger.Address, error) {
	s, err := cmd.Flags().GetString("program-id")
	if err != nil {
		return ledger.Address{}, err
	}
	return ledger.ParseAddress(s)
}

func newDeriveCmd() *cobra.Command {
	var (
		creator  string
		modelID  uint64
		user     string
		model    string
		infeHash string
	)

	cmd := &cobra.Command{
		Use:   "derive <marketplace|model|access|usage>",
		Short: "Derive a record address from its key fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			program, err := programFrom(cmd)
			if err != nil {
				return err
			}

			var d ledger.Derivation
			switch args[0] {
			case "marketplace":
				d, err = ledger.DeriveMarketplace(program)
			case "model":
				var c ledger.Principal
				if c, err = ledger.ParsePrincipal(creator); err == nil {
					d, err = ledger.DeriveModel(program, c, modelID)
				}
			case "access":
				d, err = deriveAccess(program, user, model)
			case "usage":
				d, err = deriveUsage(program, user, model, infeHash)
			default:
				return fmt.Errorf("unknown kind %q", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Printf("%s (bump %d)\n", d.Address, d.Bump)
			return nil
		},
	}

	cmd.Flags().StringVar(&creator, "creator", "", "creator principal (model)")
	cmd.Flags().Uint64Var(&modelID, "model-id", 0, "model sequence number (model)")
	cmd.Flags().StringVar(&user, "user", "", "user principal (access, usage)")
	cmd.Flags().StringVar(&model, "model", "", "model address (access, usage)")
	cmd.Flags().StringVar(&infeHash, "inference-hash", "", "hex inference digest (usage)")
	return cmd
}

func deriveAccess(program ledger.Address, user, model string) (ledger.Derivation, error) {
	u, err := ledger.ParsePrincipal(user)
	if err != nil {
		return ledger.Derivation{}, err
	}
	m, err := ledger.ParseAddress(model)
	if err != nil {
		return ledger.Derivation{}, err
	}
	return ledger.DeriveAccess(program, u, m)
}

func deriveUsage(program ledger.Address, user, model, infeHash string) (ledger.Derivation, error) {
	u, err := ledger.ParsePrincipal(user)
	if err != nil {
		return ledger.Derivation{}, err
	}
	m, err := ledger.ParseAddress(model)
	if err != nil {
		return ledger.Derivation{}, err
	}
	raw, err := hex.DecodeString(infeHash)
	if err != nil || len(raw) != 32 {
		return ledger.Derivation{}, fmt.Errorf("inference-hash must be 32 hex-encoded bytes")
	}
	var digest [32]byte
	copy(digest[:], raw)
	return ledger.DeriveUsage(program, u, m, digest)
}

func newDecodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode <marketplace|model|access|usage> <file>",
		Short: "Decode a raw account blob to JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			blob, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}

			var v any
			switch args[0] {
			case "marketplace":
				v, err = record.DecodeMarketplace(blob)
			case "model":
				v, err = record.DecodeModel(blob)
			case "access":
				v, err = record.DecodeAccess(blob)
			case "usage":
				v, err = record.DecodeUsage(blob)
			default:
				return fmt.Errorf("unknown kind %q", args[0])
			}
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	return cmd
}

func newCheckAccessCmd() *cobra.Command {
	var rpcURL string

	cmd := &cobra.Command{
		Use:   "check-access <user> <model>",
		Short: "Evaluate entitlement against a live endpoint",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			program, err := programFrom(cmd)
			if err != nil {
				return err
			}
			user, err := ledger.ParsePrincipal(args[0])
			if err != nil {
				return err
			}
			model, err := ledger.ParseAddress(args[1])
			if err != nil {
				return err
			}

			reader := ledgerrpc.New(rpcURL, program, ledgerrpc.Options{})
			evaluator := entitle.New(program, reader, entitle.Options{})

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			res, err := evaluator.Check(ctx, user, model)
			if err != nil {
				return err
			}
			fmt.Printf("status: %s\naddress: %s\n", res.Status, res.Address)
			if res.Record != nil {
				fmt.Printf("type: %s\n", res.Record.AccessType)
				if res.Record.ExpiresAt != nil {
					fmt.Printf("expires: %s\n", time.Unix(*res.Record.ExpiresAt, 0).UTC().Format(time.RFC3339))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&rpcURL, "rpc-url", "https://api.devnet.solana.com", "ledger RPC endpoint")
	return cmd
}
