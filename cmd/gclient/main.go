// gclient inspects a grandpa light client database and vets relayed
// finality proofs offline. It operates on the same leveldb directory the
// embedding process writes, so point it at a stopped client or a copy.
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/ChainSafe/log15"
	substrate "github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	dbm "github.com/tendermint/tm-db"

	"github.com/ComposableFi/ics10-grandpa/grandpa"
	"github.com/ComposableFi/ics10-grandpa/types"
)

const (
	flagHome   = "home"
	flagDBName = "db-name"
	flagWindow = "window"
	flagDebug  = "debug"

	envPrefix = "GCLIENT"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "gclient",
		Short:        "inspect a grandpa light client database",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if !viper.GetBool(flagDebug) {
				log15.Root().SetHandler(log15.LvlFilterHandler(log15.LvlInfo, log15.StdoutHandler))
			}
		},
	}

	cmd.PersistentFlags().String(flagHome, ".", "directory holding the client database")
	cmd.PersistentFlags().String(flagDBName, "grandpa", "database name inside the home directory")
	cmd.PersistentFlags().Uint32(flagWindow, grandpa.DefaultRetentionWindow, "header retention window")
	cmd.PersistentFlags().Bool(flagDebug, false, "enable debug logging")

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	for _, flag := range []string{flagHome, flagDBName, flagWindow, flagDebug} {
		if err := viper.BindPFlag(flag, cmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	cmd.AddCommand(statusCommand(), headerCommand(), checkJustificationCommand())
	return cmd
}

// openClient restores a client over the configured database. The caller
// owns the close.
func openClient() (*grandpa.Client, dbm.DB, error) {
	db, err := dbm.NewGoLevelDB(viper.GetString(flagDBName), viper.GetString(flagHome))
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	client, err := grandpa.Open(db, viper.GetUint32(flagWindow))
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return client, db, nil
}

func statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "print the finality pointer, authority set and pending change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, db, err := openClient()
			if err != nil {
				return err
			}
			defer db.Close()

			best, err := client.Store().BestFinalized()
			if err != nil {
				return err
			}
			set, err := client.AuthoritySet()
			if err != nil {
				return err
			}

			cmd.Printf("best finalized: #%d %s\n", uint32(best.Number), best.Hash.Hex())
			cmd.Printf("authority set:  id=%d authorities=%d total_weight=%d threshold=%d\n",
				uint64(set.ID), len(set.Authorities), set.TotalWeight(), set.Threshold())

			pc, ok, err := client.PendingChange()
			if err != nil {
				return err
			}
			if !ok {
				cmd.Println("pending change: none")
				return nil
			}
			kind := "scheduled"
			if pc.Forced {
				kind = "forced"
			}
			cmd.Printf("pending change: %s announced=#%d effective=#%d next_authorities=%d\n",
				kind, uint32(pc.AnnouncedAt), uint32(pc.EffectiveAt), len(pc.NextAuthorities))
			return nil
		},
	}
}

func headerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "header <hash>",
		Short: "print a retained header by hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := substrate.NewHashFromHexString(args[0])
			if err != nil {
				return fmt.Errorf("parse hash: %w", err)
			}

			client, db, err := openClient()
			if err != nil {
				return err
			}
			defer db.Close()

			h, err := client.Store().Header(hash)
			if err != nil {
				return err
			}
			finalized, err := client.Store().IsFinalized(hash)
			if err != nil {
				return err
			}

			cmd.Printf("number:       %d\n", types.HeaderNumber(h))
			cmd.Printf("parent:       %s\n", h.ParentHash.Hex())
			cmd.Printf("state root:   %s\n", h.StateRoot.Hex())
			cmd.Printf("extrinsics:   %s\n", h.ExtrinsicsRoot.Hex())
			cmd.Printf("finalized:    %t\n", finalized)
			logs, err := types.GrandpaLogs(h)
			if err != nil {
				return err
			}
			cmd.Printf("grandpa logs: %d\n", len(logs))
			return nil
		},
	}
}

func checkJustificationCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check-justification <header-file> <justification-file>",
		Short: "verify a relayed finality proof against the stored state without committing it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			headerBytes, err := readScaleFile(args[0])
			if err != nil {
				return err
			}
			justificationBytes, err := readScaleFile(args[1])
			if err != nil {
				return err
			}

			header, err := types.DecodeHeader(headerBytes)
			if err != nil {
				return err
			}
			justification, err := types.DecodeJustification(justificationBytes)
			if err != nil {
				return err
			}

			client, db, err := openClient()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := client.CheckJustification(header, justification); err != nil {
				return err
			}
			cmd.Printf("ok: round %d finalizes #%d %s\n",
				uint64(justification.Round),
				uint32(justification.Commit.TargetNumber),
				justification.Commit.TargetHash.Hex())
			return nil
		},
	}
}

// readScaleFile loads SCALE bytes from disk, accepting either raw bytes or
// a hex string with optional 0x prefix.
func readScaleFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(string(raw))
	trimmed := strings.TrimPrefix(text, "0x")
	if decoded, err := hex.DecodeString(trimmed); err == nil && len(trimmed) > 0 {
		return decoded, nil
	}
	return raw, nil
}
