package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgallion1/docrender/internal/trust"
)

var trustCmd = &cobra.Command{
	Use:   "trust",
	Short: "Inspect and manage script trust decisions",
	Long: `Lists, grants, denies and revokes per-file script execution decisions
in the configured trust store. Decisions made here are persistent; a
server picks them up on its next start (or immediately when it shares
the same sqlite or redis backend).`,
}

var trustListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all recorded trust decisions",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runTrustList(cmd); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	},
}

var trustAllowCmd = &cobra.Command{
	Use:   "allow [file]",
	Short: "Permanently allow a file's scripts to run",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runTrustSet(cmd, args[0], trust.Allowed); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	},
}

var trustDenyCmd = &cobra.Command{
	Use:   "deny [file]",
	Short: "Permanently deny a file's scripts",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runTrustSet(cmd, args[0], trust.Denied); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	},
}

var trustRevokeCmd = &cobra.Command{
	Use:   "revoke [file]",
	Short: "Forget the decision for a file, returning it to the prompt state",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runTrustRevoke(cmd, args[0]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(trustCmd)
	trustCmd.AddCommand(trustListCmd)
	trustCmd.AddCommand(trustAllowCmd)
	trustCmd.AddCommand(trustDenyCmd)
	trustCmd.AddCommand(trustRevokeCmd)
}

// openGate loads the configured trust store. Unlike serve, a CLI trust
// command without its store is useless, so load errors are fatal here.
func openGate(ctx context.Context, cmd *cobra.Command) (*trust.Gate, trust.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	store, err := openTrustStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	gate := trust.NewGate(store, newLogger(os.Stderr, cfg))
	if err := gate.Load(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}
	return gate, store, nil
}

// trustIdentity maps a command argument to a trust file identity. Buffer
// identities pass through untouched so decisions on unsaved content can
// be managed too.
func trustIdentity(arg string) (string, error) {
	if strings.HasPrefix(arg, "buffer:") {
		return arg, nil
	}
	return trust.FileIdentity(arg)
}

func runTrustList(cmd *cobra.Command) error {
	ctx := context.Background()
	gate, store, err := openGate(ctx, cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	recs := gate.List()
	if len(recs) == 0 {
		fmt.Println("no trust decisions recorded")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tDECISION\tSCOPE\tDECIDED")
	for _, rec := range recs {
		scope := "session"
		if rec.Persistent {
			scope = "persistent"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", rec.FileID, rec.Decision, scope, rec.DecidedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runTrustSet(cmd *cobra.Command, arg string, decision trust.Decision) error {
	ctx := context.Background()
	gate, store, err := openGate(ctx, cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	fileID, err := trustIdentity(arg)
	if err != nil {
		return err
	}
	if err := gate.RecordDecision(ctx, fileID, decision, true); err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", fileID, decision)
	return nil
}

func runTrustRevoke(cmd *cobra.Command, arg string) error {
	ctx := context.Background()
	gate, store, err := openGate(ctx, cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	fileID, err := trustIdentity(arg)
	if err != nil {
		return err
	}
	if err := gate.Revoke(ctx, fileID); err != nil {
		return err
	}
	fmt.Printf("%s: revoked\n", fileID)
	return nil
}
