package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/beekhof/mail-invites/internal/display"
	"github.com/beekhof/mail-invites/internal/invite"

	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <message-file>",
	Short: "Reconcile one invitation and show it",
	Long: `Reads a mail message (or a bare .ics file), reconciles its invitation with
the calendar and prints the resulting card with the actions it allows.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		b, contactList, err := setup(ctx)
		if err != nil {
			return err
		}
		defer b.Close()

		in, err := readInput(args[0], b, contactList)
		if err != nil {
			return err
		}
		m := runSession(ctx, in, b.reconciler())
		return printModel(cmd.OutOrStdout(), m)
	},
}

// runSession runs one reconciliation pass to completion.
func runSession(ctx context.Context, in invite.Input, r *invite.Reconciler) invite.Model {
	ctx, cancel := context.WithTimeout(ctx, passTimeout())
	defer cancel()

	session := invite.NewSession(in, r, func(m invite.Model) {
		debugf("%s: pass %d published (store copy: %t, error: %v)", m.MessageID, m.Pass, m.FromStore != nil, m.Err)
	})
	defer session.Close()

	session.Start(ctx)
	session.Wait()
	return session.Model()
}

func printModel(w io.Writer, m invite.Model) error {
	actions := invite.DeriveActions(m)
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(display.NewView(m, actions))
	}
	if out := display.RenderModel(m, actions); out != "" {
		fmt.Fprint(w, out)
	} else {
		fmt.Fprintln(w, display.Muted.Render("No invitation in this message."))
	}
	return nil
}
