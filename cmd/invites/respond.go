package main

import (
	"fmt"
	"strings"

	"github.com/beekhof/mail-invites/internal/invite"

	"github.com/spf13/cobra"
)

var answers = map[string]invite.PartStat{
	"accept":    invite.PartStatAccepted,
	"tentative": invite.PartStatTentative,
	"decline":   invite.PartStatDeclined,
}

var respondCmd = &cobra.Command{
	Use:       "respond <message-file> accept|tentative|decline",
	Short:     "Record your answer to an invitation in the calendar",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"accept", "tentative", "decline"},
	RunE: func(cmd *cobra.Command, args []string) error {
		status, ok := answers[strings.ToLower(args[1])]
		if !ok {
			return fmt.Errorf("unknown answer %q: use accept, tentative or decline", args[1])
		}
		return act(cmd, args[0], func(r *invite.Reconciler, m invite.Model) (invite.Model, error) {
			return r.Respond(cmd.Context(), m, status, cfg.Addresses)
		})
	},
}

var acceptCounterCmd = &cobra.Command{
	Use:   "accept-counter <message-file>",
	Short: "Apply an attendee's counter-proposal to your event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return act(cmd, args[0], func(r *invite.Reconciler, m invite.Model) (invite.Model, error) {
			return r.AcceptCounter(cmd.Context(), m)
		})
	},
}

// act reconciles the message, then applies fn to the reconciled model.
func act(cmd *cobra.Command, path string, fn func(*invite.Reconciler, invite.Model) (invite.Model, error)) error {
	ctx := cmd.Context()
	b, contactList, err := setup(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	in, err := readInput(path, b, contactList)
	if err != nil {
		return err
	}
	r := b.reconciler()
	m := runSession(ctx, in, r)
	if m.Err != nil {
		return fmt.Errorf("%s: %s", path, m.Err.Message())
	}

	next, err := fn(r, m)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := printModel(cmd.OutOrStdout(), next); err != nil {
		return err
	}
	if next.Err != nil {
		return fmt.Errorf("%s: %s", path, next.Err.Message())
	}
	return nil
}
