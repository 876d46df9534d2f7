package main

import (
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"

	"github.com/beekhof/mail-invites/internal/display"
	"github.com/beekhof/mail-invites/internal/invite"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <message-file>...",
	Short: "Reconcile many invitations with the calendar",
	Long: `Reconciles every given message independently and prints one line per
message. Messages are processed concurrently (see --concurrency).`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		b, contactList, err := setup(ctx)
		if err != nil {
			return err
		}
		defer b.Close()

		r := b.reconciler()
		models := make([]invite.Model, len(args))
		readErrs := make([]error, len(args))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.Concurrency)
		for i, path := range args {
			g.Go(func() error {
				in, err := readInput(path, b, contactList)
				if err != nil {
					// One unreadable file must not stop the others.
					readErrs[i] = err
					return nil
				}
				models[i] = runSession(gctx, in, r)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		failed := 0
		out := cmd.OutOrStdout()
		if jsonOutput {
			views := make([]display.View, 0, len(args))
			for i := range args {
				if readErrs[i] != nil {
					log.Printf("Warning: %v", readErrs[i])
					failed++
					continue
				}
				if models[i].Err != nil {
					failed++
				}
				views = append(views, display.NewView(models[i], invite.DeriveActions(models[i])))
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(views); err != nil {
				return err
			}
		} else {
			for i, path := range args {
				fmt.Fprintln(out, summaryLine(filepath.Base(path), models[i], readErrs[i]))
				if readErrs[i] != nil || models[i].Err != nil {
					failed++
				}
			}
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d messages failed", failed, len(args))
		}
		return nil
	},
}

func summaryLine(name string, m invite.Model, readErr error) string {
	switch {
	case readErr != nil:
		return fmt.Sprintf("%s %s %s", display.ErrStyle.Render("✗"), name, display.Dim.Render(readErr.Error()))
	case m.Err != nil:
		return fmt.Sprintf("%s %s %s", display.ErrStyle.Render("✗"), name, m.Err.Message())
	case !m.HasInvitation():
		return fmt.Sprintf("%s %s %s", display.Dim.Render("·"), name, display.Muted.Render("no invitation"))
	}
	stored := "not in calendar"
	if m.FromStore != nil {
		stored = fmt.Sprintf("stored seq %d", m.FromStore.Sequence)
	}
	return fmt.Sprintf("%s %s %s %s %s", display.Success.Render("✓"), name,
		display.Bold.Render(m.Title()), m.Method, display.Muted.Render(stored))
}
