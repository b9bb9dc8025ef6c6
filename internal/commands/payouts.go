package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nordicloop-admin/payout-console/internal/domain"
)

func newPendingCommand(current func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List sellers with pending payouts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := current()
			defer a.close()
			logCommand(a, "pending")
			snap, err := a.deps.Loader.Load(cmd.Context(), "")
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), snap.Payouts)
		},
	}
}

func newStatsCommand(current func() *app) *cobra.Command {
	var since string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show payment statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := current()
			defer a.close()
			logCommand(a, "stats", zap.String("since", since))
			stats, err := a.deps.Loader.Stats(cmd.Context(), since)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "date range start (YYYY-MM-DD)")
	return cmd
}

func newScheduleCommand(current func() *app) *cobra.Command {
	var (
		date    string
		notes   string
		sellers []string
		txs     []string
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Create payout schedules for whole sellers or single transactions",
		Example: `  payoutctl schedule --date 2024-05-01 --seller 12
  payoutctl schedule --date 2024-05-01 --tx 12:881 --tx 12:882 --notes "May run"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := current()
			defer a.close()
			logCommand(a, "schedule", zap.String("date", date), zap.Strings("sellers", sellers), zap.Strings("transactions", txs))

			picks, err := parseTransactionFlags(txs)
			if err != nil {
				return err
			}

			d, err := a.dashboard(cmd.Context(), "")
			if err != nil {
				return err
			}
			snap := d.View().Snapshot

			whole := make(map[string]bool, len(sellers))
			for _, id := range sellers {
				if _, ok := snap.Payout(id); !ok {
					return &domain.ErrNotFound{Resource: "pending payout", ID: id}
				}
				if !whole[id] {
					whole[id] = true
					d.ToggleSeller(id)
				}
			}

			seen := make(map[txRef]bool, len(picks))
			for _, p := range picks {
				if err := checkTransaction(snap, p); err != nil {
					return err
				}
				if whole[p.sellerID] || seen[p] {
					continue
				}
				seen[p] = true
				d.ToggleTransaction(p.sellerID, p.txID)
			}

			if _, err := d.SetForm(date, notes); err != nil {
				return err
			}

			outcome, err := d.CreateSchedule(cmd.Context())
			var partial *domain.ErrPartialFailure
			if err != nil && !errors.As(err, &partial) {
				return err
			}
			if perr := printJSON(cmd.OutOrStdout(), outcome); perr != nil {
				return perr
			}
			return err
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "scheduled payout date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes stored on the schedules")
	cmd.Flags().StringArrayVar(&sellers, "seller", nil, "schedule every pending transaction of this seller (repeatable)")
	cmd.Flags().StringArrayVar(&txs, "tx", nil, "schedule one transaction, as SELLER:TRANSACTION (repeatable)")
	_ = cmd.MarkFlagRequired("date")

	return cmd
}

func newPayNowCommand(current func() *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "pay-now <seller-id>",
		Short: "Schedule and immediately process every pending transaction of a seller",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current()
			defer a.close()
			sellerID := args[0]
			logCommand(a, "pay-now", zap.String("seller_id", sellerID))

			if !yes {
				return &domain.ErrValidation{Field: "yes", Message: "pass --yes to confirm the immediate payout"}
			}

			d, err := a.dashboard(cmd.Context(), "")
			if err != nil {
				return err
			}
			outcome, err := d.PayNow(cmd.Context(), sellerID, yes)
			if err != nil {
				var inconsistent *domain.ErrInconsistentState
				if errors.As(err, &inconsistent) {
					fmt.Fprintf(cmd.ErrOrStderr(), "schedules %s were created but not paid; reconcile them in the payout admin\n",
						strings.Join(inconsistent.ScheduleIDs, ", "))
				}
				return err
			}
			return printJSON(cmd.OutOrStdout(), outcome)
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the immediate payout")
	return cmd
}

type txRef struct {
	sellerID string
	txID     string
}

func parseTransactionFlags(values []string) ([]txRef, error) {
	refs := make([]txRef, 0, len(values))
	for _, v := range values {
		seller, tx, ok := strings.Cut(v, ":")
		seller, tx = strings.TrimSpace(seller), strings.TrimSpace(tx)
		if !ok || seller == "" || tx == "" {
			return nil, &domain.ErrValidation{Field: "tx", Message: fmt.Sprintf("%q is not SELLER:TRANSACTION", v)}
		}
		refs = append(refs, txRef{sellerID: seller, txID: tx})
	}
	return refs, nil
}

func checkTransaction(snap *domain.Snapshot, ref txRef) error {
	p, ok := snap.Payout(ref.sellerID)
	if !ok {
		return &domain.ErrNotFound{Resource: "pending payout", ID: ref.sellerID}
	}
	for _, t := range p.Transactions {
		if t.ID == ref.txID {
			return nil
		}
	}
	return &domain.ErrNotFound{Resource: "transaction", ID: ref.sellerID + ":" + ref.txID}
}
