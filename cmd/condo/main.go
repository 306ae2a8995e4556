/*
main.go - Command-line interface for the condominium ledger engine

PURPOSE:
  Operator tooling against a condo database, without the HTTP server.
  Prints unit statements and treasury reconciliation reports, and drives
  the period close workflow.

COMMANDS:
  statement  Print one unit's statement over a period range
  reconcile  Print reconciliation report(s) for a period or a range
  close      Close a period for a tenant

EXAMPLES:
  condo statement --db ./data/condo.db --tenant condo-1 --unit u-101 --from 2024-01 --to 2024-06
  condo reconcile --db ./data/condo.db --tenant condo-1 --period 2024-03
  condo close --db ./data/condo.db --tenant condo-1 --period 2024-03

SEE ALSO:
  - cmd/server/main.go: The HTTP server over the same store
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/alecthomas/kong"

	"github.com/vecindario/condo-engine/engine"
	"github.com/vecindario/condo-engine/store/sqlite"
)

var (
	// Version contains the application version number. It's set via ldflags
	// when building.
	Version = ""

	cli struct {
		Version kong.VersionFlag `help:"Show version information"`
		Commands
	}
)

// Globals holds flags shared by every command.
type Globals struct {
	DB     string `help:"SQLite database path." default:"./data/condo.db"`
	Tenant string `help:"Tenant identifier." required:""`
}

type Commands struct {
	Globals

	Statement StatementCmd `cmd:"" help:"Print one unit's statement over a period range."`
	Reconcile ReconcileCmd `cmd:"" help:"Print reconciliation report(s) for a period or a range."`
	Close     CloseCmd     `cmd:"" help:"Close a period; further captures into it are rejected."`
}

type StatementCmd struct {
	Unit string `help:"Unit identifier." required:""`
	From string `help:"First period, YYYY-MM." required:""`
	To   string `help:"Last period, YYYY-MM." required:""`
}

func (cmd *StatementCmd) Run(g *Globals) error {
	from, err := engine.ParsePeriod(cmd.From)
	if err != nil {
		return err
	}
	to, err := engine.ParsePeriod(cmd.To)
	if err != nil {
		return err
	}

	snap, closeStore, err := loadSnapshot(g)
	if err != nil {
		return err
	}
	defer closeStore()

	unit, ok := snap.Unit(cmd.Unit)
	if !ok {
		return fmt.Errorf("%w: %s", engine.ErrUnitNotFound, cmd.Unit)
	}

	st, err := snap.Calculator().Statement(unit, from, to)
	if err != nil {
		return err
	}

	fmt.Printf("Statement for %s (%s), %s to %s\n", unit.Code, unit.Name, st.From, st.To)
	fmt.Printf("Net previous debt: %s  Credit: %s\n\n", st.NetPreviousDebt, st.CreditBalance)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PERIOD\tCHARGE\tPAID\tCOLLECTED\tSTATUS\tBALANCE")
	for _, row := range st.Rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			row.Period, row.Charge, row.Paid, row.Collected, row.Status, row.Balance)
	}
	fmt.Fprintf(w, "\t\t\t\tFINAL\t%s\n", st.FinalBalance)
	return w.Flush()
}

type ReconcileCmd struct {
	Period string `help:"Single period, YYYY-MM." xor:"range"`
	From   string `help:"First period of a range, YYYY-MM." xor:"range"`
	To     string `help:"Last period of a range, YYYY-MM."`
}

func (cmd *ReconcileCmd) Run(g *Globals) error {
	snap, closeStore, err := loadSnapshot(g)
	if err != nil {
		return err
	}
	defer closeStore()

	agg := snap.Aggregator()

	var reports []*engine.ReconciliationReport
	switch {
	case cmd.Period != "":
		period, err := engine.ParsePeriod(cmd.Period)
		if err != nil {
			return err
		}
		rep, err := agg.Reconcile(period)
		if err != nil {
			return err
		}
		reports = append(reports, rep)
	case cmd.From != "" && cmd.To != "":
		from, err := engine.ParsePeriod(cmd.From)
		if err != nil {
			return err
		}
		to, err := engine.ParsePeriod(cmd.To)
		if err != nil {
			return err
		}
		if reports, err = agg.ReconcileRange(from, to); err != nil {
			return err
		}
	default:
		return fmt.Errorf("either --period or both --from and --to are required")
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PERIOD\tOBLIGATORY\tCOLLECTED(R)\tCOLLECTED(P)\tEXPENSES(R)\tEXPENSES(P)\tNET")
	for _, rep := range reports {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			rep.Period, rep.ObligatoryTotal,
			rep.CollectedReconciled, rep.CollectedPending,
			rep.ExpenseReconciled, rep.ExpensePending,
			rep.NetBalance)
	}
	return w.Flush()
}

type CloseCmd struct {
	Period string `help:"Period to close, YYYY-MM." required:""`
}

func (cmd *CloseCmd) Run(g *Globals) error {
	period, err := engine.ParsePeriod(cmd.Period)
	if err != nil {
		return err
	}
	if period.IsPreLedger() {
		return fmt.Errorf("the pre-ledger sentinel has no lock")
	}

	store, err := sqlite.New(g.DB)
	if err != nil {
		return err
	}
	defer store.Close()

	lock, err := store.UpdateLock(context.Background(), g.Tenant, period, engine.PeriodLock.Close)
	if err != nil {
		return err
	}

	fmt.Printf("Period %s is now %s\n", lock.Period, lock.State())
	return nil
}

func loadSnapshot(g *Globals) (*engine.Snapshot, func(), error) {
	store, err := sqlite.New(g.DB)
	if err != nil {
		return nil, nil, err
	}
	snap, err := store.Snapshot(context.Background(), g.Tenant)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return snap, func() { store.Close() }, nil
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Vars{
			"version": buildVersion(),
		},
		kong.Name("condo"),
		kong.Description("Condominium ledger statements and reconciliation."),
		kong.UsageOnError(),
		kong.Bind(&cli.Globals),
	)

	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}

func buildVersion() string {
	if Version == "" {
		return "dev"
	}
	return Version
}
