package engine_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vecindario/condo-engine/engine"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func per(s string) engine.Period { return engine.MustParsePeriod(s) }

// testCatalog: base fee 1000 plus a required "fondo" field of 200.
func testCatalog() engine.Catalog {
	return engine.Catalog{
		BaseFee: dec("1000"),
		Fields: []engine.ChargeField{
			{
				ID:            "fondo",
				Label:         "Fondo de reserva",
				Kind:          engine.FieldCollection,
				Required:      true,
				DefaultAmount: dec("200"),
				Enabled:       true,
			},
		},
	}
}

type staticRoles map[string]bool

func (r staticRoles) HoldsActiveRole(unitID string, _ engine.Period) bool { return r[unitID] }

// =============================================================================
// OBLIGATORY CHARGE
// =============================================================================

func TestObligatoryCharge_BaseFeePlusRequiredFields(t *testing.T) {
	cat := testCatalog()
	u := engine.Unit{ID: "u-1"}

	charge, err := cat.ObligatoryCharge(u, per("2024-01"))
	if err != nil {
		t.Fatalf("ObligatoryCharge: %v", err)
	}
	if !charge.Equal(dec("1200")) {
		t.Errorf("charge = %s, want 1200", charge)
	}
}

func TestObligatoryCharge_OptionalAndDisabledFieldsExcluded(t *testing.T) {
	cat := testCatalog()
	cat.Fields = append(cat.Fields,
		engine.ChargeField{ID: "estacionamiento", Kind: engine.FieldCollection, Required: false, DefaultAmount: dec("150"), Enabled: true},
		engine.ChargeField{ID: "gimnasio", Kind: engine.FieldCollection, Required: true, DefaultAmount: dec("300"), Enabled: false},
		engine.ChargeField{ID: "jardineria", Kind: engine.FieldExpense, Required: true, DefaultAmount: dec("400"), Enabled: true},
	)

	charge, err := cat.ObligatoryCharge(engine.Unit{ID: "u-1"}, per("2024-01"))
	if err != nil {
		t.Fatalf("ObligatoryCharge: %v", err)
	}
	if !charge.Equal(dec("1200")) {
		t.Errorf("charge = %s, want 1200 (optional/disabled/expense fields excluded)", charge)
	}
}

func TestObligatoryCharge_ActivityWindow(t *testing.T) {
	// GIVEN: A required field active for 3 periods starting 2024-03
	cat := testCatalog()
	cat.Fields = append(cat.Fields, engine.ChargeField{
		ID: "pintura", Kind: engine.FieldCollection, Required: true,
		DefaultAmount: dec("100"), Enabled: true,
		ActiveFrom: per("2024-03"), DurationPeriods: 3,
	})
	u := engine.Unit{ID: "u-1"}

	cases := []struct {
		period string
		want   string
	}{
		{"2024-02", "1200"}, // before window
		{"2024-03", "1300"}, // first period
		{"2024-05", "1300"}, // last period
		{"2024-06", "1200"}, // after window
	}
	for _, c := range cases {
		charge, err := cat.ObligatoryCharge(u, per(c.period))
		if err != nil {
			t.Fatalf("ObligatoryCharge(%s): %v", c.period, err)
		}
		if !charge.Equal(dec(c.want)) {
			t.Errorf("charge at %s = %s, want %s", c.period, charge, c.want)
		}
	}
}

func TestObligatoryCharge_AdminExemption(t *testing.T) {
	// GIVEN: An exempt unit holding an active role per the directory
	cat := testCatalog()
	cat.Roles = staticRoles{"u-pres": true}

	exempt := engine.Unit{ID: "u-pres", AdminExempt: true}
	flagOnly := engine.Unit{ID: "u-2", AdminExempt: true} // flag set, no role

	charge, err := cat.ObligatoryCharge(exempt, per("2024-01"))
	if err != nil {
		t.Fatalf("ObligatoryCharge: %v", err)
	}
	if !charge.IsZero() {
		t.Errorf("exempt unit charge = %s, want 0", charge)
	}

	charge, err = cat.ObligatoryCharge(flagOnly, per("2024-01"))
	if err != nil {
		t.Fatalf("ObligatoryCharge: %v", err)
	}
	if !charge.Equal(dec("1200")) {
		t.Errorf("flag without role: charge = %s, want 1200", charge)
	}
}

func TestObligatoryCharge_NilRoleDirectory_FlagGoverns(t *testing.T) {
	cat := testCatalog()
	charge, err := cat.ObligatoryCharge(engine.Unit{ID: "u-1", AdminExempt: true}, per("2024-01"))
	if err != nil {
		t.Fatalf("ObligatoryCharge: %v", err)
	}
	if !charge.IsZero() {
		t.Errorf("charge = %s, want 0 with nil directory", charge)
	}
}

func TestObligatoryCharge_NegativeAmountsAreInvariantViolations(t *testing.T) {
	cat := testCatalog()
	cat.BaseFee = dec("-1")
	if _, err := cat.ObligatoryCharge(engine.Unit{ID: "u-1"}, per("2024-01")); !errors.Is(err, engine.ErrArithmeticInvariant) {
		t.Errorf("negative base fee: got %v", err)
	}

	cat = testCatalog()
	cat.Fields[0].DefaultAmount = dec("-200")
	if _, err := cat.ObligatoryCharge(engine.Unit{ID: "u-1"}, per("2024-01")); !errors.Is(err, engine.ErrArithmeticInvariant) {
		t.Errorf("negative field amount: got %v", err)
	}
}
