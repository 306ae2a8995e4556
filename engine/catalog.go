/*
catalog.go - Obligatory charge resolution

PURPOSE:
  Answers "what does this unit owe for this period?" from the tenant's
  charge catalog: base maintenance fee plus every required, enabled
  collection field whose activity window covers the period. Zero when
  the unit is administratively exempt.

EXEMPTION:
  A unit with AdminExempt set charges nothing while it holds an active
  administrative role for the period. Role validity is owned by an
  external collaborator behind the RoleDirectory interface; with a nil
  directory the flag alone governs.

SEE ALSO:
  - statement.go: Consumes per-field charges for clamping
  - reconcile.go: Sums obligatory charges tenant-wide
*/
package engine

import "github.com/shopspring/decimal"

// RoleDirectory reports whether a unit holds an active administrative
// role covering a period. Implemented by the calling layer.
type RoleDirectory interface {
	HoldsActiveRole(unitID string, p Period) bool
}

// Catalog is the tenant's charge configuration snapshot.
type Catalog struct {
	BaseFee decimal.Decimal
	Fields  []ChargeField

	// Roles validates administrative exemptions. Nil means the unit's
	// AdminExempt flag alone governs.
	Roles RoleDirectory `json:"-"`
}

// Field returns the charge field with the given id.
func (c Catalog) Field(id string) (ChargeField, bool) {
	for _, f := range c.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return ChargeField{}, false
}

// Exempt reports whether the unit charges nothing for the period.
func (c Catalog) Exempt(u Unit, p Period) bool {
	if !u.AdminExempt {
		return false
	}
	if c.Roles == nil {
		return true
	}
	return c.Roles.HoldsActiveRole(u.ID, p)
}

// RequiredCharges returns the per-field obligatory charge for the unit at
// the period, keyed by field key. The base fee appears under
// FieldMaintenance. An exempt unit gets an empty map.
func (c Catalog) RequiredCharges(u Unit, p Period) (map[string]decimal.Decimal, error) {
	if c.BaseFee.IsNegative() {
		return nil, &ArithmeticInvariantError{Context: "catalog base fee", Value: c.BaseFee}
	}
	charges := make(map[string]decimal.Decimal)
	if c.Exempt(u, p) {
		return charges, nil
	}
	charges[FieldMaintenance] = c.BaseFee
	for _, f := range c.Fields {
		if f.Kind != FieldCollection || !f.Required || !f.ActiveAt(p) {
			continue
		}
		if f.DefaultAmount.IsNegative() {
			return nil, &ArithmeticInvariantError{Context: "field " + f.ID + " default amount", Value: f.DefaultAmount}
		}
		charges[f.ID] = f.DefaultAmount
	}
	return charges, nil
}

// ObligatoryCharge returns the total obligatory charge for the unit at
// the period: base fee plus required, enabled, active collection fields,
// or zero when the unit is exempt.
func (c Catalog) ObligatoryCharge(u Unit, p Period) (decimal.Decimal, error) {
	charges, err := c.RequiredCharges(u, p)
	if err != nil {
		return decimal.Decimal{}, err
	}
	total := decimal.Zero
	for _, amount := range charges {
		total = total.Add(amount)
	}
	return total, nil
}

// fieldSpec resolves the consumption attributes of a field key: the
// implicit maintenance fee or a cataloged collection field.
func (c Catalog) fieldSpec(key string) (crossUnit bool, known bool) {
	if key == FieldMaintenance {
		// The base fee may always be paid on behalf of another unit.
		return true, true
	}
	f, ok := c.Field(key)
	if !ok || f.Kind != FieldCollection {
		return false, false
	}
	return f.CrossUnitAllowed, true
}
