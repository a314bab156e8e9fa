package transformer

import (
	"errors"
	"math"
	"math/big"
	"strings"
	"testing"

	"github.com/NumeralHQ/rate-and-boundary-updates/internal/schema"
)

func detailTable() schema.Table {
	return schema.NewTable("detail",
		[2]string{"geocode", "VARCHAR"},
		[2]string{"tax_type", "VARCHAR"},
		[2]string{"tax_cat", "VARCHAR"},
		[2]string{"tax_auth_id", "BIGINT"},
		[2]string{"effective", "DATE"},
		[2]string{"description", "VARCHAR"},
		[2]string{"tax_rate", "DOUBLE"},
		[2]string{"fee", "DECIMAL(5,2)"},
		[2]string{"active", "BOOLEAN"},
	)
}

var detailHeader = []string{"geocode", "tax_type", "tax_cat", "tax_auth_id", "effective", "description", "tax_rate", "fee"}

func TestCompilePlan_Strategies(t *testing.T) {
	t.Parallel()

	p, err := CompilePlan(detailTable(), append(detailHeader, "Active"))
	if err != nil {
		t.Fatalf("CompilePlan: %v", err)
	}
	want := map[string]Strategy{
		"geocode":     StrategyText,
		"tax_cat":     StrategyText,
		"tax_auth_id": StrategyNumeric,
		"effective":   StrategyDate,
		"tax_rate":    StrategyNumeric,
		"active":      StrategyBoolean,
	}
	for col, s := range want {
		i := p.IndexOf(col)
		if i < 0 {
			t.Fatalf("IndexOf(%q) = -1", col)
		}
		if got := p.Rules[i].Strategy; got != s {
			t.Errorf("strategy[%s]=%v; want %v", col, got, s)
		}
	}
	if p.Rules[p.IndexOf("ACTIVE")].Column != "active" {
		t.Fatalf("header case should map to declared column name")
	}
}

func TestCompilePlan_UnknownColumn(t *testing.T) {
	t.Parallel()

	if _, err := CompilePlan(detailTable(), []string{"geocode", "bogus"}); err == nil {
		t.Fatalf("CompilePlan with unknown column: err=nil")
	}
	if _, err := CompilePlan(detailTable(), []string{"geocode", "GEOCODE"}); err == nil {
		t.Fatalf("CompilePlan with duplicate column: err=nil")
	}
}

/*
TestPlanApply_SampleRow covers the reference row: a numeric-looking tax_cat
stays text, the M/D/YYYY date is rewritten, numerics are typed, and the
trailing omitted cells become NULL.
*/
func TestPlanApply_SampleRow(t *testing.T) {
	t.Parallel()

	p, err := CompilePlan(detailTable(), detailHeader)
	if err != nil {
		t.Fatalf("CompilePlan: %v", err)
	}
	res := p.Apply(1, []string{"US0800000000", "18", "FF", "12005", "7/1/2025", "RETAIL DELIVERY FEE", "0", "0.28"})
	if !res.OK() {
		t.Fatalf("Apply errors: %v", res.Errors)
	}
	want := []any{"US0800000000", "18", "FF", int64(12005), schema.Date("2025-07-01"), "RETAIL DELIVERY FEE", float64(0), 0.28}
	for i, w := range want {
		if res.Values[i] != w {
			t.Errorf("Values[%d]=%#v; want %#v", i, res.Values[i], w)
		}
	}
}

func TestPlanApply_PreservesLeadingZerosAndBlanks(t *testing.T) {
	t.Parallel()

	p, _ := CompilePlan(detailTable(), []string{"tax_cat", "tax_auth_id", "effective"})
	res := p.Apply(3, []string{"004", "", "  "})
	if !res.OK() {
		t.Fatalf("Apply errors: %v", res.Errors)
	}
	if res.Values[0] != "004" {
		t.Fatalf("tax_cat=%#v; want \"004\"", res.Values[0])
	}
	if res.Values[1] != nil || res.Values[2] != nil {
		t.Fatalf("blank cells = %#v,%#v; want nil", res.Values[1], res.Values[2])
	}
}

/*
TestPlanApply_ReportsEveryBadCell ensures one row with several bad cells
yields one CoercionError per cell, each carrying the row number.
*/
func TestPlanApply_ReportsEveryBadCell(t *testing.T) {
	t.Parallel()

	p, _ := CompilePlan(detailTable(), []string{"tax_auth_id", "effective", "tax_rate", "active"})
	res := p.Apply(42, []string{"12x", "2/30/2025", "NaN", "maybe"})
	if len(res.Errors) != 4 {
		t.Fatalf("errors=%d; want 4: %v", len(res.Errors), res.Errors)
	}
	for _, e := range res.Errors {
		if e.Row != 42 {
			t.Errorf("%s row=%d; want 42", e.Column, e.Row)
		}
	}
	rec := res.Errors[0].Record()
	if rec.Column != "tax_auth_id" || rec.Value != "12x" || rec.Row != 42 {
		t.Fatalf("Record=%+v", rec)
	}
}

func TestPlanApply_IntegerRange(t *testing.T) {
	t.Parallel()

	tbl := schema.NewTable("t", [2]string{"small", "SMALLINT"}, [2]string{"u", "UTINYINT"})
	p, _ := CompilePlan(tbl, []string{"small", "u"})

	res := p.Apply(1, []string{"40000", "-1"})
	if len(res.Errors) != 2 {
		t.Fatalf("errors=%v; want 2", res.Errors)
	}
	res = p.Apply(2, []string{"+123", "255"})
	if !res.OK() || res.Values[0] != int64(123) || res.Values[1] != int64(255) {
		t.Fatalf("Apply=%+v", res)
	}
}

func TestPlanApply_WideIntegers(t *testing.T) {
	t.Parallel()

	tbl := schema.NewTable("t",
		[2]string{"ub", "UBIGINT"},
		[2]string{"h", "HUGEINT"},
		[2]string{"uh", "UHUGEINT"},
	)
	p, _ := CompilePlan(tbl, []string{"ub", "h", "uh"})

	res := p.Apply(1, []string{"18446744073709551615", "-170141183460469231731687303715884105728", "340282366920938463463374607431768211455"})
	if !res.OK() {
		t.Fatalf("Apply errors: %v", res.Errors)
	}
	if res.Values[0] != uint64(math.MaxUint64) {
		t.Fatalf("UBIGINT=%#v; want max uint64", res.Values[0])
	}
	if h, ok := res.Values[1].(*big.Int); !ok || h.String() != "-170141183460469231731687303715884105728" {
		t.Fatalf("HUGEINT=%#v", res.Values[1])
	}
	if uh, ok := res.Values[2].(*big.Int); !ok || uh.BitLen() != 128 {
		t.Fatalf("UHUGEINT=%#v", res.Values[2])
	}

	res = p.Apply(2, []string{"18446744073709551616", "170141183460469231731687303715884105728", "-1"})
	if len(res.Errors) != 3 {
		t.Fatalf("errors=%v; want 3 out of range", res.Errors)
	}
	for _, e := range res.Errors {
		if !strings.Contains(e.Error(), "out of range") {
			t.Fatalf("error=%v; want out of range", e)
		}
	}
}

func TestPlanApply_DecimalPrecisionWarns(t *testing.T) {
	t.Parallel()

	p, _ := CompilePlan(detailTable(), []string{"fee"})
	res := p.Apply(5, []string{"1234.5"})
	if !res.OK() {
		t.Fatalf("Apply errors: %v", res.Errors)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Row != 5 {
		t.Fatalf("warnings=%+v; want one on row 5", res.Warnings)
	}
	if res.Values[0] != 1234.5 {
		t.Fatalf("value=%v; want written despite warning", res.Values[0])
	}
	if res := p.Apply(6, []string{"999.99"}); len(res.Warnings) != 0 {
		t.Fatalf("999.99 in DECIMAL(5,2) warned: %+v", res.Warnings)
	}
}

func TestCoercionError_Unwrap(t *testing.T) {
	t.Parallel()

	p, _ := CompilePlan(detailTable(), []string{"effective"})
	res := p.Apply(1, []string{"someday"})
	if len(res.Errors) != 1 || !errors.Is(res.Errors[0], ErrDateFormat) {
		t.Fatalf("errors=%v; want ErrDateFormat", res.Errors)
	}
}
