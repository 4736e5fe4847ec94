package report

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/budgetbrief/pkg/api"
)

func txn(amount, merchant, desc string) api.Txn {
	return api.Txn{
		Date:        time.Date(2025, 11, 24, 0, 0, 0, 0, time.UTC),
		Amount:      decimal.RequireFromString(amount),
		Merchant:    merchant,
		Description: desc,
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		merchant, desc string
		want           Category
	}{
		{"Tesco", "", CategoryGroceries},
		{"", "SAINSBURYS S/MKTS", CategoryGroceries},
		{"Pret A Manger", "", CategoryFoodDining},
		{"", "UBER EATS ORDER", CategoryFoodDining},
		{"Uber", "UBER *TRIP", CategoryTransport},
		{"", "TFL TRAVEL CH", CategoryTransport},
		{"Octopus Energy", "", CategoryBillsUtilities},
		{"Netflix", "", CategoryEntertainment},
		{"NETFLIX.COM", "NETFLIX SUBSCRIPTION", CategoryEntertainment},
		{"Waterstones", "", CategoryShopping},
		{"", "THAMES WATER DD", CategoryBillsUtilities},
		{"BP", "BP CONNECT 1234", CategoryTransport},
		{"Shellfish Shack", "", CategoryOther},
		{"McDonald's", "", CategoryFoodDining},
		{"", "NANDOS LONDON", CategoryFoodDining},
		{"E.ON NEXT", "", CategoryBillsUtilities},
		{"", "AMAZON PRIME VIDEO", CategoryEntertainment},
		{"Boots", "", CategoryHealth},
		{"Amazon", "AMZN MKTP UK", CategoryShopping},
		{"Mystery Vendor", "", CategoryOther},
	}

	for _, tc := range tests {
		if got := Categorize(txn("-1", tc.merchant, tc.desc)); got != tc.want {
			t.Errorf("Categorize(%q, %q): got %v, want %v", tc.merchant, tc.desc, got, tc.want)
		}
	}
}

func TestCategoryText(t *testing.T) {
	b, err := CategoryBillsUtilities.MarshalText()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != "Bills & Utilities" {
		t.Errorf("marshal: got %s, want Bills & Utilities", b)
	}

	// json.Marshal escapes the ampersand; decoding must still round trip.
	raw, err := json.Marshal(CategoryFoodDining)
	if err != nil {
		t.Fatalf("json marshal: %v", err)
	}
	var back Category
	if err := json.Unmarshal(raw, &back); err != nil || back != CategoryFoodDining {
		t.Errorf("json round trip: got %v, %v", back, err)
	}

	var c Category
	if err := c.UnmarshalText([]byte("Food & Dining")); err != nil || c != CategoryFoodDining {
		t.Errorf("unmarshal: got %v, %v", c, err)
	}
	if err := c.UnmarshalText([]byte("Pets")); err == nil {
		t.Error("unmarshal unknown: want error")
	}
}

func TestSplit(t *testing.T) {
	txns := []api.Txn{
		txn("-12.50", "Pret", ""),
		txn("-100.00", "Ikea", ""),
		txn("-99.99", "Argos", ""),
		txn("250.00", "", "SALARY"),
		txn("-640.00", "Landlord", ""),
		txn("0", "", "card check"),
	}

	p := Split(txns, decimal.NewFromInt(100))

	if len(p.Regular) != 2 || len(p.Large) != 2 || len(p.Credits) != 2 {
		t.Fatalf("sizes: regular %d large %d credits %d", len(p.Regular), len(p.Large), len(p.Credits))
	}
	if p.Large[0].Merchant != "Ikea" {
		t.Errorf("threshold must be inclusive, large: %+v", p.Large)
	}
	if got := Total(p.Regular); !got.Equal(decimal.RequireFromString("112.49")) {
		t.Errorf("regular total: got %s, want 112.49", got)
	}

	none := Split(txns, decimal.Zero)
	if len(none.Large) != 0 || len(none.Regular) != 4 {
		t.Errorf("zero threshold: got %d large, %d regular", len(none.Large), len(none.Regular))
	}
}

func TestMerchantTotals(t *testing.T) {
	txns := []api.Txn{
		txn("-3.20", "Pret", ""),
		txn("-4.00", "", "TFL TRAVEL"),
		txn("-5.80", "PRET", ""),
		txn("-9.00", "Costa", ""),
	}

	got := MerchantTotals(txns)
	if len(got) != 3 {
		t.Fatalf("groups: got %d, want 3", len(got))
	}
	// Tie on 9.00 is broken by name.
	if got[0].Merchant != "Costa" || got[2].Merchant != "TFL TRAVEL" {
		t.Errorf("order: got %v, %v, %v", got[0].Merchant, got[1].Merchant, got[2].Merchant)
	}
	if got[1].Merchant != "Pret" || !got[1].Total.Equal(decimal.RequireFromString("9")) || got[1].Count != 2 {
		t.Errorf("pret: got %+v", got[1])
	}
}

func TestCategoryTotals(t *testing.T) {
	txns := []api.Txn{
		txn("-40.00", "Tesco", ""),
		txn("-10.00", "Pret", ""),
		txn("-15.00", "Waitrose", ""),
		txn("-10.00", "Unknown Shop", ""),
	}

	got := CategoryTotals(txns)
	if len(got) != 3 {
		t.Fatalf("groups: got %d, want 3", len(got))
	}
	if got[0].Category != CategoryGroceries || !got[0].Total.Equal(decimal.NewFromInt(55)) {
		t.Errorf("first: got %+v", got[0])
	}
	// Equal totals fall back to enum order: Other before Food & Dining.
	if got[1].Category != CategoryOther || got[2].Category != CategoryFoodDining {
		t.Errorf("order: got %v, %v", got[1].Category, got[2].Category)
	}
}

func TestTopLarge(t *testing.T) {
	large := []api.Txn{
		txn("-150", "a", ""),
		txn("-900", "b", ""),
		txn("-300", "c", ""),
	}

	top := TopLarge(large, 2)
	if len(top) != 2 || top[0].Merchant != "b" || top[1].Merchant != "c" {
		t.Errorf("top 2: got %+v", top)
	}
	if large[0].Merchant != "a" {
		t.Error("input was reordered")
	}
	if all := TopLarge(large, 0); len(all) != 3 {
		t.Errorf("all: got %d", len(all))
	}
}
