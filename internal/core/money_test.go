package core

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseMoney(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{".5", 50, true},
		{" 2.50 ", 250, true},
		{"-12.50", -1250, true},
		{"0", 0, true},
		{"1000000", 100000000, true},
		{"1.005", 0, false}, // more than two fractional digits
		{"+1", 0, false},
		{"1.", 0, false},
		{"-", 0, false},
		{"1e3", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
		{"99999999999999999999", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseMoney(tc.in)
		if tc.ok {
			if err != nil || got.Cents != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got.Cents, err)
			}
		} else if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%q expected ErrInvalidAmount, got %v", tc.in, err)
		}
	}
}

func TestParseAmountRejectsNonPositive(t *testing.T) {
	for _, in := range []string{"0", "0.00", "-1", "-0.01"} {
		if _, err := ParseAmount(in); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%q expected ErrInvalidAmount, got %v", in, err)
		}
	}
	m, err := ParseAmount("12.50")
	if err != nil || m.Cents != 1250 {
		t.Fatalf("expected 1250, got %d (err=%v)", m.Cents, err)
	}
}

func TestMoneyString(t *testing.T) {
	cases := map[int64]string{
		0:       "0.00",
		5:       "0.05",
		-5:      "-0.05",
		1250:    "12.50",
		98750:   "987.50",
		-100000: "-1000.00",
	}
	for cents, want := range cases {
		if got := Cents(cents).String(); got != want {
			t.Fatalf("Cents(%d).String() = %q, want %q", cents, got, want)
		}
	}
}

func TestMoneyRoundTrip(t *testing.T) {
	values := []int64{0, 1, -1, 99, 100, 101, -12345, 98750, MaxAmountCents, -MaxAmountCents}
	for c := int64(-2500); c <= 2500; c += 7 {
		values = append(values, c)
	}
	for _, c := range values {
		m := Cents(c)
		back, err := ParseMoney(m.String())
		if err != nil || back != m {
			t.Fatalf("round trip of %d via %q gave %d (err=%v)", c, m.String(), back.Cents, err)
		}
	}
}

func TestMoneyArithmeticIsExact(t *testing.T) {
	a, b := Cents(1010), Cents(2020)
	if a.Add(b).Sub(b) != a {
		t.Fatalf("a + b - b != a")
	}
	// 0.10 added 1000 times equals 100.00 exactly.
	var total Money
	tenCents := Cents(10)
	for i := 0; i < 1000; i++ {
		total = total.Add(tenCents)
	}
	if total.String() != "100.00" {
		t.Fatalf("expected 100.00, got %s", total)
	}
	if Sum(Cents(1), Cents(2), Cents(3)) != Cents(6) {
		t.Fatalf("Sum mismatch")
	}
	if Cents(1).Cmp(Cents(2)) != -1 || Cents(2).Cmp(Cents(1)) != 1 || Cents(2).Cmp(Cents(2)) != 0 {
		t.Fatalf("Cmp mismatch")
	}
}

func TestCheckedAdd(t *testing.T) {
	if _, err := Cents(MaxBalanceCents).CheckedAdd(Cents(1)); !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := Cents(-MaxBalanceCents).CheckedAdd(Cents(-1)); !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	got, err := Cents(100).CheckedAdd(Cents(-250))
	if err != nil || got != Cents(-150) {
		t.Fatalf("expected -150, got %d (err=%v)", got.Cents, err)
	}
}

func TestMoneyDecimal(t *testing.T) {
	if !Cents(98750).Decimal().Equal(decimal.RequireFromString("987.50")) {
		t.Fatalf("unexpected decimal %s", Cents(98750).Decimal())
	}
	m, err := MoneyFromDecimal(decimal.RequireFromString("12.5"))
	if err != nil || m != Cents(1250) {
		t.Fatalf("expected 1250, got %d (err=%v)", m.Cents, err)
	}
	if _, err := MoneyFromDecimal(decimal.RequireFromString("0.001")); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected sub-cent rejection, got %v", err)
	}
}

func TestMoneyJSON(t *testing.T) {
	var payload struct {
		A Money `json:"a"`
		B Money `json:"b"`
	}
	if err := json.Unmarshal([]byte(`{"a":"12.50","b":12.5}`), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.A != Cents(1250) || payload.B != Cents(1250) {
		t.Fatalf("unexpected values %d %d", payload.A.Cents, payload.B.Cents)
	}
	out, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"a":"12.50","b":"12.50"}` {
		t.Fatalf("unexpected json %s", out)
	}
	if err := json.Unmarshal([]byte(`{"a":1.005}`), &payload); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}
