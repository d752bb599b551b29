package billing

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDueDateNet30RollsOverMonth(t *testing.T) {
	got := DueDate(TermNet30, date(2024, time.January, 15))
	if want := date(2024, time.February, 14); !got.Equal(want) {
		t.Fatalf("due date = %s, want %s", got, want)
	}
}

func TestDueDateRollsOverYear(t *testing.T) {
	got := DueDate(TermNet60, date(2024, time.December, 1))
	if want := date(2025, time.January, 30); !got.Equal(want) {
		t.Fatalf("due date = %s, want %s", got, want)
	}
}

func TestDueDateDueOnReceipt(t *testing.T) {
	d := date(2024, time.March, 3)
	if got := DueDate(TermDueOnReceipt, d); !got.Equal(d) {
		t.Fatalf("due date = %s, want invoice date %s", got, d)
	}
}

func TestDueDateUnknownTerm(t *testing.T) {
	d := date(2024, time.March, 3)
	if got := DueDate(PaymentTerm("NET_90"), d); !got.Equal(d) {
		t.Fatalf("unknown term due date = %s, want %s", got, d)
	}
}

func TestDueDateZeroDateUsesNow(t *testing.T) {
	before := time.Now()
	got := DueDate(TermNet7, time.Time{})
	after := time.Now().AddDate(0, 0, 7)
	if got.Before(before.AddDate(0, 0, 7)) || got.After(after) {
		t.Fatalf("due date %s outside expected now+7d window", got)
	}
}

func TestTermLookups(t *testing.T) {
	if TermDays(TermNet45) != 45 {
		t.Fatalf("TermDays(NET_45) = %d, want 45", TermDays(TermNet45))
	}
	if TermDays(PaymentTerm("whatever")) != 0 {
		t.Fatalf("unknown term days should be 0")
	}
	if TermLabel(TermNet15) != "Net 15" {
		t.Fatalf("TermLabel(NET_15) = %q", TermLabel(TermNet15))
	}
	if TermLabel(PaymentTerm("CUSTOM")) != "CUSTOM" {
		t.Fatalf("unknown term label should echo the symbol")
	}
	if KnownTerm(PaymentTerm("CUSTOM")) {
		t.Fatalf("CUSTOM should not be a known term")
	}
	if len(Terms()) != 6 {
		t.Fatalf("expected 6 configured terms")
	}
}
