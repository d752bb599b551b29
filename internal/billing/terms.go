package billing

import "time"

// PaymentTerm is a symbolic code mapping to a day offset between the
// invoice date and the due date.
type PaymentTerm string

const (
	TermDueOnReceipt PaymentTerm = "DUE_ON_RECEIPT"
	TermNet7         PaymentTerm = "NET_7"
	TermNet15        PaymentTerm = "NET_15"
	TermNet30        PaymentTerm = "NET_30"
	TermNet45        PaymentTerm = "NET_45"
	TermNet60        PaymentTerm = "NET_60"
)

var termDays = map[PaymentTerm]int{
	TermDueOnReceipt: 0,
	TermNet7:         7,
	TermNet15:        15,
	TermNet30:        30,
	TermNet45:        45,
	TermNet60:        60,
}

var termLabels = map[PaymentTerm]string{
	TermDueOnReceipt: "Due on receipt",
	TermNet7:         "Net 7",
	TermNet15:        "Net 15",
	TermNet30:        "Net 30",
	TermNet45:        "Net 45",
	TermNet60:        "Net 60",
}

// TermDays returns the day offset for a term. Unknown terms resolve to
// zero, same as due on receipt.
func TermDays(term PaymentTerm) int {
	return termDays[term]
}

// TermLabel returns the display label for a term. Unknown terms fall
// back to the raw symbol.
func TermLabel(term PaymentTerm) string {
	if label, ok := termLabels[term]; ok {
		return label
	}
	return string(term)
}

// KnownTerm reports whether the symbol maps to a configured offset.
func KnownTerm(term PaymentTerm) bool {
	_, ok := termDays[term]
	return ok
}

// Terms lists every configured payment term in ascending offset order.
func Terms() []PaymentTerm {
	return []PaymentTerm{TermDueOnReceipt, TermNet7, TermNet15, TermNet30, TermNet45, TermNet60}
}

// DueDate resolves the due date for a term. A zero invoice date means
// "now". Calendar-day addition rolls over month and year boundaries.
func DueDate(term PaymentTerm, invoiceDate time.Time) time.Time {
	base := invoiceDate
	if base.IsZero() {
		base = time.Now()
	}
	return base.AddDate(0, 0, TermDays(term))
}
