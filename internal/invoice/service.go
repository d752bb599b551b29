package invoice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/medantara/backend-klinik/internal/billing"
	"github.com/medantara/backend-klinik/internal/common"
)

// Status is the invoice lifecycle state. Payment progress is tracked
// separately as billing.PayState.
type Status string

const (
	StatusDraft  Status = "DRAFT"
	StatusIssued Status = "ISSUED"
	StatusVoid   Status = "VOID"
)

// Item is one billable row as stored and returned by the API.
type Item struct {
	ID             string          `json:"id,omitempty"`
	Description    string          `json:"description"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	TaxRatePercent decimal.Decimal `json:"tax_rate"`
	LineTotal      decimal.Decimal `json:"line_total"`
	LineTax        decimal.Decimal `json:"line_tax"`
}

// Payment is a recorded settlement against an invoice.
type Payment struct {
	ID     string          `json:"id"`
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method"`
	PaidAt time.Time       `json:"paid_at"`
	Note   string          `json:"note,omitempty"`
}

// Invoice is the API representation of a stored invoice together with
// its derived summary.
type Invoice struct {
	ID            string               `json:"id"`
	Number        string               `json:"number"`
	CustomerID    string               `json:"customer_id"`
	CustomerName  string               `json:"customer_name,omitempty"`
	Status        Status               `json:"status"`
	PaymentState  billing.PayState     `json:"payment_state"`
	PaymentTerms  billing.PaymentTerm  `json:"payment_terms"`
	InvoiceDate   time.Time            `json:"invoice_date"`
	DueDate       time.Time            `json:"due_date"`
	DiscountType  billing.DiscountType `json:"discount_type,omitempty"`
	DiscountValue decimal.Decimal      `json:"discount_value"`
	CoinsRedeemed decimal.Decimal      `json:"coins_redeemed"`
	Subtotal      decimal.Decimal      `json:"subtotal"`
	TotalTax      decimal.Decimal      `json:"total_tax"`
	Discount      decimal.Decimal      `json:"discount"`
	Total         decimal.Decimal      `json:"total"`
	AmountPaid    decimal.Decimal      `json:"amount_paid"`
	BalanceDue    decimal.Decimal      `json:"balance_due"`
	Notes         string               `json:"notes,omitempty"`
	Items         []Item               `json:"items,omitempty"`
	Payments      []Payment            `json:"payments,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// ItemInput is a line item as submitted by the console.
type ItemInput struct {
	Description    string          `json:"description" validate:"required"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	TaxRatePercent decimal.Decimal `json:"tax_rate" validate:"min=0,max=100"`
}

// Input carries everything needed to create or update an invoice.
type Input struct {
	CustomerID    string               `json:"customer_id" validate:"required,uuid4"`
	InvoiceDate   time.Time            `json:"invoice_date"`
	PaymentTerms  billing.PaymentTerm  `json:"payment_terms"`
	DiscountType  billing.DiscountType `json:"discount_type"`
	DiscountValue decimal.Decimal      `json:"discount_value"`
	CoinsRedeemed decimal.Decimal      `json:"coins_redeemed"`
	Notes         string               `json:"notes"`
	Issue         bool                 `json:"issue"`
	Items         []ItemInput          `json:"items" validate:"min=1,dive"`
}

// ListFilter narrows invoice listings.
type ListFilter struct {
	CustomerID string
	Status     Status
	Limit      int32
	Offset     int32
}

// CustomerRef is the wallet-bearing customer summary the service needs
// when resolving coin redemption.
type CustomerRef struct {
	ID          pgtype.UUID
	Name        string
	Email       string
	CoinBalance decimal.Decimal
}

// Store is the persistence contract the service depends on. The pgx
// implementation lives in store.go; tests substitute a fake.
type Store interface {
	GetCustomer(ctx context.Context, id pgtype.UUID) (CustomerRef, error)
	Insert(ctx context.Context, inv Invoice, items []Item, coinDebit decimal.Decimal) (Invoice, error)
	Replace(ctx context.Context, inv Invoice, items []Item, coinAdjust decimal.Decimal) (Invoice, error)
	Get(ctx context.Context, id pgtype.UUID) (Invoice, error)
	List(ctx context.Context, filter ListFilter) ([]Invoice, int64, error)
	AddPayment(ctx context.Context, invoiceID pgtype.UUID, p Payment, amountPaid decimal.Decimal, state billing.PayState) (Invoice, error)
	MarkVoid(ctx context.Context, id pgtype.UUID, coinRefund decimal.Decimal) (Invoice, error)
}

// Scheduler enqueues due-date reminders for issued invoices.
type Scheduler interface {
	ScheduleDueReminder(ctx context.Context, invoiceID, number, customerEmail string, dueDate time.Time) error
}

// Service orchestrates invoice persistence around the pure billing
// engine. The engine output is authoritative: client-side numbers are
// never trusted.
type Service struct {
	Store     Store
	Policy    billing.CoinPolicy
	Reminders Scheduler
	// OnReminderError reports a failed reminder enqueue; scheduling is
	// best-effort and never blocks the write itself.
	OnReminderError func(error)
	Now             func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Preview recomputes the live summary for an in-progress form without
// touching storage. It mirrors what Create would persist and reports
// the redemption ceiling for the customer's wallet.
type PreviewResult struct {
	Summary      billing.Summary     `json:"summary"`
	MaxCoins     decimal.Decimal     `json:"max_coins"`
	CoinError    string              `json:"coin_error,omitempty"`
	DueDate      time.Time           `json:"due_date"`
	PaymentTerms billing.PaymentTerm `json:"payment_terms"`
}

// Preview derives the summary for the given input. Coin validation
// failures are reported as a message, not an error: the form renders
// them inline.
func (s *Service) Preview(ctx context.Context, in Input) (PreviewResult, error) {
	if s == nil || s.Store == nil {
		return PreviewResult{}, errors.New("invoice service not configured")
	}
	customer, err := s.lookupCustomer(ctx, in.CustomerID)
	if err != nil {
		return PreviewResult{}, err
	}
	summary := s.compute(in)
	maxCoins := s.Policy.MaxRedeemable(customer.CoinBalance, summary.Subtotal, summary.Discount)

	result := PreviewResult{
		Summary:      summary,
		MaxCoins:     maxCoins,
		DueDate:      billing.DueDate(in.PaymentTerms, s.invoiceDate(in)),
		PaymentTerms: in.PaymentTerms,
	}
	if err := billing.ValidateRedemption(in.CoinsRedeemed, maxCoins, customer.CoinBalance); err != nil {
		result.CoinError = err.Error()
	}
	return result, nil
}

// Create persists a new invoice. Coin redemption is validated against
// the customer wallet and debited in the same transaction as the
// invoice insert.
func (s *Service) Create(ctx context.Context, in Input) (Invoice, error) {
	if s == nil || s.Store == nil {
		return Invoice{}, errors.New("invoice service not configured")
	}
	customer, err := s.lookupCustomer(ctx, in.CustomerID)
	if err != nil {
		return Invoice{}, err
	}
	inv, coinDebit, err := s.build(in, customer)
	if err != nil {
		return Invoice{}, err
	}
	inv.Number = s.nextNumber()
	items := buildItems(in.Items)

	created, err := s.Store.Insert(ctx, inv, items, coinDebit)
	if err != nil {
		return Invoice{}, fmt.Errorf("insert invoice: %w", err)
	}
	s.scheduleReminder(ctx, created, customer.Email)
	return created, nil
}

// Update replaces a draft or issued invoice in full. The previously
// redeemed coins are released and the new redemption debited as one
// wallet adjustment.
func (s *Service) Update(ctx context.Context, id string, in Input) (Invoice, error) {
	if s == nil || s.Store == nil {
		return Invoice{}, errors.New("invoice service not configured")
	}
	uid, err := common.PGUUID(id)
	if err != nil {
		return Invoice{}, common.ErrNotFound("invoice")
	}
	existing, err := s.Store.Get(ctx, uid)
	if err != nil {
		return Invoice{}, notFoundOr(err)
	}
	if existing.Status == StatusVoid {
		return Invoice{}, common.NewAppError("INVOICE_VOID", "void invoices cannot be edited", 409, nil)
	}
	if existing.PaymentState == billing.Paid {
		return Invoice{}, common.NewAppError("INVOICE_SETTLED", "settled invoices cannot be edited", 409, nil)
	}
	customer, err := s.lookupCustomer(ctx, in.CustomerID)
	if err != nil {
		return Invoice{}, err
	}
	// Validate against the balance as it would be after releasing the
	// coins already held by this invoice.
	customer.CoinBalance = customer.CoinBalance.Add(s.Policy.CurrencyValue(existing.CoinsRedeemed))

	inv, newDebit, err := s.build(in, customer)
	if err != nil {
		return Invoice{}, err
	}
	inv.ID = existing.ID
	inv.Number = existing.Number
	inv.AmountPaid = existing.AmountPaid
	inv.PaymentState = billing.PaymentState(inv.Total, inv.AmountPaid)
	inv.BalanceDue = billing.BalanceDue(inv.Total, inv.AmountPaid)

	coinAdjust := newDebit.Sub(s.Policy.CurrencyValue(existing.CoinsRedeemed))
	updated, err := s.Store.Replace(ctx, inv, buildItems(in.Items), coinAdjust)
	if err != nil {
		return Invoice{}, fmt.Errorf("update invoice: %w", err)
	}
	s.scheduleReminder(ctx, updated, customer.Email)
	return updated, nil
}

// Get fetches one invoice with its line items and payments.
func (s *Service) Get(ctx context.Context, id string) (Invoice, error) {
	uid, err := common.PGUUID(id)
	if err != nil {
		return Invoice{}, common.ErrNotFound("invoice")
	}
	inv, err := s.Store.Get(ctx, uid)
	if err != nil {
		return Invoice{}, notFoundOr(err)
	}
	return inv, nil
}

// List returns a page of invoices matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Invoice, int64, error) {
	return s.Store.List(ctx, filter)
}

// RecordPayment appends a payment and recomputes the derived balance
// and payment state.
func (s *Service) RecordPayment(ctx context.Context, id string, amount decimal.Decimal, method, note string) (Invoice, error) {
	if !amount.IsPositive() {
		return Invoice{}, common.ErrValidation("payment amount must be positive")
	}
	uid, err := common.PGUUID(id)
	if err != nil {
		return Invoice{}, common.ErrNotFound("invoice")
	}
	existing, err := s.Store.Get(ctx, uid)
	if err != nil {
		return Invoice{}, notFoundOr(err)
	}
	if existing.Status == StatusVoid {
		return Invoice{}, common.NewAppError("INVOICE_VOID", "void invoices cannot accept payments", 409, nil)
	}
	newPaid := existing.AmountPaid.Add(amount)
	state := billing.PaymentState(existing.Total, newPaid)
	payment := Payment{
		ID:     uuid.NewString(),
		Amount: amount,
		Method: strings.TrimSpace(method),
		PaidAt: s.now(),
		Note:   strings.TrimSpace(note),
	}
	updated, err := s.Store.AddPayment(ctx, uid, payment, newPaid, state)
	if err != nil {
		return Invoice{}, fmt.Errorf("record payment: %w", err)
	}
	return updated, nil
}

// Void cancels an invoice and releases any redeemed coins back to the
// customer wallet.
func (s *Service) Void(ctx context.Context, id string) (Invoice, error) {
	uid, err := common.PGUUID(id)
	if err != nil {
		return Invoice{}, common.ErrNotFound("invoice")
	}
	existing, err := s.Store.Get(ctx, uid)
	if err != nil {
		return Invoice{}, notFoundOr(err)
	}
	if existing.Status == StatusVoid {
		return existing, nil
	}
	refund := s.Policy.CurrencyValue(existing.CoinsRedeemed)
	voided, err := s.Store.MarkVoid(ctx, uid, refund)
	if err != nil {
		return Invoice{}, fmt.Errorf("void invoice: %w", err)
	}
	return voided, nil
}

// build runs the engine, validates the coin redemption and assembles
// the invoice row. The returned debit is the currency value held
// against the wallet.
func (s *Service) build(in Input, customer CustomerRef) (Invoice, decimal.Decimal, error) {
	summary := s.compute(in)
	maxCoins := s.Policy.MaxRedeemable(customer.CoinBalance, summary.Subtotal, summary.Discount)
	if err := billing.ValidateRedemption(in.CoinsRedeemed, maxCoins, customer.CoinBalance); err != nil {
		return Invoice{}, decimal.Zero, common.NewAppError("COIN_REDEMPTION", err.Error(), 422, err)
	}

	invoiceDate := s.invoiceDate(in)
	status := StatusDraft
	if in.Issue {
		status = StatusIssued
	}
	inv := Invoice{
		CustomerID:    common.UUIDString(customer.ID),
		CustomerName:  customer.Name,
		Status:        status,
		PaymentState:  billing.PaymentState(summary.Total, decimal.Zero),
		PaymentTerms:  in.PaymentTerms,
		InvoiceDate:   invoiceDate,
		DueDate:       billing.DueDate(in.PaymentTerms, invoiceDate),
		DiscountType:  in.DiscountType,
		DiscountValue: in.DiscountValue,
		CoinsRedeemed: in.CoinsRedeemed,
		Subtotal:      summary.Subtotal,
		TotalTax:      summary.TotalTax,
		Discount:      summary.Discount,
		Total:         summary.Total,
		AmountPaid:    decimal.Zero,
		BalanceDue:    summary.Total,
		Notes:         strings.TrimSpace(in.Notes),
	}
	return inv, s.Policy.CurrencyValue(in.CoinsRedeemed), nil
}

func (s *Service) compute(in Input) billing.Summary {
	items := make([]billing.LineItem, 0, len(in.Items))
	for _, item := range in.Items {
		items = append(items, billing.LineItem{
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			TaxRatePercent: item.TaxRatePercent,
		})
	}
	return billing.Compute(billing.Input{
		Items:         items,
		Discount:      billing.DiscountSpec{Type: in.DiscountType, Value: in.DiscountValue},
		CoinsRedeemed: s.Policy.CurrencyValue(in.CoinsRedeemed),
	})
}

func (s *Service) invoiceDate(in Input) time.Time {
	if in.InvoiceDate.IsZero() {
		return s.now()
	}
	return in.InvoiceDate
}

func (s *Service) lookupCustomer(ctx context.Context, customerID string) (CustomerRef, error) {
	uid, err := common.PGUUID(customerID)
	if err != nil {
		return CustomerRef{}, common.ErrValidation("customer_id must be a valid uuid")
	}
	customer, err := s.Store.GetCustomer(ctx, uid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CustomerRef{}, common.ErrNotFound("customer")
		}
		return CustomerRef{}, err
	}
	return customer, nil
}

func (s *Service) scheduleReminder(ctx context.Context, inv Invoice, email string) {
	if s.Reminders == nil || inv.Status != StatusIssued || email == "" {
		return
	}
	if err := s.Reminders.ScheduleDueReminder(ctx, inv.ID, inv.Number, email, inv.DueDate); err != nil && s.OnReminderError != nil {
		s.OnReminderError(err)
	}
}

func (s *Service) nextNumber() string {
	stamp := s.now().Format("200601")
	suffix := strings.ToUpper(uuid.NewString()[:8])
	return fmt.Sprintf("INV-%s-%s", stamp, suffix)
}

func buildItems(inputs []ItemInput) []Item {
	items := make([]Item, 0, len(inputs))
	for _, in := range inputs {
		li := billing.LineItem{Quantity: in.Quantity, UnitPrice: in.UnitPrice, TaxRatePercent: in.TaxRatePercent}
		items = append(items, Item{
			Description:    strings.TrimSpace(in.Description),
			Quantity:       in.Quantity,
			UnitPrice:      in.UnitPrice,
			TaxRatePercent: in.TaxRatePercent,
			LineTotal:      billing.LineTotal(li),
			LineTax:        billing.LineTax(li),
		})
	}
	return items
}

func notFoundOr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return common.ErrNotFound("invoice")
	}
	return err
}
