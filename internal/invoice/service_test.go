package invoice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/medantara/backend-klinik/internal/billing"
	"github.com/medantara/backend-klinik/internal/common"
)

type fakeStore struct {
	customer   CustomerRef
	saved      Invoice
	savedItems []Item
	coinDelta  decimal.Decimal
	existing   *Invoice
	payment    *Payment
	refund     decimal.Decimal
}

func (f *fakeStore) GetCustomer(_ context.Context, id pgtype.UUID) (CustomerRef, error) {
	if f.customer.ID != id {
		return CustomerRef{}, pgx.ErrNoRows
	}
	return f.customer, nil
}

func (f *fakeStore) Insert(_ context.Context, inv Invoice, items []Item, coinDebit decimal.Decimal) (Invoice, error) {
	inv.ID = "5f0c0f7e-9a1b-4a79-9df3-0d0c1f6f0001"
	f.saved = inv
	f.savedItems = items
	f.coinDelta = coinDebit
	return inv, nil
}

func (f *fakeStore) Replace(_ context.Context, inv Invoice, items []Item, coinAdjust decimal.Decimal) (Invoice, error) {
	f.saved = inv
	f.savedItems = items
	f.coinDelta = coinAdjust
	return inv, nil
}

func (f *fakeStore) Get(_ context.Context, id pgtype.UUID) (Invoice, error) {
	if f.existing == nil {
		return Invoice{}, pgx.ErrNoRows
	}
	return *f.existing, nil
}

func (f *fakeStore) List(_ context.Context, _ ListFilter) ([]Invoice, int64, error) {
	return nil, 0, nil
}

func (f *fakeStore) AddPayment(_ context.Context, _ pgtype.UUID, p Payment, amountPaid decimal.Decimal, state billing.PayState) (Invoice, error) {
	f.payment = &p
	inv := *f.existing
	inv.AmountPaid = amountPaid
	inv.PaymentState = state
	inv.BalanceDue = billing.BalanceDue(inv.Total, amountPaid)
	return inv, nil
}

func (f *fakeStore) MarkVoid(_ context.Context, _ pgtype.UUID, coinRefund decimal.Decimal) (Invoice, error) {
	f.refund = coinRefund
	inv := *f.existing
	inv.Status = StatusVoid
	return inv, nil
}

const customerID = "0b9a6b1c-1111-4e44-8a77-b7b1c2d3e4f5"

func newService(t *testing.T, balance string) (*Service, *fakeStore) {
	t.Helper()
	uid, err := common.PGUUID(customerID)
	require.NoError(t, err)
	store := &fakeStore{customer: CustomerRef{
		ID:          uid,
		Name:        "Siti Rahma",
		Email:       "siti@example.com",
		CoinBalance: mustDec(t, balance),
	}}
	svc := &Service{
		Store:  store,
		Policy: billing.DefaultCoinPolicy(),
		Now:    func() time.Time { return time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC) },
	}
	return svc, store
}

func mustDec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func referenceInput() Input {
	return Input{
		CustomerID:   customerID,
		PaymentTerms: billing.TermNet30,
		DiscountType: billing.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(10),
		CoinsRedeemed: decimal.NewFromInt(100),
		Items: []ItemInput{
			{Description: "Consultation", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(500), TaxRatePercent: decimal.NewFromInt(10)},
			{Description: "Lab panel", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(1000), TaxRatePercent: decimal.NewFromInt(20)},
		},
	}
}

func TestCreateComputesSummaryServerSide(t *testing.T) {
	svc, store := newService(t, "500")

	inv, err := svc.Create(context.Background(), referenceInput())
	require.NoError(t, err)

	require.True(t, inv.Subtotal.Equal(decimal.NewFromInt(2000)), "subtotal %s", inv.Subtotal)
	require.True(t, inv.TotalTax.Equal(decimal.NewFromInt(360)), "tax %s", inv.TotalTax)
	require.True(t, inv.Discount.Equal(decimal.NewFromInt(200)), "discount %s", inv.Discount)
	require.True(t, inv.Total.Equal(decimal.NewFromInt(2060)), "total %s", inv.Total)
	require.Equal(t, billing.Unpaid, inv.PaymentState)
	require.Equal(t, StatusDraft, inv.Status)
	require.Equal(t, time.Date(2024, 4, 9, 9, 0, 0, 0, time.UTC), inv.DueDate)
	require.Contains(t, inv.Number, "INV-202403-")

	require.True(t, store.coinDelta.Equal(decimal.NewFromInt(100)), "debit %s", store.coinDelta)
	require.Len(t, store.savedItems, 2)
	require.True(t, store.savedItems[0].LineTotal.Equal(decimal.NewFromInt(1000)))
	require.True(t, store.savedItems[1].LineTax.Equal(decimal.NewFromInt(200)))
}

func TestCreateRejectsOverCapRedemption(t *testing.T) {
	svc, _ := newService(t, "5000")
	in := referenceInput()
	// cap is 50% of 1800 = 900
	in.CoinsRedeemed = decimal.NewFromInt(901)

	_, err := svc.Create(context.Background(), in)
	require.Error(t, err)
	require.ErrorIs(t, err, billing.ErrExceedsRedemptionCap)

	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "COIN_REDEMPTION", appErr.Code)
	require.Equal(t, 422, appErr.HTTPStatus)
}

func TestCreateRejectsWalletOverdraw(t *testing.T) {
	svc, _ := newService(t, "50")
	in := referenceInput()

	_, err := svc.Create(context.Background(), in)
	require.ErrorIs(t, err, billing.ErrInsufficientCoinBalance)
}

func TestCreateUnknownCustomer(t *testing.T) {
	svc, _ := newService(t, "500")
	in := referenceInput()
	in.CustomerID = "7777aaaa-bbbb-4ccc-8ddd-eeeeffff0000"

	_, err := svc.Create(context.Background(), in)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, 404, appErr.HTTPStatus)
}

func TestUpdateReleasesPreviousCoins(t *testing.T) {
	svc, store := newService(t, "0")
	prev, err := func() (Invoice, error) {
		s, st := newService(t, "500")
		inv, err := s.Create(context.Background(), referenceInput())
		st.existing = &inv
		return inv, err
	}()
	require.NoError(t, err)

	// Wallet is empty now, but the 100 coins already held by the
	// invoice are available again while editing it.
	store.existing = &prev
	in := referenceInput()
	in.CoinsRedeemed = decimal.NewFromInt(80)

	updated, err := svc.Update(context.Background(), prev.ID, in)
	require.NoError(t, err)
	require.True(t, updated.CoinsRedeemed.Equal(decimal.NewFromInt(80)))
	// net adjustment: release 100, hold 80
	require.True(t, store.coinDelta.Equal(decimal.NewFromInt(-20)), "adjust %s", store.coinDelta)
}

func TestUpdateRejectsVoidInvoice(t *testing.T) {
	svc, store := newService(t, "500")
	store.existing = &Invoice{ID: "x", Status: StatusVoid}

	_, err := svc.Update(context.Background(), customerID, referenceInput())
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "INVOICE_VOID", appErr.Code)
}

func TestRecordPaymentTransitionsState(t *testing.T) {
	svc, store := newService(t, "500")
	store.existing = &Invoice{
		ID:         customerID,
		Status:     StatusIssued,
		Total:      decimal.NewFromInt(2060),
		AmountPaid: decimal.Zero,
	}

	inv, err := svc.RecordPayment(context.Background(), customerID, decimal.NewFromInt(1000), "cash", "")
	require.NoError(t, err)
	require.Equal(t, billing.PartiallyPaid, inv.PaymentState)
	require.True(t, inv.BalanceDue.Equal(decimal.NewFromInt(1060)))

	store.existing = &inv
	inv, err = svc.RecordPayment(context.Background(), customerID, decimal.NewFromInt(1060), "transfer", "settled")
	require.NoError(t, err)
	require.Equal(t, billing.Paid, inv.PaymentState)
	require.True(t, inv.BalanceDue.IsZero())
}

func TestRecordPaymentRejectsNonPositiveAmount(t *testing.T) {
	svc, _ := newService(t, "500")
	_, err := svc.RecordPayment(context.Background(), customerID, decimal.Zero, "cash", "")
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, 400, appErr.HTTPStatus)
}

func TestVoidRefundsCoins(t *testing.T) {
	svc, store := newService(t, "500")
	store.existing = &Invoice{
		ID:            customerID,
		Status:        StatusIssued,
		CoinsRedeemed: decimal.NewFromInt(100),
	}

	inv, err := svc.Void(context.Background(), customerID)
	require.NoError(t, err)
	require.Equal(t, StatusVoid, inv.Status)
	require.True(t, store.refund.Equal(decimal.NewFromInt(100)))
}

func TestVoidIsIdempotent(t *testing.T) {
	svc, store := newService(t, "500")
	store.existing = &Invoice{ID: customerID, Status: StatusVoid}

	inv, err := svc.Void(context.Background(), customerID)
	require.NoError(t, err)
	require.Equal(t, StatusVoid, inv.Status)
	require.True(t, store.refund.IsZero())
}

type failingScheduler struct{ err error }

func (f failingScheduler) ScheduleDueReminder(context.Context, string, string, string, time.Time) error {
	return f.err
}

func TestCreateSurfacesReminderScheduleFailure(t *testing.T) {
	svc, _ := newService(t, "500")
	var reported error
	svc.Reminders = failingScheduler{err: errors.New("task ID conflicts with another task")}
	svc.OnReminderError = func(err error) { reported = err }

	in := referenceInput()
	in.Issue = true
	inv, err := svc.Create(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, StatusIssued, inv.Status)
	require.Error(t, reported)
}

func TestPreviewReportsCoinErrorInline(t *testing.T) {
	svc, _ := newService(t, "500")
	in := referenceInput()
	in.CoinsRedeemed = decimal.NewFromInt(600)

	result, err := svc.Preview(context.Background(), in)
	require.NoError(t, err)
	require.True(t, result.MaxCoins.Equal(decimal.NewFromInt(500)), "max %s", result.MaxCoins)
	require.Equal(t, "insufficient coin balance", result.CoinError)
	require.True(t, result.Summary.Total.Equal(decimal.NewFromInt(2160).Sub(decimal.NewFromInt(600))))
}
