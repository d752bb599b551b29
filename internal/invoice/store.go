package invoice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/medantara/backend-klinik/internal/billing"
	"github.com/medantara/backend-klinik/internal/common"
)

// PGStore is the pgx-backed Store. Wallet movements ride in the same
// transaction as the invoice write so a failed insert never leaks a
// coin debit.
type PGStore struct {
	Pool *pgxpool.Pool
}

const invoiceColumns = `
	i.id, i.number, i.customer_id, c.name, i.status, i.payment_state,
	i.payment_terms, i.invoice_date, i.due_date,
	i.discount_type, i.discount_value, i.coins_redeemed,
	i.subtotal, i.total_tax, i.discount, i.total, i.amount_paid, i.notes,
	i.created_at, i.updated_at`

func (s *PGStore) GetCustomer(ctx context.Context, id pgtype.UUID) (CustomerRef, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, name, email, coin_balance
		FROM customers
		WHERE id = $1 AND deleted_at IS NULL`, id)

	var ref CustomerRef
	var email pgtype.Text
	var balance pgtype.Numeric
	if err := row.Scan(&ref.ID, &ref.Name, &email, &balance); err != nil {
		return CustomerRef{}, err
	}
	ref.Email = common.TextString(email)
	ref.CoinBalance = common.DecimalFromPG(balance)
	return ref, nil
}

func (s *PGStore) Insert(ctx context.Context, inv Invoice, items []Item, coinDebit decimal.Decimal) (Invoice, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return Invoice{}, err
	}
	defer tx.Rollback(ctx)

	customerID, err := common.PGUUID(inv.CustomerID)
	if err != nil {
		return Invoice{}, err
	}
	var id pgtype.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO invoices (
			number, customer_id, status, payment_state, payment_terms,
			invoice_date, due_date, discount_type, discount_value,
			coins_redeemed, subtotal, total_tax, discount, total,
			amount_paid, notes
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,0,$15)
		RETURNING id`,
		inv.Number, customerID, inv.Status, inv.PaymentState, inv.PaymentTerms,
		common.PGDate(inv.InvoiceDate), common.PGDate(inv.DueDate),
		common.PGText(string(inv.DiscountType)), common.PGNumeric(inv.DiscountValue),
		common.PGNumeric(inv.CoinsRedeemed), common.PGNumeric(inv.Subtotal),
		common.PGNumeric(inv.TotalTax), common.PGNumeric(inv.Discount),
		common.PGNumeric(inv.Total), common.PGText(inv.Notes),
	).Scan(&id)
	if err != nil {
		return Invoice{}, err
	}

	if err := insertItems(ctx, tx, id, items); err != nil {
		return Invoice{}, err
	}
	if err := moveCoins(ctx, tx, customerID, id, coinDebit.Neg(), "invoice redemption"); err != nil {
		return Invoice{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Invoice{}, err
	}
	return s.Get(ctx, id)
}

func (s *PGStore) Replace(ctx context.Context, inv Invoice, items []Item, coinAdjust decimal.Decimal) (Invoice, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return Invoice{}, err
	}
	defer tx.Rollback(ctx)

	id, err := common.PGUUID(inv.ID)
	if err != nil {
		return Invoice{}, err
	}
	customerID, err := common.PGUUID(inv.CustomerID)
	if err != nil {
		return Invoice{}, err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE invoices SET
			customer_id = $2, status = $3, payment_state = $4,
			payment_terms = $5, invoice_date = $6, due_date = $7,
			discount_type = $8, discount_value = $9, coins_redeemed = $10,
			subtotal = $11, total_tax = $12, discount = $13, total = $14,
			notes = $15, updated_at = now()
		WHERE id = $1 AND status <> 'VOID'`,
		id, customerID, inv.Status, inv.PaymentState, inv.PaymentTerms,
		common.PGDate(inv.InvoiceDate), common.PGDate(inv.DueDate),
		common.PGText(string(inv.DiscountType)), common.PGNumeric(inv.DiscountValue),
		common.PGNumeric(inv.CoinsRedeemed), common.PGNumeric(inv.Subtotal),
		common.PGNumeric(inv.TotalTax), common.PGNumeric(inv.Discount),
		common.PGNumeric(inv.Total), common.PGText(inv.Notes),
	)
	if err != nil {
		return Invoice{}, err
	}
	if tag.RowsAffected() == 0 {
		return Invoice{}, pgx.ErrNoRows
	}

	if _, err := tx.Exec(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, id); err != nil {
		return Invoice{}, err
	}
	if err := insertItems(ctx, tx, id, items); err != nil {
		return Invoice{}, err
	}
	if err := moveCoins(ctx, tx, customerID, id, coinAdjust.Neg(), "invoice redemption adjusted"); err != nil {
		return Invoice{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Invoice{}, err
	}
	return s.Get(ctx, id)
}

func (s *PGStore) Get(ctx context.Context, id pgtype.UUID) (Invoice, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices i
		JOIN customers c ON c.id = i.customer_id
		WHERE i.id = $1`, id)
	inv, err := scanInvoice(row)
	if err != nil {
		return Invoice{}, err
	}

	items, err := s.listItems(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	inv.Items = items

	payments, err := s.listPayments(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	inv.Payments = payments
	return inv, nil
}

func (s *PGStore) List(ctx context.Context, filter ListFilter) ([]Invoice, int64, error) {
	where := []string{"1=1"}
	args := []any{}
	if filter.CustomerID != "" {
		uid, err := common.PGUUID(filter.CustomerID)
		if err != nil {
			return nil, 0, common.ErrValidation("customer_id must be a valid uuid")
		}
		args = append(args, uid)
		where = append(where, fmt.Sprintf("i.customer_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("i.status = $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int64
	if err := s.Pool.QueryRow(ctx,
		`SELECT count(*) FROM invoices i WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filter.Limit, filter.Offset)
	rows, err := s.Pool.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM invoices i
		JOIN customers c ON c.id = i.customer_id
		WHERE %s
		ORDER BY i.invoice_date DESC, i.created_at DESC
		LIMIT $%d OFFSET $%d`, invoiceColumns, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]Invoice, 0, filter.Limit)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, inv)
	}
	return out, total, rows.Err()
}

func (s *PGStore) AddPayment(ctx context.Context, invoiceID pgtype.UUID, p Payment, amountPaid decimal.Decimal, state billing.PayState) (Invoice, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return Invoice{}, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO payments (id, invoice_id, amount, method, paid_at, note)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, invoiceID, common.PGNumeric(p.Amount), p.Method,
		common.PGTimestamp(p.PaidAt), common.PGText(p.Note),
	); err != nil {
		return Invoice{}, err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE invoices
		SET amount_paid = $2, payment_state = $3, updated_at = now()
		WHERE id = $1 AND status <> 'VOID'`,
		invoiceID, common.PGNumeric(amountPaid), state)
	if err != nil {
		return Invoice{}, err
	}
	if tag.RowsAffected() == 0 {
		return Invoice{}, pgx.ErrNoRows
	}
	if err := tx.Commit(ctx); err != nil {
		return Invoice{}, err
	}
	return s.Get(ctx, invoiceID)
}

func (s *PGStore) MarkVoid(ctx context.Context, id pgtype.UUID, coinRefund decimal.Decimal) (Invoice, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return Invoice{}, err
	}
	defer tx.Rollback(ctx)

	var customerID pgtype.UUID
	err = tx.QueryRow(ctx, `
		UPDATE invoices
		SET status = 'VOID', updated_at = now()
		WHERE id = $1 AND status <> 'VOID'
		RETURNING customer_id`, id).Scan(&customerID)
	if err != nil {
		return Invoice{}, err
	}
	if err := moveCoins(ctx, tx, customerID, id, coinRefund, "invoice voided"); err != nil {
		return Invoice{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Invoice{}, err
	}
	return s.Get(ctx, id)
}

func (s *PGStore) listItems(ctx context.Context, invoiceID pgtype.UUID) ([]Item, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, description, quantity, unit_price, tax_rate_percent,
		       line_total, line_tax
		FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY position`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var id pgtype.UUID
		var item Item
		var qty, price, rate, lineTotal, lineTax pgtype.Numeric
		if err := rows.Scan(&id, &item.Description, &qty, &price, &rate, &lineTotal, &lineTax); err != nil {
			return nil, err
		}
		item.ID = common.UUIDString(id)
		item.Quantity = common.DecimalFromPG(qty)
		item.UnitPrice = common.DecimalFromPG(price)
		item.TaxRatePercent = common.DecimalFromPG(rate)
		item.LineTotal = common.DecimalFromPG(lineTotal)
		item.LineTax = common.DecimalFromPG(lineTax)
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PGStore) listPayments(ctx context.Context, invoiceID pgtype.UUID) ([]Payment, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, amount, method, paid_at, note
		FROM payments
		WHERE invoice_id = $1
		ORDER BY paid_at`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var id pgtype.UUID
		var p Payment
		var amount pgtype.Numeric
		var paidAt pgtype.Timestamptz
		var note pgtype.Text
		if err := rows.Scan(&id, &amount, &p.Method, &paidAt, &note); err != nil {
			return nil, err
		}
		p.ID = common.UUIDString(id)
		p.Amount = common.DecimalFromPG(amount)
		p.PaidAt = common.TimeFromPG(paidAt)
		p.Note = common.TextString(note)
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func insertItems(ctx context.Context, tx pgx.Tx, invoiceID pgtype.UUID, items []Item) error {
	for pos, item := range items {
		_, err := tx.Exec(ctx, `
			INSERT INTO invoice_items (
				invoice_id, position, description, quantity, unit_price,
				tax_rate_percent, line_total, line_tax
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			invoiceID, pos, item.Description,
			common.PGNumeric(item.Quantity), common.PGNumeric(item.UnitPrice),
			common.PGNumeric(item.TaxRatePercent),
			common.PGNumeric(item.LineTotal), common.PGNumeric(item.LineTax))
		if err != nil {
			return err
		}
	}
	return nil
}

// moveCoins applies a signed wallet delta and records it in the
// ledger. A negative delta (a debit) must not push the balance below
// zero; the guarded update catches a wallet drained between the
// service's validation and the commit.
func moveCoins(ctx context.Context, tx pgx.Tx, customerID, invoiceID pgtype.UUID, delta decimal.Decimal, reason string) error {
	if delta.IsZero() {
		return nil
	}
	tag, err := tx.Exec(ctx, `
		UPDATE customers
		SET coin_balance = coin_balance + $2, updated_at = now()
		WHERE id = $1 AND coin_balance + $2 >= 0`,
		customerID, common.PGNumeric(delta))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.New("coin balance would go negative")
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO wallet_entries (customer_id, invoice_id, delta, reason)
		VALUES ($1, $2, $3, $4)`,
		customerID, invoiceID, common.PGNumeric(delta), reason)
	return err
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	var id, customerID pgtype.UUID
	var discountType, notes pgtype.Text
	var invoiceDate, dueDate pgtype.Date
	var discountValue, coins, subtotal, totalTax, discount, total, paid pgtype.Numeric
	var createdAt, updatedAt pgtype.Timestamptz

	err := row.Scan(
		&id, &inv.Number, &customerID, &inv.CustomerName, &inv.Status, &inv.PaymentState,
		&inv.PaymentTerms, &invoiceDate, &dueDate,
		&discountType, &discountValue, &coins,
		&subtotal, &totalTax, &discount, &total, &paid, &notes,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return Invoice{}, err
	}
	inv.ID = common.UUIDString(id)
	inv.CustomerID = common.UUIDString(customerID)
	inv.DiscountType = billing.DiscountType(common.TextString(discountType))
	inv.InvoiceDate = common.DateFromPG(invoiceDate)
	inv.DueDate = common.DateFromPG(dueDate)
	inv.DiscountValue = common.DecimalFromPG(discountValue)
	inv.CoinsRedeemed = common.DecimalFromPG(coins)
	inv.Subtotal = common.DecimalFromPG(subtotal)
	inv.TotalTax = common.DecimalFromPG(totalTax)
	inv.Discount = common.DecimalFromPG(discount)
	inv.Total = common.DecimalFromPG(total)
	inv.AmountPaid = common.DecimalFromPG(paid)
	inv.BalanceDue = billing.BalanceDue(inv.Total, inv.AmountPaid)
	inv.Notes = common.TextString(notes)
	inv.CreatedAt = common.TimeFromPG(createdAt)
	inv.UpdatedAt = common.TimeFromPG(updatedAt)
	return inv, nil
}
