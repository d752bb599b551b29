package customer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/medantara/backend-klinik/internal/common"
)

// Customer is a patient record with its coin wallet balance.
type Customer struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Email       string          `json:"email,omitempty"`
	Phone       string          `json:"phone,omitempty"`
	BirthDate   time.Time       `json:"birth_date,omitempty"`
	Address     string          `json:"address,omitempty"`
	CoinBalance decimal.Decimal `json:"coin_balance"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// WalletEntry is a single wallet ledger line.
type WalletEntry struct {
	ID        string          `json:"id"`
	InvoiceID string          `json:"invoice_id,omitempty"`
	Delta     decimal.Decimal `json:"delta"`
	Reason    string          `json:"reason"`
	CreatedAt time.Time       `json:"created_at"`
}

// Input carries create/update fields for a customer.
type Input struct {
	Name      string    `json:"name" validate:"required"`
	Email     string    `json:"email" validate:"omitempty,email"`
	Phone     string    `json:"phone"`
	BirthDate time.Time `json:"birth_date"`
	Address   string    `json:"address"`
}

// Service manages customer records against Postgres.
type Service struct {
	Pool *pgxpool.Pool
}

const columns = `id, name, email, phone, birth_date, address, coin_balance, created_at, updated_at`

// Create inserts a new customer with an empty wallet.
func (s *Service) Create(ctx context.Context, in Input) (Customer, error) {
	row := s.Pool.QueryRow(ctx, `
		INSERT INTO customers (name, email, phone, birth_date, address)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+columns,
		strings.TrimSpace(in.Name), common.PGText(in.Email), common.PGText(in.Phone),
		common.PGDate(in.BirthDate), common.PGText(in.Address))
	c, err := scanCustomer(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Customer{}, common.ErrConflict("EMAIL_TAKEN", "a customer with this email already exists", err)
		}
		return Customer{}, fmt.Errorf("create customer: %w", err)
	}
	return c, nil
}

// Update replaces the editable fields of a customer.
func (s *Service) Update(ctx context.Context, id string, in Input) (Customer, error) {
	uid, err := common.PGUUID(id)
	if err != nil {
		return Customer{}, common.ErrNotFound("customer")
	}
	row := s.Pool.QueryRow(ctx, `
		UPDATE customers
		SET name = $2, email = $3, phone = $4, birth_date = $5, address = $6,
		    updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+columns,
		uid, strings.TrimSpace(in.Name), common.PGText(in.Email), common.PGText(in.Phone),
		common.PGDate(in.BirthDate), common.PGText(in.Address))
	c, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, common.ErrNotFound("customer")
		}
		if isUniqueViolation(err) {
			return Customer{}, common.ErrConflict("EMAIL_TAKEN", "a customer with this email already exists", err)
		}
		return Customer{}, fmt.Errorf("update customer: %w", err)
	}
	return c, nil
}

// Get fetches one customer by id.
func (s *Service) Get(ctx context.Context, id string) (Customer, error) {
	uid, err := common.PGUUID(id)
	if err != nil {
		return Customer{}, common.ErrNotFound("customer")
	}
	row := s.Pool.QueryRow(ctx, `
		SELECT `+columns+`
		FROM customers
		WHERE id = $1 AND deleted_at IS NULL`, uid)
	c, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, common.ErrNotFound("customer")
		}
		return Customer{}, fmt.Errorf("get customer: %w", err)
	}
	return c, nil
}

// List returns a page of customers, optionally filtered by a search
// term over name, email and phone.
func (s *Service) List(ctx context.Context, search string, limit, offset int32) ([]Customer, int64, error) {
	where := "deleted_at IS NULL"
	args := []any{}
	if q := strings.TrimSpace(search); q != "" {
		args = append(args, "%"+q+"%")
		where += " AND (name ILIKE $1 OR email ILIKE $1 OR phone ILIKE $1)"
	}

	var total int64
	if err := s.Pool.QueryRow(ctx,
		`SELECT count(*) FROM customers WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := s.Pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM customers
		WHERE %s
		ORDER BY name
		LIMIT $%d OFFSET $%d`, columns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]Customer, 0, limit)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// Delete soft-deletes a customer. Their invoices remain readable.
func (s *Service) Delete(ctx context.Context, id string) error {
	uid, err := common.PGUUID(id)
	if err != nil {
		return common.ErrNotFound("customer")
	}
	tag, err := s.Pool.Exec(ctx, `
		UPDATE customers SET deleted_at = now()
		WHERE id = $1 AND deleted_at IS NULL`, uid)
	if err != nil {
		return fmt.Errorf("delete customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound("customer")
	}
	return nil
}

// GrantCoins credits (or, with a negative amount, corrects) the wallet
// outside of invoicing, recording the movement in the ledger.
func (s *Service) GrantCoins(ctx context.Context, id string, amount decimal.Decimal, reason string) (Customer, error) {
	if amount.IsZero() {
		return Customer{}, common.ErrValidation("amount must not be zero")
	}
	uid, err := common.PGUUID(id)
	if err != nil {
		return Customer{}, common.ErrNotFound("customer")
	}
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return Customer{}, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE customers
		SET coin_balance = coin_balance + $2, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL AND coin_balance + $2 >= 0
		RETURNING `+columns,
		uid, common.PGNumeric(amount))
	c, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, common.NewAppError("WALLET_ADJUSTMENT", "adjustment would make the balance negative", 422, nil)
		}
		return Customer{}, fmt.Errorf("grant coins: %w", err)
	}
	if reason == "" {
		reason = "manual adjustment"
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO wallet_entries (customer_id, delta, reason)
		VALUES ($1, $2, $3)`, uid, common.PGNumeric(amount), reason); err != nil {
		return Customer{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Customer{}, err
	}
	return c, nil
}

// WalletHistory lists the wallet ledger for a customer, newest first.
func (s *Service) WalletHistory(ctx context.Context, id string, limit, offset int32) ([]WalletEntry, int64, error) {
	uid, err := common.PGUUID(id)
	if err != nil {
		return nil, 0, common.ErrNotFound("customer")
	}
	var total int64
	if err := s.Pool.QueryRow(ctx,
		`SELECT count(*) FROM wallet_entries WHERE customer_id = $1`, uid).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT id, invoice_id, delta, reason, created_at
		FROM wallet_entries
		WHERE customer_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, uid, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []WalletEntry
	for rows.Next() {
		var entry WalletEntry
		var entryID pgtype.UUID
		var invoiceID pgtype.UUID
		var delta pgtype.Numeric
		var createdAt pgtype.Timestamptz
		if err := rows.Scan(&entryID, &invoiceID, &delta, &entry.Reason, &createdAt); err != nil {
			return nil, 0, err
		}
		entry.ID = common.UUIDString(entryID)
		entry.InvoiceID = common.UUIDString(invoiceID)
		entry.Delta = common.DecimalFromPG(delta)
		entry.CreatedAt = common.TimeFromPG(createdAt)
		entries = append(entries, entry)
	}
	return entries, total, rows.Err()
}

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	var id pgtype.UUID
	var email, phone, address pgtype.Text
	var birthDate pgtype.Date
	var balance pgtype.Numeric
	var createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(&id, &c.Name, &email, &phone, &birthDate, &address, &balance, &createdAt, &updatedAt); err != nil {
		return Customer{}, err
	}
	c.ID = common.UUIDString(id)
	c.Email = common.TextString(email)
	c.Phone = common.TextString(phone)
	c.BirthDate = common.DateFromPG(birthDate)
	c.Address = common.TextString(address)
	c.CoinBalance = common.DecimalFromPG(balance)
	c.CreatedAt = common.TimeFromPG(createdAt)
	c.UpdatedAt = common.TimeFromPG(updatedAt)
	return c, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
