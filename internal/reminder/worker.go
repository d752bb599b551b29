package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/medantara/backend-klinik/internal/common"
	"github.com/medantara/backend-klinik/internal/lock"
	"github.com/medantara/backend-klinik/internal/obs"
)

// Processor handles reminder tasks on the worker side.
type Processor struct {
	Pool   *pgxpool.Pool
	Mailer common.EmailSender
	Logger zerolog.Logger
	Lock   *lock.Locker
}

// Mux returns the task mux for the reminder queue.
func (p *Processor) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeInvoiceDue, p.HandleInvoiceDue)
	mux.HandleFunc(TypeOverdueScan, p.HandleOverdueScan)
	return mux
}

// HandleInvoiceDue sends one due-date reminder. Invoices settled or
// voided since the reminder was scheduled are skipped silently.
func (p *Processor) HandleInvoiceDue(ctx context.Context, t *asynq.Task) error {
	var payload DuePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode due payload: %w", err)
	}
	id, err := common.PGUUID(payload.InvoiceID)
	if err != nil {
		return fmt.Errorf("bad invoice id %q: %w", payload.InvoiceID, err)
	}

	var status, state string
	err = p.Pool.QueryRow(ctx, `
		SELECT status, payment_state FROM invoices WHERE id = $1`, id).
		Scan(&status, &state)
	if err != nil {
		return fmt.Errorf("load invoice: %w", err)
	}
	if status == "VOID" || state == "PAID" {
		p.Logger.Debug().Str("invoice", payload.Number).Msg("reminder skipped, invoice settled or void")
		return nil
	}

	body := fmt.Sprintf("Invoice %s is due on %s. Please settle the outstanding balance.",
		payload.Number, payload.DueDate.Format("2006-01-02"))
	if err := p.Mailer.Send(payload.Email, "Payment reminder: "+payload.Number, body); err != nil {
		countReminder("error")
		return fmt.Errorf("send reminder: %w", err)
	}
	countReminder("ok")
	p.Logger.Info().Str("invoice", payload.Number).Str("to", payload.Email).Msg("due reminder sent")
	return nil
}

// HandleOverdueScan mails a reminder for every unpaid invoice past
// its due date. Runs periodically from the worker's scheduler; the
// lock keeps a second worker from sweeping the same day twice.
func (p *Processor) HandleOverdueScan(ctx context.Context, _ *asynq.Task) error {
	if p.Lock == nil {
		return p.overdueScan(ctx)
	}
	err := p.Lock.TryWithLock(ctx, "overdue-scan", 10*time.Minute, func(ctx context.Context) error {
		return p.overdueScan(ctx)
	})
	if errors.Is(err, lock.ErrNotAcquired) {
		p.Logger.Debug().Msg("overdue scan already running elsewhere")
		return nil
	}
	return err
}

func (p *Processor) overdueScan(ctx context.Context) error {
	rows, err := p.Pool.Query(ctx, `
		SELECT i.number, c.email, i.due_date
		FROM invoices i
		JOIN customers c ON c.id = i.customer_id
		WHERE i.status = 'ISSUED'
		  AND i.payment_state <> 'PAID'
		  AND i.due_date < now()::date
		  AND c.email IS NOT NULL`)
	if err != nil {
		return fmt.Errorf("scan overdue: %w", err)
	}
	defer rows.Close()

	type overdue struct {
		number, email string
		dueDate       time.Time
	}
	var pending []overdue
	for rows.Next() {
		var o overdue
		var due pgtype.Date
		if err := rows.Scan(&o.number, &o.email, &due); err != nil {
			return err
		}
		o.dueDate = common.DateFromPG(due)
		pending = append(pending, o)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, o := range pending {
		body := fmt.Sprintf("Invoice %s was due on %s and is still outstanding.",
			o.number, o.dueDate.Format("2006-01-02"))
		if err := p.Mailer.Send(o.email, "Overdue invoice: "+o.number, body); err != nil {
			countReminder("error")
			p.Logger.Error().Err(err).Str("invoice", o.number).Msg("overdue reminder failed")
			continue
		}
		countReminder("ok")
	}
	p.Logger.Info().Int("count", len(pending)).Msg("overdue scan complete")
	return nil
}

func countReminder(result string) {
	if obs.RemindersSentTotal != nil {
		obs.RemindersSentTotal.WithLabelValues(result).Inc()
	}
}
