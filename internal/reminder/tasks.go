package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// TypeInvoiceDue is the per-invoice due-date reminder.
	TypeInvoiceDue = "invoice:due"
	// TypeOverdueScan is the periodic sweep for invoices past due.
	TypeOverdueScan = "invoice:overdue_scan"

	// Queue is the asynq queue all reminder tasks run on.
	Queue = "reminders"
)

// DuePayload travels with a TypeInvoiceDue task.
type DuePayload struct {
	InvoiceID string    `json:"invoice_id"`
	Number    string    `json:"number"`
	Email     string    `json:"email"`
	DueDate   time.Time `json:"due_date"`
}

// Scheduler enqueues reminder tasks. Lead is how far before the due
// date the reminder fires.
type Scheduler struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
	Lead      time.Duration
}

// ScheduleDueReminder enqueues one reminder per invoice. The task id
// is the invoice id, so re-issuing an edited invoice replaces the
// pending reminder instead of stacking a second one.
func (s *Scheduler) ScheduleDueReminder(ctx context.Context, invoiceID, number, email string, dueDate time.Time) error {
	if s == nil || s.Client == nil {
		return nil
	}
	payload, err := json.Marshal(DuePayload{
		InvoiceID: invoiceID,
		Number:    number,
		Email:     email,
		DueDate:   dueDate,
	})
	if err != nil {
		return err
	}
	lead := s.Lead
	if lead <= 0 {
		lead = 24 * time.Hour
	}
	fireAt := dueDate.Add(-lead)
	if fireAt.Before(time.Now()) {
		fireAt = time.Now()
	}
	task := asynq.NewTask(TypeInvoiceDue, payload)
	_, err = s.Client.EnqueueContext(ctx, task,
		asynq.Queue(Queue),
		asynq.TaskID(invoiceID),
		asynq.ProcessAt(fireAt),
		asynq.MaxRetry(5),
	)
	if (errors.Is(err, asynq.ErrDuplicateTask) || errors.Is(err, asynq.ErrTaskIDConflict)) && s.Inspector != nil {
		// replace the pending reminder
		if derr := s.Inspector.DeleteTask(Queue, invoiceID); derr == nil {
			_, err = s.Client.EnqueueContext(ctx, task,
				asynq.Queue(Queue),
				asynq.TaskID(invoiceID),
				asynq.ProcessAt(fireAt),
				asynq.MaxRetry(5),
			)
		}
	}
	return err
}

// NewOverdueScanTask builds the periodic overdue sweep task.
func NewOverdueScanTask() *asynq.Task {
	return asynq.NewTask(TypeOverdueScan, nil)
}
