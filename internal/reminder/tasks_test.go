package reminder

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func TestScheduleDueReminderReplacesPendingTask(t *testing.T) {
	mr := miniredis.RunT(t)
	opt := asynq.RedisClientOpt{Addr: mr.Addr()}
	client := asynq.NewClient(opt)
	defer client.Close()
	inspector := asynq.NewInspector(opt)
	defer inspector.Close()

	s := &Scheduler{Client: client, Inspector: inspector, Lead: 24 * time.Hour}
	invoiceID := "5f0c0f7e-9a1b-4a79-9df3-0d0c1f6f0001"

	firstDue := time.Now().Add(72 * time.Hour)
	require.NoError(t, s.ScheduleDueReminder(context.Background(), invoiceID, "INV-202608-AAAA1111", "pat@example.com", firstDue))

	// re-issuing the same invoice with a later due date must replace
	// the pending reminder, not stack a second one
	secondDue := firstDue.Add(48 * time.Hour)
	require.NoError(t, s.ScheduleDueReminder(context.Background(), invoiceID, "INV-202608-AAAA1111", "pat@example.com", secondDue))

	tasks, err := inspector.ListScheduledTasks(Queue)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	var payload DuePayload
	require.NoError(t, json.Unmarshal(tasks[0].Payload, &payload))
	require.True(t, payload.DueDate.Equal(secondDue))
}

func TestScheduleDueReminderNilClientIsNoop(t *testing.T) {
	var s *Scheduler
	require.NoError(t, s.ScheduleDueReminder(context.Background(), "id", "INV-1", "pat@example.com", time.Now()))
}
