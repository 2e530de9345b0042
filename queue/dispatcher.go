package queue

import (
	"context"
	"log"
	"time"

	"github.com/habithive/habithive/progress"
	storage "github.com/habithive/habithive/storage/persistent"
)

// Dispatcher periodically scans for habits whose reminder time has come due
// and publishes one reminder message per (habit, day). Delivery dedup happens
// on the consumer side, so an overlapping scan window is harmless.
type Dispatcher struct {
	Store    storage.Store
	Queue    *Queue
	Interval time.Duration

	// OnPublish, when set, is called once per successfully published
	// reminder. main wires it to the metrics collector.
	OnPublish func()

	now func() time.Time
}

// NewDispatcher builds a dispatcher scanning at the given interval. An
// interval of zero defaults to one minute, matching the HH:MM resolution of
// reminder times.
func NewDispatcher(store storage.Store, q *Queue, interval time.Duration) *Dispatcher {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Dispatcher{
		Store:    store,
		Queue:    q,
		Interval: interval,
		now:      time.Now,
	}
}

// Run blocks scanning until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := d.Scan(ctx); err != nil {
				log.Printf("reminder scan failed: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Scan publishes reminders for every user habit that is due at the current
// wall-clock minute. Per-user failures are logged and the scan moves on.
func (d *Dispatcher) Scan(ctx context.Context) error {
	users, err := d.Store.ListUsers(ctx)
	if err != nil {
		return err
	}

	now := d.now()
	hhmm := now.Format("15:04")
	dateKey := progress.DayKey(now)

	for _, user := range users {
		habits, err := d.Store.ListActiveHabits(ctx, user.ID)
		if err != nil {
			log.Printf("listing habits for reminders failed for user %s: %v", user.ID, err)
			continue
		}

		for _, h := range habits {
			if !h.ReminderEnabled || h.ReminderTime != hhmm {
				continue
			}
			msg := &ReminderMessage{
				Id:        user.ID + "|" + h.Key() + "|" + dateKey,
				To:        user.Email,
				HabitName: h.Name,
				At:        h.ReminderTime,
			}
			if err := ProcessReminder(msg, d.Queue); err != nil {
				log.Printf("publishing reminder for habit %s failed: %v", h.Name, err)
				continue
			}
			if d.OnPublish != nil {
				d.OnPublish()
			}
		}
	}
	return nil
}
