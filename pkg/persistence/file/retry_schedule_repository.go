package file

import (
	"context"
	"sort"
	"time"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
)

// RetryScheduleRepository stores retry-schedule rows as one JSON file per
// row, with the same version-guarded update discipline as wait states.
type RetryScheduleRepository struct {
	store *Persistence
}

func (r *RetryScheduleRepository) CreateRetrySchedule(_ context.Context, schedule *models.RetrySchedule) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.store.write("retry_schedules", schedule.ID, schedule)
}

func (r *RetryScheduleRepository) RetryScheduleByID(_ context.Context, id string) (*models.RetrySchedule, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.retryScheduleByIDLocked(id)
}

func (r *RetryScheduleRepository) retryScheduleByIDLocked(id string) (*models.RetrySchedule, error) {
	var schedule models.RetrySchedule

	found, err := r.store.read("retry_schedules", id, &schedule)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.ErrRetryScheduleNotFound
	}

	return &schedule, nil
}

func (r *RetryScheduleRepository) ListDue(_ context.Context, now time.Time, staleClaim time.Duration) ([]*models.RetrySchedule, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var due []*models.RetrySchedule

	err := readAll(r.store, "retry_schedules", func(row *models.RetrySchedule) {
		if row.IsDue(now, staleClaim) {
			due = append(due, row)
		}
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledAt.Before(due[j].ScheduledAt) })

	return due, nil
}

func (r *RetryScheduleRepository) ActiveRetrySchedulesByExecution(_ context.Context, executionID string) ([]*models.RetrySchedule, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var active []*models.RetrySchedule

	err := readAll(r.store, "retry_schedules", func(row *models.RetrySchedule) {
		if row.ExecutionID == executionID && !row.Status.IsTerminal() {
			active = append(active, row)
		}
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(active, func(i, j int) bool { return active[i].CreatedAt.Before(active[j].CreatedAt) })

	return active, nil
}

func (r *RetryScheduleRepository) UpdateRetrySchedule(_ context.Context, schedule *models.RetrySchedule) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	existing, err := r.retryScheduleByIDLocked(schedule.ID)
	if err != nil {
		return err
	}

	if existing.Version != schedule.Version {
		return persistence.ErrVersionConflict
	}

	schedule.Version++
	schedule.UpdatedAt = time.Now().UTC()

	if err := r.store.write("retry_schedules", schedule.ID, schedule); err != nil {
		schedule.Version--

		return err
	}

	return nil
}
