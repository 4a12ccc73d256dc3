package database

import (
	"fmt"

	"gorm.io/gorm"
	"strategy-builder-go/internal/canvas"
	"strategy-builder-go/internal/models"
)

// Repository persists canvas snapshots and undelivered analytics events.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a repository on an already migrated database.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// SaveSnapshot replaces every stored working copy and the session row with snap.
func (r *Repository) SaveSnapshot(snap canvas.Snapshot) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("1 = 1").Delete(&models.WorkingCopy{}).Error; err != nil {
			return fmt.Errorf("failed to clear working copies: %w", err)
		}
		for _, c := range snap.Copies {
			row := models.WorkingCopy{
				VersionID:  c.VersionID,
				StrategyID: c.StrategyID,
				Graph:      c.Graph,
				Issues:     c.Issues,
				Dirty:      c.Dirty,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("failed to save working copy '%s': %w", c.VersionID, err)
			}
		}

		var session models.CanvasSession
		if err := tx.FirstOrCreate(&session).Error; err != nil {
			return fmt.Errorf("failed to load canvas session: %w", err)
		}
		session.ActiveStrategyID = snap.ActiveStrategyID
		session.ActiveVersionID = snap.ActiveVersionID
		if err := tx.Save(&session).Error; err != nil {
			return fmt.Errorf("failed to save canvas session: %w", err)
		}
		return nil
	})
}

// LoadSnapshot reads the stored working copies. An empty database yields an
// empty snapshot.
func (r *Repository) LoadSnapshot() (canvas.Snapshot, error) {
	var rows []models.WorkingCopy
	if err := r.db.Order("version_id").Find(&rows).Error; err != nil {
		return canvas.Snapshot{}, fmt.Errorf("failed to load working copies: %w", err)
	}

	var session models.CanvasSession
	if err := r.db.Limit(1).Find(&session).Error; err != nil {
		return canvas.Snapshot{}, fmt.Errorf("failed to load canvas session: %w", err)
	}

	snap := canvas.Snapshot{
		ActiveStrategyID: session.ActiveStrategyID,
		ActiveVersionID:  session.ActiveVersionID,
		Copies:           make([]canvas.CopySnapshot, 0, len(rows)),
	}
	for _, row := range rows {
		snap.Copies = append(snap.Copies, canvas.CopySnapshot{
			VersionID:  row.VersionID,
			StrategyID: row.StrategyID,
			Graph:      row.Graph,
			Issues:     row.Issues,
			Dirty:      row.Dirty,
		})
	}
	return snap, nil
}

// SavePendingEvents appends events that could not be delivered.
func (r *Repository) SavePendingEvents(events []models.OnboardingEvent) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([]models.PendingEvent, len(events))
	for i, e := range events {
		rows[i] = models.PendingEvent{Event: e}
	}
	if err := r.db.Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to save pending events: %w", err)
	}
	return nil
}

// TakePendingEvents returns stored events in insertion order and deletes them.
func (r *Repository) TakePendingEvents() ([]models.OnboardingEvent, error) {
	var events []models.OnboardingEvent
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var rows []models.PendingEvent
		if err := tx.Order("id").Find(&rows).Error; err != nil {
			return fmt.Errorf("failed to load pending events: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.Unscoped().Delete(&rows).Error; err != nil {
			return fmt.Errorf("failed to delete pending events: %w", err)
		}
		events = make([]models.OnboardingEvent, len(rows))
		for i, row := range rows {
			events[i] = row.Event
		}
		return nil
	})
	return events, err
}
