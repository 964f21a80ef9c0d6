package model

import "context"

// RewindTemplateForTest sets the schedule date of t.ID back to
// t.NextGenerationDate, bypassing the compare-and-swap.
func (s *Store) RewindTemplateForTest(ctx context.Context, t *RecurringTemplate) error {
	t.normalize()
	return s.db.WithContext(ctx).Model(&RecurringTemplate{}).
		Where("id = ?", t.ID).
		Update("next_generation_date", t.NextGenerationDate).Error
}
