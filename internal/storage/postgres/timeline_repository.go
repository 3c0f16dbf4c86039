package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/epiccart/internal/domain"
)

const (
	insertTimelineEventSQL = `INSERT INTO timeline_events (order_id, type, reason, occurred) VALUES ($1, $2, $3, $4)`
	selectTimelineSQL      = `SELECT type, reason, occurred FROM timeline_events WHERE order_id = $1 ORDER BY occurred, id`
)

// TimelineRepository пишет переходы заказа в timeline_events. Внешний ключ на orders
// не даёт записать событие несуществующего заказа.
type TimelineRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewTimelineRepository(store *Store) *TimelineRepository {
	return &TimelineRepository{db: store.DB(), now: time.Now}
}

func (r *TimelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	event, err := event.Normalized(r.now())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err = r.db.ExecContext(ctx, insertTimelineEventSQL, event.OrderID, event.Type, event.Reason, event.Occurred)
	switch {
	case err == nil:
		return nil
	case isForeignKeyViolation(err):
		return domain.ErrOrderNotFound
	default:
		return fmt.Errorf("insert timeline event for order %s: %w", event.OrderID, err)
	}
}

// List отдаёт историю заказа по возрастанию времени; при равном времени сохраняется порядок записи.
func (r *TimelineRepository) List(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, selectTimelineSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("query timeline of order %s: %w", orderID, err)
	}
	defer rows.Close()

	history := []domain.TimelineEvent{}
	for rows.Next() {
		event := domain.TimelineEvent{OrderID: orderID}
		if err := rows.Scan(&event.Type, &event.Reason, &event.Occurred); err != nil {
			return nil, fmt.Errorf("scan timeline row: %w", err)
		}
		event.Occurred = event.Occurred.UTC()
		history = append(history, event)
	}
	return history, rows.Err()
}

var _ domain.TimelineRepository = (*TimelineRepository)(nil)
