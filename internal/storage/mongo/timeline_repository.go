package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vladislavdragonenkov/epiccart/internal/domain"
)

type timelineRepository struct {
	events *mongo.Collection
}

// NewTimelineRepository хранит события заказа в коллекции timeline_events.
func NewTimelineRepository(store *Store) domain.TimelineRepository {
	return &timelineRepository{events: store.Database().Collection(timelineCollection)}
}

func (r *timelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	event, err := event.Normalized(time.Now())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.events.InsertOne(ctx, timelineDocument{
		OrderID:  event.OrderID,
		Type:     event.Type,
		Reason:   event.Reason,
		Occurred: event.Occurred,
	}); err != nil {
		return fmt.Errorf("append timeline event: %w", err)
	}
	return nil
}

func (r *timelineRepository) List(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cursor, err := r.events.Find(ctx, bson.M{"orderId": orderID},
		options.Find().SetSort(bson.D{{Key: "occurred", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find timeline events: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []timelineDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode timeline events: %w", err)
	}

	events := make([]domain.TimelineEvent, 0, len(docs))
	for _, doc := range docs {
		events = append(events, domain.TimelineEvent{
			OrderID:  doc.OrderID,
			Type:     doc.Type,
			Reason:   doc.Reason,
			Occurred: doc.Occurred.UTC(),
		})
	}
	return events, nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
