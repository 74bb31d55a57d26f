package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"glamtrack/internal/domain"
)

const (
	orderPositionKey = "orders:positions:%s"    // geo set, member = subject
	orderMetaKey     = "orders:positions:%s:%s" // hash per subject
	positionTTL      = 24 * time.Hour
)

// PositionStore keeps the last known position per (order, subject) in
// Redis. Only the latest point is retained; historical trails are not
// stored here.
type PositionStore struct {
	client *redis.Client
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(client *redis.Client) *PositionStore {
	return &PositionStore{client: client}
}

// UpdatePosition stores a subject's latest position using GEOADD plus a
// metadata hash for heading, speed and timestamp.
func (s *PositionStore) UpdatePosition(ctx context.Context, orderID string, subject domain.Subject, point domain.GeoPoint) error {
	geoKey := fmt.Sprintf(orderPositionKey, orderID)
	metaKey := fmt.Sprintf(orderMetaKey, orderID, subject)

	pipe := s.client.Pipeline()
	pipe.GeoAdd(ctx, geoKey, &redis.GeoLocation{
		Name:      string(subject),
		Longitude: point.Longitude,
		Latitude:  point.Latitude,
	})

	meta := map[string]interface{}{
		"timestamp_ms": point.Timestamp.UnixMilli(),
	}
	if point.HeadingDegrees != nil {
		meta["heading"] = *point.HeadingDegrees
	}
	if point.SpeedMS != nil {
		meta["speed_ms"] = *point.SpeedMS
	}
	pipe.HSet(ctx, metaKey, meta)

	pipe.Expire(ctx, geoKey, positionTTL)
	pipe.Expire(ctx, metaKey, positionTTL)

	_, err := pipe.Exec(ctx)
	return err
}

// GetPositions returns the last known position of each subject for an
// order. Subjects without a stored position are absent from the map.
func (s *PositionStore) GetPositions(ctx context.Context, orderID string) (map[domain.Subject]domain.GeoPoint, error) {
	geoKey := fmt.Sprintf(orderPositionKey, orderID)

	subjects := []domain.Subject{domain.SubjectCustomer, domain.SubjectProfessional}
	members := make([]string, len(subjects))
	for i, subject := range subjects {
		members[i] = string(subject)
	}

	coords, err := s.client.GeoPos(ctx, geoKey, members...).Result()
	if err != nil {
		return nil, err
	}

	positions := make(map[domain.Subject]domain.GeoPoint)
	for i, pos := range coords {
		if pos == nil {
			continue
		}

		point := domain.GeoPoint{
			Latitude:  pos.Latitude,
			Longitude: pos.Longitude,
		}

		metaKey := fmt.Sprintf(orderMetaKey, orderID, subjects[i])
		meta, err := s.client.HGetAll(ctx, metaKey).Result()
		if err == nil {
			if raw, ok := meta["timestamp_ms"]; ok {
				if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
					point.Timestamp = time.UnixMilli(ms)
				}
			}
			if raw, ok := meta["heading"]; ok {
				if heading, err := strconv.ParseFloat(raw, 64); err == nil {
					point.HeadingDegrees = &heading
				}
			}
			if raw, ok := meta["speed_ms"]; ok {
				if speed, err := strconv.ParseFloat(raw, 64); err == nil {
					point.SpeedMS = &speed
				}
			}
		}

		positions[subjects[i]] = point
	}

	return positions, nil
}

// RemoveOrder drops all stored positions for an order, e.g. when it
// reaches a terminal status.
func (s *PositionStore) RemoveOrder(ctx context.Context, orderID string) error {
	geoKey := fmt.Sprintf(orderPositionKey, orderID)
	keys := []string{
		geoKey,
		fmt.Sprintf(orderMetaKey, orderID, domain.SubjectCustomer),
		fmt.Sprintf(orderMetaKey, orderID, domain.SubjectProfessional),
	}
	return s.client.Del(ctx, keys...).Err()
}
