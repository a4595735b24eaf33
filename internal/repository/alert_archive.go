package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"WalletWatch/internal/domain/models"
	"WalletWatch/internal/domain/repository"
	pkgkafka "WalletWatch/pkg/kafka"
	"WalletWatch/pkg/util"
)

// ClickHouseAlertArchive implements AlertArchive over ClickHouse.
type ClickHouseAlertArchive struct {
	db    *sql.DB
	table string
}

// NewClickHouseAlertArchive creates ClickHouse-backed alert storage.
func NewClickHouseAlertArchive(db *sql.DB, table string) repository.AlertArchive {
	return &ClickHouseAlertArchive{db: db, table: table}
}

func (s *ClickHouseAlertArchive) Init(ctx context.Context) error {
	return nil // Schema init in pkg
}

func (s *ClickHouseAlertArchive) Store(ctx context.Context, result *models.CompositeScoreResult, ranking *models.PriorityRanking) error {
	return s.StoreBatch(ctx, []*models.CompositeScoreResult{result}, []*models.PriorityRanking{ranking})
}

func (s *ClickHouseAlertArchive) StoreBatch(ctx context.Context, results []*models.CompositeScoreResult, rankings []*models.PriorityRanking) error {
	if len(results) == 0 {
		return nil
	}
	if len(rankings) != len(results) {
		return fmt.Errorf("alert archive: %d results but %d rankings", len(results), len(rankings))
	}
	// Batch insert using VALUES multi-row to reduce round-trips.
	const chunkSize = 2000
	for start := 0; start < len(results); start += chunkSize {
		end := start + chunkSize
		if end > len(results) {
			end = len(results)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*9)
		for i := start; i < end; i++ {
			res, rank := results[i], rankings[i]
			if res == nil || res.WalletAddress == "" {
				continue
			}
			detail, err := json.Marshal(res)
			if err != nil {
				return fmt.Errorf("alert archive: marshal result: %w", err)
			}
			var (
				priorityScore float64
				priorityLevel string
				isUrgent      uint8
			)
			if rank != nil {
				priorityScore = rank.PriorityScore
				priorityLevel = string(rank.PriorityLevel)
				if rank.IsUrgent {
					isUrgent = 1
				}
			}
			calibrated := res.Score
			if res.CalibratedScore != nil {
				calibrated = *res.CalibratedScore
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				res.AnalyzedAt,
				util.NormalizeAddress(res.WalletAddress),
				res.Score,
				calibrated,
				string(res.SuspicionLevel),
				priorityScore,
				priorityLevel,
				isUrgent,
				string(detail),
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (ts, wallet, score, calibrated_score, suspicion_level, priority_score, priority_level, is_urgent, detail) VALUES %s",
			s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

func (s *ClickHouseAlertArchive) QueryByWallet(ctx context.Context, wallet string, from, to time.Time, limit int) ([]*models.CompositeScoreResult, error) {
	q := fmt.Sprintf("SELECT detail FROM %s WHERE wallet = ? AND ts >= ? AND ts <= ? ORDER BY ts DESC LIMIT ?", s.table)
	rows, err := s.db.QueryContext(ctx, q, util.NormalizeAddress(wallet), from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.CompositeScoreResult
	for rows.Next() {
		var detail string
		if err := rows.Scan(&detail); err != nil {
			return nil, err
		}
		var res models.CompositeScoreResult
		if err := json.Unmarshal([]byte(detail), &res); err != nil {
			return nil, fmt.Errorf("alert archive: unmarshal result: %w", err)
		}
		out = append(out, &res)
	}
	return out, rows.Err()
}

func (s *ClickHouseAlertArchive) TopAlerts(ctx context.Context, from, to time.Time, limit int) ([]*models.PriorityRanking, error) {
	q := fmt.Sprintf("SELECT wallet, priority_score, priority_level, is_urgent, ts FROM %s WHERE ts >= ? AND ts <= ? ORDER BY priority_score DESC LIMIT ?", s.table)
	rows, err := s.db.QueryContext(ctx, q, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.PriorityRanking
	for rows.Next() {
		var (
			r        models.PriorityRanking
			level    string
			isUrgent uint8
			ts       time.Time
		)
		if err := rows.Scan(&r.WalletAddress, &r.PriorityScore, &level, &isUrgent, &ts); err != nil {
			return nil, err
		}
		r.PriorityLevel = models.PriorityLevel(level)
		r.IsUrgent = isUrgent == 1
		r.RankedAt = ts
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *ClickHouseAlertArchive) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseAlertArchive) Close() error {
	return nil // Managed by pkg
}

// KafkaAlertPublisher implements AlertPublisher for Kafka.
type KafkaAlertPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaAlertPublisher creates a Kafka alert publisher.
func NewKafkaAlertPublisher(producer *pkgkafka.Producer, topic string) repository.AlertPublisher {
	return &KafkaAlertPublisher{producer: producer, topic: topic}
}

func (p *KafkaAlertPublisher) Publish(ctx context.Context, a *models.PriorityRanking) error {
	return p.producer.Publish(ctx, p.topic, []byte(util.NormalizeAddress(a.WalletAddress)), alertPayload(a))
}

func (p *KafkaAlertPublisher) PublishBatch(ctx context.Context, alerts []*models.PriorityRanking) error {
	if len(alerts) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(alerts))
	for i, a := range alerts {
		msgs[i] = pkgkafka.Message{
			Key:   []byte(util.NormalizeAddress(a.WalletAddress)),
			Value: alertPayload(a),
		}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func alertPayload(a *models.PriorityRanking) map[string]interface{} {
	return map[string]interface{}{
		"wallet":   a.WalletAddress,
		"score":    a.PriorityScore,
		"level":    a.PriorityLevel,
		"urgent":   a.IsUrgent,
		"rankedAt": a.RankedAt.Unix(),
	}
}

func (p *KafkaAlertPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
