package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/banking/txn-monitoring-service/internal/config"
	"github.com/banking/txn-monitoring-service/internal/domain"
	"github.com/banking/txn-monitoring-service/internal/pkg/logger"
)

// Event types
const (
	EventAlertCreated = "alert.created"
	EventJobCompleted = "job.completed"
)

// AlertEvent announces a persisted alert
type AlertEvent struct {
	EventID     string          `json:"event_id"`
	EventType   string          `json:"event_type"`
	OccurredAt  time.Time       `json:"occurred_at"`
	AlertID     int64           `json:"alert_id"`
	TransientID string          `json:"transient_alert_id"`
	ScenarioID  string          `json:"scenario_id"`
	JobID       string          `json:"job_id"`
	AccountIDs  []string        `json:"account_ids"`
	CustomerIDs []string        `json:"customer_ids"`
	Score       float64         `json:"alert_score"`
	Priority    domain.Priority `json:"alert_priority"`
	AutoClosed  bool            `json:"auto_closed"`
	CreatedDate string          `json:"created_date"`
}

// JobEvent announces a finished job
type JobEvent struct {
	EventID          string    `json:"event_id"`
	EventType        string    `json:"event_type"`
	OccurredAt       time.Time `json:"occurred_at"`
	JobID            string    `json:"job_id"`
	RunID            string    `json:"run_id"`
	Status           string    `json:"status"`
	TotalAlerts      int       `json:"total_alerts"`
	SuccessScenarios []string  `json:"success_scenarios"`
	FailedScenarios  []string  `json:"failed_scenarios"`
	Manual           bool      `json:"manual_job"`
	DurationMs       int64     `json:"duration_ms"`
}

// NewSyncProducer connects a synchronous producer to the configured brokers
func NewSyncProducer(cfg config.KafkaConfig) (sarama.SyncProducer, error) {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = cfg.MaxRetries
	sc.Producer.Return.Successes = true
	sc.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return producer, nil
}

// Publisher writes alert and job events to Kafka
type Publisher struct {
	producer    sarama.SyncProducer
	alertsTopic string
	jobsTopic   string
	now         func() time.Time
	log         *logger.Logger
}

// NewPublisher creates an event publisher around producer
func NewPublisher(producer sarama.SyncProducer, cfg config.KafkaConfig, log *logger.Logger) *Publisher {
	return &Publisher{
		producer:    producer,
		alertsTopic: cfg.AlertsTopic,
		jobsTopic:   cfg.JobsTopic,
		now:         time.Now,
		log:         log.Named("events"),
	}
}

func (p *Publisher) message(topic, key string, v any) (*sarama.ProducerMessage, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
	}, nil
}

// PublishAlerts sends one alert.created event per alert, keyed by customer
func (p *Publisher) PublishAlerts(ctx context.Context, alerts []*domain.Alert, durableIDs map[string]int64) error {
	if len(alerts) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	now := p.now().UTC()
	msgs := make([]*sarama.ProducerMessage, 0, len(alerts))
	for _, a := range alerts {
		ev := AlertEvent{
			EventID:     uuid.NewString(),
			EventType:   EventAlertCreated,
			OccurredAt:  now,
			AlertID:     durableIDs[a.ID],
			TransientID: a.ID,
			ScenarioID:  a.ScenarioID,
			JobID:       a.JobID,
			AccountIDs:  a.AccountIDs,
			CustomerIDs: a.CustomerIDs,
			AutoClosed:  a.IsAutoClosed(),
			CreatedDate: a.CreatedDate.Format(domain.DateLayout),
		}
		if a.Score != nil {
			ev.Score = a.Score.Composite
			ev.Priority = a.Score.Priority
		}
		msg, err := p.message(p.alertsTopic, strings.Join(a.CustomerIDs, ","), ev)
		if err != nil {
			return domain.NewComputationError("EVENT_ENCODE", "failed to encode alert event").WithCause(err)
		}
		msgs = append(msgs, msg)
	}

	if err := p.producer.SendMessages(msgs); err != nil {
		return domain.NewIntegrationError("EVENT_PUBLISH_FAILED", "failed to publish alert events").WithCause(err)
	}
	p.log.Debug("alert events published", zap.String("topic", p.alertsTopic), zap.Int("count", len(msgs)))
	return nil
}

// PublishJobCompleted sends the job.completed event, keyed by job id
func (p *Publisher) PublishJobCompleted(ctx context.Context, result *domain.JobResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ev := JobEvent{
		EventID:          uuid.NewString(),
		EventType:        EventJobCompleted,
		OccurredAt:       p.now().UTC(),
		JobID:            result.JobID,
		RunID:            result.RunID,
		Status:           result.Status().String(),
		TotalAlerts:      result.TotalAlerts,
		SuccessScenarios: result.SuccessScenarios,
		FailedScenarios:  result.FailedScenarios,
		Manual:           result.Manual,
		DurationMs:       result.CompletedAt.Sub(result.StartedAt).Milliseconds(),
	}
	msg, err := p.message(p.jobsTopic, result.JobID, ev)
	if err != nil {
		return domain.NewComputationError("EVENT_ENCODE", "failed to encode job event").WithCause(err)
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return domain.NewIntegrationError("EVENT_PUBLISH_FAILED", "failed to publish job event").WithCause(err)
	}
	p.log.Info("job event published",
		zap.String("job_id", result.JobID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

// Close flushes and closes the producer
func (p *Publisher) Close() error {
	return p.producer.Close()
}
