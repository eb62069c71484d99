package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/banking/txn-monitoring-service/internal/config"
	"github.com/banking/txn-monitoring-service/internal/domain"
	"github.com/banking/txn-monitoring-service/internal/pkg/logger"
)

func newTestPublisher(t *testing.T) (*Publisher, *mocks.SyncProducer) {
	producer := mocks.NewSyncProducer(t, sarama.NewConfig())
	cfg := config.KafkaConfig{AlertsTopic: "alerts", JobsTopic: "jobs"}
	p := NewPublisher(producer, cfg, logger.NewFromZap(zaptest.NewLogger(t), "test"))
	p.now = func() time.Time { return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC) }
	return p, producer
}

func TestPublishAlerts(t *testing.T) {
	p, producer := newTestPublisher(t)
	defer func() { require.NoError(t, producer.Close()) }()

	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var ev AlertEvent
		if err := json.Unmarshal(val, &ev); err != nil {
			return err
		}
		if ev.EventType != EventAlertCreated || ev.AlertID != 42 || ev.TransientID != "1000001" {
			return errors.New("unexpected alert event")
		}
		if !ev.AutoClosed || ev.Priority != domain.PriorityAutoClosure || ev.CreatedDate != "2024-03-10" {
			return errors.New("unexpected alert score")
		}
		return nil
	})
	producer.ExpectSendMessageAndSucceed()

	alerts := []*domain.Alert{
		{
			ID:          "1000001",
			ScenarioID:  "TS_SCN_01",
			CustomerIDs: []string{"C1"},
			CreatedDate: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
			Score:       &domain.AlertScore{Composite: 8, AutoClose: true, Priority: domain.PriorityAutoClosure},
		},
		{ID: "1000002", ScenarioID: "TS_SCN_01", CustomerIDs: []string{"C2"}},
	}
	err := p.PublishAlerts(context.Background(), alerts, map[string]int64{"1000001": 42, "1000002": 43})
	require.NoError(t, err)
}

func TestPublishAlerts_Empty(t *testing.T) {
	p, producer := newTestPublisher(t)
	defer func() { require.NoError(t, producer.Close()) }()

	require.NoError(t, p.PublishAlerts(context.Background(), nil, nil))
}

func TestPublishAlerts_BrokerFailure(t *testing.T) {
	p, producer := newTestPublisher(t)
	defer func() { require.NoError(t, producer.Close()) }()

	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := p.PublishAlerts(context.Background(), []*domain.Alert{{ID: "1", CustomerIDs: []string{"C1"}}}, nil)
	require.Error(t, err)
	assert.True(t, domain.IsIntegrationError(err))
}

func TestPublishJobCompleted(t *testing.T) {
	p, producer := newTestPublisher(t)
	defer func() { require.NoError(t, producer.Close()) }()

	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var ev JobEvent
		if err := json.Unmarshal(val, &ev); err != nil {
			return err
		}
		if ev.EventType != EventJobCompleted || ev.Status != "COMPLETED" || ev.TotalAlerts != 3 || ev.DurationMs != 1500 {
			return errors.New("unexpected job event")
		}
		return nil
	})

	start := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	err := p.PublishJobCompleted(context.Background(), &domain.JobResult{
		JobID:            "JOB-1",
		RunID:            "run-1",
		TotalAlerts:      3,
		SuccessScenarios: []string{"TS_SCN_01"},
		StartedAt:        start,
		CompletedAt:      start.Add(1500 * time.Millisecond),
	})
	require.NoError(t, err)
}
