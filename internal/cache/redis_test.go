package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/banking/txn-monitoring-service/internal/domain"
	"github.com/banking/txn-monitoring-service/internal/pkg/logger"
)

type countingSource struct {
	thresholdCalls int
	bucketCalls    int
	countryCalls   int
	priorCalls     int
	err            error
}

func (s *countingSource) ScenarioConfig(_ context.Context, id string) (domain.ScenarioConfig, error) {
	return domain.ScenarioConfig{ID: id}, nil
}

func (s *countingSource) Thresholds(_ context.Context, id string) (domain.ThresholdSet, error) {
	s.thresholdCalls++
	if s.err != nil {
		return domain.ThresholdSet{}, s.err
	}
	return domain.NewThresholdSet("TS-1", id, map[string]string{"LOOKBACK PERIOD": "30"}), nil
}

func (s *countingSource) ScoreBuckets(_ context.Context, id string) (domain.ScoreBuckets, error) {
	s.bucketCalls++
	return domain.BuildScoreBuckets(id, []domain.ScoreBucketRow{
		{Group: domain.ModuleThreshold, Weight: 60, Attribute: domain.KeyTotalHRGAmount, Min: "0", Max: "100", Score: 40},
		{Group: domain.ModulePriorAlert, Weight: 20, Attribute: domain.AttrPreviousAlert, Min: "NEW", Max: "NEW", Score: 30},
	}), nil
}

func (s *countingSource) CountryFlags(context.Context) (map[string]bool, error) {
	s.countryCalls++
	return map[string]bool{"IR": true}, nil
}

func (s *countingSource) PriorAlerts(context.Context, domain.ScenarioFocus, []string, time.Time) ([]domain.PriorAlert, error) {
	s.priorCalls++
	return nil, nil
}

func setupTestCache(t *testing.T, src *countingSource) (*ReferenceCache, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	log := logger.NewFromZap(zaptest.NewLogger(t), "test")
	return NewReferenceCache(src, client, "test", time.Minute, log), mr
}

func TestReferenceCache_Thresholds(t *testing.T) {
	src := &countingSource{}
	c, mr := setupTestCache(t, src)
	ctx := context.Background()

	first, err := c.Thresholds(ctx, "TS_SCN_01")
	require.NoError(t, err)
	second, err := c.Thresholds(ctx, "TS_SCN_01")
	require.NoError(t, err)

	assert.Equal(t, 1, src.thresholdCalls)
	assert.Equal(t, first, second)
	assert.True(t, mr.Exists("test:thresholds:TS_SCN_01"))
	assert.Equal(t, time.Minute, mr.TTL("test:thresholds:TS_SCN_01"))

	mr.FastForward(2 * time.Minute)
	_, err = c.Thresholds(ctx, "TS_SCN_01")
	require.NoError(t, err)
	assert.Equal(t, 2, src.thresholdCalls)
}

func TestReferenceCache_ScoreBuckets(t *testing.T) {
	src := &countingSource{}
	c, _ := setupTestCache(t, src)
	ctx := context.Background()

	want, err := c.ScoreBuckets(ctx, "TS_SCN_01")
	require.NoError(t, err)
	got, err := c.ScoreBuckets(ctx, "TS_SCN_01")
	require.NoError(t, err)

	assert.Equal(t, 1, src.bucketCalls)
	assert.Equal(t, want, got)
	g, ok := got.Group(domain.ModulePriorAlert)
	require.True(t, ok)
	assert.Equal(t, 20.0, g.Weight)
}

func TestReferenceCache_PassThrough(t *testing.T) {
	src := &countingSource{}
	c, _ := setupTestCache(t, src)
	ctx := context.Background()

	_, err := c.PriorAlerts(ctx, domain.FocusCustomer, []string{"C1"}, time.Now())
	require.NoError(t, err)
	_, err = c.PriorAlerts(ctx, domain.FocusCustomer, []string{"C1"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, src.priorCalls)

	flags, err := c.CountryFlags(ctx)
	require.NoError(t, err)
	_, err = c.CountryFlags(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"IR": true}, flags)
	assert.Equal(t, 1, src.countryCalls)
}

func TestReferenceCache_SourceErrorNotCached(t *testing.T) {
	src := &countingSource{err: errors.New("db down")}
	c, mr := setupTestCache(t, src)

	_, err := c.Thresholds(context.Background(), "TS_SCN_01")
	require.Error(t, err)
	assert.False(t, mr.Exists("test:thresholds:TS_SCN_01"))
}

func TestReferenceCache_RedisDown(t *testing.T) {
	src := &countingSource{}
	c, mr := setupTestCache(t, src)
	mr.Close()

	got, err := c.Thresholds(context.Background(), "TS_SCN_01")
	require.NoError(t, err)
	assert.Equal(t, "TS-1", got.ID)
}

func TestReferenceCache_Invalidate(t *testing.T) {
	src := &countingSource{}
	c, mr := setupTestCache(t, src)
	ctx := context.Background()

	_, err := c.Thresholds(ctx, "TS_SCN_01")
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx, "TS_SCN_01"))
	assert.False(t, mr.Exists("test:thresholds:TS_SCN_01"))

	_, err = c.Thresholds(ctx, "TS_SCN_01")
	require.NoError(t, err)
	assert.Equal(t, 2, src.thresholdCalls)
}
