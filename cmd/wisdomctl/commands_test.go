package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"wisdom/api/internal/config"
	"wisdom/api/internal/store"
)

func sampleAnalytics() store.Analytics {
	now := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)
	return store.Analytics{
		TotalThreads: 3,
		TopReacted:   []store.ThreadCount{{ThreadID: "t1", Title: "Calm", Count: 4}},
		Activity:     store.FillMonths(now, 6, []store.MonthlyCount{{Year: 2024, Month: time.March, Count: 2}}),
	}
}

func TestWriteReportYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, "yaml", newAnalyticsReport("u1", sampleAnalytics())))

	var decoded analyticsReport
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 3, decoded.TotalThreads)
	require.Len(t, decoded.Activity, 6)
	assert.Equal(t, "2023-10", decoded.Activity[0].Month)
	assert.Equal(t, 2, decoded.Activity[5].Count)
	assert.Equal(t, "Calm", decoded.TopReacted[0].Title)
}

func TestWriteReportJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, "json", newAnalyticsReport("u1", sampleAnalytics())))
	assert.True(t, strings.Contains(buf.String(), `"totalThreads": 3`), buf.String())
}

func TestWriteReportRejectsUnknownFormat(t *testing.T) {
	err := writeReport(&bytes.Buffer{}, "xml", analyticsReport{})
	assert.Error(t, err)
}

func TestApplyOverrides(t *testing.T) {
	v := viper.New()
	v.Set("database_url", "postgres://other")
	v.Set("outbox_batch", 7)
	v.Set("outbox_interval", "5s")

	cfg := config.Config{DatabaseURL: "postgres://env", MeiliURL: "http://meili", OutboxBatch: 50}
	applyOverrides(&cfg, v)

	assert.Equal(t, "postgres://other", cfg.DatabaseURL)
	assert.Equal(t, "http://meili", cfg.MeiliURL)
	assert.Equal(t, 7, cfg.OutboxBatch)
	assert.Equal(t, 5*time.Second, cfg.OutboxInterval)
}
