package sinks

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ztkent/lightmeter/internal/lightmeter"
)

var testResult = lightmeter.LuxResults{
	JobID:             "5f0c7f1e",
	Lux:               401.25,
	Red:               320.5,
	Green:             401.25,
	Blue:              240.75,
	White:             601.875,
	IntegrationTimeMs: 160,
	Time:              time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC),
}

func TestReadingPayload(t *testing.T) {
	payload, err := readingPayload(testResult)
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(payload, &msg))
	assert.Equal(t, "5f0c7f1e", msg["job_id"])
	assert.Equal(t, 401.25, msg["lux"])
	assert.Equal(t, 240.75, msg["blue"])
	assert.Equal(t, float64(160), msg["integration_time_ms"])
	assert.Equal(t, "2024-06-01T10:30:00Z", msg["timestamp"])
}

func TestReadingPayload_LocalTime(t *testing.T) {
	result := testResult
	result.Time = time.Date(2024, 6, 1, 6, 30, 0, 0, time.FixedZone("EDT", -4*60*60))
	payload, err := readingPayload(result)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"timestamp":"2024-06-01T10:30:00Z"`)
}

func TestReadingPoint(t *testing.T) {
	p := readingPoint(testResult)
	assert.Equal(t, "light", p.Name())
	assert.Equal(t, testResult.Time, p.Time())

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	assert.Equal(t, map[string]string{"job_id": "5f0c7f1e", "integration_time": "160ms"}, tags)

	fields := map[string]any{}
	for _, field := range p.FieldList() {
		fields[field.Key] = field.Value
	}
	assert.Equal(t, map[string]any{
		"lux":   401.25,
		"red":   320.5,
		"green": 401.25,
		"blue":  240.75,
		"white": 601.875,
	}, fields)
}
