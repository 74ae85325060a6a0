package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTriggerJob(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.FixedZone("X", 3*3600))
	j := NewTriggerJob("b1", "manual", now)

	_, err := uuid.Parse(j.ID)
	require.NoError(t, err)
	assert.Equal(t, "b1", j.BotID)
	assert.Equal(t, time.UTC, j.RequestedAt.Location())
	assert.True(t, j.RequestedAt.Equal(now))

	raw, err := json.Marshal(j)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"bot_id":"b1"`)
	assert.Contains(t, string(raw), `"trigger":"manual"`)
}
