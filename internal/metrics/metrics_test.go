package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rightblock/internal/models"
	"rightblock/internal/queue"
	"rightblock/internal/store"
)

func TestRecorder(t *testing.T) {
	before := testutil.ToFloat64(AttemptsTotal.WithLabelValues("background", "success"))
	cooldowns := testutil.ToFloat64(CooldownsTotal)

	var r Recorder
	r.Outcome("background", models.OutcomeSuccess)
	r.Outcome("background", models.OutcomeSuccess)
	r.Outcome("foreground", models.OutcomeCooldown)

	assert.Equal(t, before+2, testutil.ToFloat64(AttemptsTotal.WithLabelValues("background", "success")))
	assert.Equal(t, cooldowns+1, testutil.ToFloat64(CooldownsTotal))
}

func TestObserveState(t *testing.T) {
	ctx := context.Background()
	st := queue.New(store.New(store.NewMemory(), nil, nil), nil)
	require.NoError(t, st.SetQueue(ctx, []string{"a", "b"}))
	require.NoError(t, st.AddHistory(ctx, "c"))

	ObserveState(ctx, st)
	assert.Equal(t, 2.0, testutil.ToFloat64(ListSize.WithLabelValues("queue")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ListSize.WithLabelValues("history")))
	assert.Equal(t, 0.0, testutil.ToFloat64(CooldownUntil))

	until := time.Now().Add(time.Hour)
	require.NoError(t, st.SetCooldownUntil(ctx, until))
	ObserveState(ctx, st)
	assert.Equal(t, float64(until.Unix()), testutil.ToFloat64(CooldownUntil))
}
