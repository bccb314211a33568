package reconciliation

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockSettings is an in-memory settings store
type mockSettings struct {
	values map[string]string

	failSetJSON bool
}

func newMockSettings() *mockSettings {
	return &mockSettings{values: make(map[string]string)}
}

func (m *mockSettings) Get(key string) (*string, error) {
	value, ok := m.values[key]
	if !ok {
		return nil, nil
	}
	return &value, nil
}

func (m *mockSettings) Set(key string, value string, description *string) error {
	m.values[key] = value
	return nil
}

func (m *mockSettings) GetJSON(key string, dest any) (bool, error) {
	value, ok := m.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal([]byte(value), dest)
}

func (m *mockSettings) SetJSON(key string, src any) error {
	if m.failSetJSON {
		return errors.New("write failed")
	}
	data, err := json.Marshal(src)
	if err != nil {
		return err
	}
	m.values[key] = string(data)
	return nil
}

func setupTracker(t *testing.T) (*Tracker, *mockSettings) {
	t.Helper()
	settings := newMockSettings()
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	tracker := NewTracker(settings, logger)
	tracker.now = func() time.Time {
		return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	}
	return tracker, settings
}

func TestBaseCurrencyUnsetByDefault(t *testing.T) {
	tracker, _ := setupTracker(t)

	currency, err := tracker.BaseCurrency()
	require.NoError(t, err)
	assert.Equal(t, "", currency)

	state, err := tracker.GetState()
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestSetBaseCurrencyRejectsUnknownCode(t *testing.T) {
	tracker, _ := setupTracker(t)

	err := tracker.SetBaseCurrency("XXX")
	assert.Error(t, err)

	err = tracker.SetBaseCurrency("")
	assert.Error(t, err)
}

func TestSetBaseCurrencyOpensPendingRecord(t *testing.T) {
	tracker, _ := setupTracker(t)

	require.NoError(t, tracker.SetBaseCurrency("EUR"))

	currency, err := tracker.BaseCurrency()
	require.NoError(t, err)
	assert.Equal(t, "EUR", currency)

	state, err := tracker.GetState()
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "EUR", state.TargetBaseCurrency)
	assert.Equal(t, StatusPending, state.Status)
	assert.Nil(t, state.ResolvedAt)
}

func TestSetBaseCurrencySameValueIsNoOp(t *testing.T) {
	tracker, _ := setupTracker(t)

	require.NoError(t, tracker.SetBaseCurrency("EUR"))
	require.NoError(t, tracker.ResolveIfPending())

	// Re-setting the same value must not reopen the resolved record.
	require.NoError(t, tracker.SetBaseCurrency("EUR"))

	state, err := tracker.GetState()
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, StatusResolved, state.Status)
}

func TestResolveIfPendingMarksResolved(t *testing.T) {
	tracker, _ := setupTracker(t)

	require.NoError(t, tracker.SetBaseCurrency("CHF"))
	require.NoError(t, tracker.ResolveIfPending())

	state, err := tracker.GetState()
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, StatusResolved, state.Status)
	require.NotNil(t, state.ResolvedAt)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), *state.ResolvedAt)
}

func TestResolveIfPendingNoOpWithoutRecord(t *testing.T) {
	tracker, _ := setupTracker(t)

	require.NoError(t, tracker.ResolveIfPending())

	state, err := tracker.GetState()
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestResolveIfPendingIdempotentWhenResolved(t *testing.T) {
	tracker, _ := setupTracker(t)

	require.NoError(t, tracker.SetBaseCurrency("EUR"))
	require.NoError(t, tracker.ResolveIfPending())

	first, err := tracker.GetState()
	require.NoError(t, err)

	require.NoError(t, tracker.ResolveIfPending())
	second, err := tracker.GetState()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResolveIfPendingSkipsMismatchedTarget(t *testing.T) {
	tracker, settings := setupTracker(t)

	require.NoError(t, tracker.SetBaseCurrency("EUR"))

	// Simulate a stale record targeting a currency that is no longer current.
	stale := State{
		TargetBaseCurrency: "USD",
		Status:             StatusPending,
		ChangedAt:          time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, settings.SetJSON(KeyReconciliation, stale))

	require.NoError(t, tracker.ResolveIfPending())

	state, err := tracker.GetState()
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, StatusPending, state.Status)
}

func TestResolveIfPendingStaysPendingOnWriteFailure(t *testing.T) {
	tracker, settings := setupTracker(t)

	require.NoError(t, tracker.SetBaseCurrency("EUR"))
	settings.failSetJSON = true

	err := tracker.ResolveIfPending()
	assert.Error(t, err)

	settings.failSetJSON = false
	state, err := tracker.GetState()
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, StatusPending, state.Status)
}

func TestBaseCurrencyIgnoresDisallowedStoredValue(t *testing.T) {
	tracker, settings := setupTracker(t)

	require.NoError(t, settings.Set(KeyBaseCurrency, "DOGE", nil))

	currency, err := tracker.BaseCurrency()
	require.NoError(t, err)
	assert.Equal(t, "", currency)
}

func TestChangingCurrencyReopensPending(t *testing.T) {
	tracker, _ := setupTracker(t)

	require.NoError(t, tracker.SetBaseCurrency("EUR"))
	require.NoError(t, tracker.ResolveIfPending())

	require.NoError(t, tracker.SetBaseCurrency("USD"))

	state, err := tracker.GetState()
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "USD", state.TargetBaseCurrency)
	assert.Equal(t, StatusPending, state.Status)
	assert.Nil(t, state.ResolvedAt)
}
