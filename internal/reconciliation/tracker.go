// Package reconciliation tracks whether FX data has caught up with a
// base-currency change.
//
// When the configured base currency changes, displayed totals are converted
// with whatever FX history is on hand until a clean FX refresh completes.
// The tracker records that gap as a persisted state machine: a pending
// record is opened on change and resolved only by the refresh manager's
// completion hook after a zero-failure FX refresh.
package reconciliation

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Settings keys used by the tracker.
const (
	// KeyBaseCurrency stores the configured base currency code.
	KeyBaseCurrency = "base_currency"
	// KeyReconciliation stores the reconciliation record as JSON.
	KeyReconciliation = "base_currency_reconciliation"
)

// Reconciliation statuses.
const (
	StatusPending  = "pending"
	StatusResolved = "resolved"
)

// allowedCurrencies is the curated set of currency codes the application
// supports as a base currency. Stored values outside this set read back as
// unset rather than erroring.
var allowedCurrencies = map[string]bool{
	"AUD": true, "CAD": true, "CHF": true, "CZK": true, "DKK": true,
	"EUR": true, "GBP": true, "HKD": true, "JPY": true, "NOK": true,
	"NZD": true, "PLN": true, "SEK": true, "SGD": true, "USD": true,
}

// State is the persisted reconciliation record.
type State struct {
	TargetBaseCurrency string     `json:"target_base_currency"`
	Status             string     `json:"status"`
	ChangedAt          time.Time  `json:"changed_at"`
	ResolvedAt         *time.Time `json:"resolved_at,omitempty"`
}

// SettingsStore is the narrow settings contract the tracker needs.
type SettingsStore interface {
	Get(key string) (*string, error)
	Set(key string, value string, description *string) error
	GetJSON(key string, dest any) (bool, error)
	SetJSON(key string, src any) error
}

// Tracker persists the base currency and its reconciliation state.
type Tracker struct {
	settings SettingsStore
	log      zerolog.Logger
	now      func() time.Time
}

// NewTracker creates a new reconciliation tracker.
func NewTracker(settings SettingsStore, log zerolog.Logger) *Tracker {
	return &Tracker{
		settings: settings,
		log:      log.With().Str("component", "reconciliation").Logger(),
		now:      time.Now,
	}
}

// IsAllowedCurrency reports whether code is in the curated allow-list.
func IsAllowedCurrency(code string) bool {
	return allowedCurrencies[code]
}

// BaseCurrency returns the configured base currency, or "" when unset or
// when the stored value is not in the allow-list.
func (t *Tracker) BaseCurrency() (string, error) {
	value, err := t.settings.Get(KeyBaseCurrency)
	if err != nil {
		return "", err
	}
	if value == nil {
		return "", nil
	}
	if !allowedCurrencies[*value] {
		t.log.Warn().Str("value", *value).Msg("Stored base currency not in allow-list, treating as unset")
		return "", nil
	}
	return *value, nil
}

// SetBaseCurrency persists a new base currency and opens a pending
// reconciliation record. Setting the currency to its current value is a
// no-op: no timestamp reset, no re-opening of a resolved record. This never
// touches ledger or account data.
func (t *Tracker) SetBaseCurrency(newCurrency string) error {
	if !allowedCurrencies[newCurrency] {
		return fmt.Errorf("unsupported base currency %q", newCurrency)
	}

	current, err := t.BaseCurrency()
	if err != nil {
		return err
	}
	if current == newCurrency {
		return nil
	}

	if err := t.settings.Set(KeyBaseCurrency, newCurrency, nil); err != nil {
		return fmt.Errorf("failed to store base currency: %w", err)
	}

	state := State{
		TargetBaseCurrency: newCurrency,
		Status:             StatusPending,
		ChangedAt:          t.now().UTC(),
	}
	if err := t.settings.SetJSON(KeyReconciliation, state); err != nil {
		return fmt.Errorf("failed to store reconciliation record: %w", err)
	}

	t.log.Info().
		Str("from", current).
		Str("to", newCurrency).
		Msg("Base currency changed, reconciliation pending")

	return nil
}

// ResolveIfPending marks the reconciliation record resolved. Called by the
// refresh manager after a run completes with FX in scope and zero failures.
// No-op when no record exists, the record is already resolved, or its target
// does not match the currently configured base currency. On a failed write
// the record stays pending: the system never reports resolved on an
// uncertain write.
func (t *Tracker) ResolveIfPending() error {
	var state State
	found, err := t.settings.GetJSON(KeyReconciliation, &state)
	if err != nil {
		return err
	}
	if !found || state.Status == StatusResolved {
		return nil
	}

	current, err := t.BaseCurrency()
	if err != nil {
		return err
	}
	if state.TargetBaseCurrency != current {
		t.log.Warn().
			Str("target", state.TargetBaseCurrency).
			Str("current", current).
			Msg("Reconciliation target does not match configured base currency, leaving pending")
		return nil
	}

	resolvedAt := t.now().UTC()
	state.Status = StatusResolved
	state.ResolvedAt = &resolvedAt

	if err := t.settings.SetJSON(KeyReconciliation, state); err != nil {
		return fmt.Errorf("failed to mark reconciliation resolved: %w", err)
	}

	t.log.Info().
		Str("base_currency", state.TargetBaseCurrency).
		Msg("Base currency reconciliation resolved")

	return nil
}

// GetState returns the persisted reconciliation record, or nil if none exists.
func (t *Tracker) GetState() (*State, error) {
	var state State
	found, err := t.settings.GetJSON(KeyReconciliation, &state)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &state, nil
}
