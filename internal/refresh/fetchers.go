package refresh

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/valora-app/valora/internal/fx"
	"github.com/valora-app/valora/internal/modules/securities"
)

// CategoryFetcher performs the outbound fetch/persist for one category.
// Identifiers enumerates the known work items; FetchOne fetches and persists
// a single item. A FetchOne error is recorded as a failed item and never
// aborts the run.
type CategoryFetcher interface {
	Category() Category
	Identifiers(ctx context.Context) ([]string, error)
	FetchOne(ctx context.Context, identifier string) error
}

// IdentifierSource enumerates security identifiers from the ledger.
type IdentifierSource interface {
	SecurityIdentifiers() ([]string, error)
}

// PairSource enumerates the FX pairs needing coverage for a base currency.
type PairSource interface {
	CurrencyPairs(baseCurrency string) ([]string, error)
}

// BaseCurrencySource reads the configured base currency ("" when unset).
type BaseCurrencySource interface {
	BaseCurrency() (string, error)
}

// MetadataFeed fetches security reference metadata from the provider.
type MetadataFeed interface {
	SecurityMetadata(ctx context.Context, identifier string) (securities.Metadata, error)
}

// PriceFeed fetches the latest closing price from the provider.
type PriceFeed interface {
	LatestClose(ctx context.Context, identifier string) (close float64, currency string, err error)
}

// RateFeed fetches a current exchange rate from the provider.
type RateFeed interface {
	Rate(ctx context.Context, fromCurrency, toCurrency string) (float64, error)
}

// MetadataFetcher refreshes security reference metadata.
type MetadataFetcher struct {
	ledger IdentifierSource
	feed   MetadataFeed
	store  *securities.Store
	log    zerolog.Logger
}

// NewMetadataFetcher creates the security metadata fetcher.
func NewMetadataFetcher(ledger IdentifierSource, feed MetadataFeed, store *securities.Store, log zerolog.Logger) *MetadataFetcher {
	return &MetadataFetcher{
		ledger: ledger,
		feed:   feed,
		store:  store,
		log:    log.With().Str("fetcher", "metadata").Logger(),
	}
}

// Category implements CategoryFetcher.
func (f *MetadataFetcher) Category() Category { return CategoryMetadata }

// Identifiers implements CategoryFetcher.
func (f *MetadataFetcher) Identifiers(ctx context.Context) ([]string, error) {
	return f.ledger.SecurityIdentifiers()
}

// FetchOne fetches and persists metadata for a single security.
func (f *MetadataFetcher) FetchOne(ctx context.Context, identifier string) error {
	md, err := f.feed.SecurityMetadata(ctx, identifier)
	if err != nil {
		return fmt.Errorf("metadata fetch failed: %w", err)
	}

	md.Identifier = identifier
	if err := f.store.UpsertMetadata(md); err != nil {
		return fmt.Errorf("metadata persist failed: %w", err)
	}

	return nil
}

// PriceFetcher refreshes security prices.
type PriceFetcher struct {
	ledger IdentifierSource
	feed   PriceFeed
	store  *securities.Store
	log    zerolog.Logger
	now    func() time.Time
}

// NewPriceFetcher creates the security prices fetcher.
func NewPriceFetcher(ledger IdentifierSource, feed PriceFeed, store *securities.Store, log zerolog.Logger) *PriceFetcher {
	return &PriceFetcher{
		ledger: ledger,
		feed:   feed,
		store:  store,
		log:    log.With().Str("fetcher", "prices").Logger(),
		now:    time.Now,
	}
}

// Category implements CategoryFetcher.
func (f *PriceFetcher) Category() Category { return CategoryPrices }

// Identifiers implements CategoryFetcher.
func (f *PriceFetcher) Identifiers(ctx context.Context) ([]string, error) {
	return f.ledger.SecurityIdentifiers()
}

// FetchOne fetches and persists the latest close for a single security.
func (f *PriceFetcher) FetchOne(ctx context.Context, identifier string) error {
	close, currency, err := f.feed.LatestClose(ctx, identifier)
	if err != nil {
		return fmt.Errorf("price fetch failed: %w", err)
	}

	if err := f.store.UpsertDailyPrice(identifier, f.now(), close, currency); err != nil {
		return fmt.Errorf("price persist failed: %w", err)
	}

	return nil
}

// FxFetcher refreshes exchange-rate observations for every pair the ledger
// needs covered against the configured base currency. Work items are pair
// strings of the form "SRC->DST".
type FxFetcher struct {
	pairs PairSource
	base  BaseCurrencySource
	feed  RateFeed
	store *fx.ObservationStore
	log   zerolog.Logger
	now   func() time.Time
}

// NewFxFetcher creates the FX rates fetcher.
func NewFxFetcher(pairs PairSource, base BaseCurrencySource, feed RateFeed, store *fx.ObservationStore, log zerolog.Logger) *FxFetcher {
	return &FxFetcher{
		pairs: pairs,
		base:  base,
		feed:  feed,
		store: store,
		log:   log.With().Str("fetcher", "fx").Logger(),
		now:   time.Now,
	}
}

// Category implements CategoryFetcher.
func (f *FxFetcher) Category() Category { return CategoryFx }

// Identifiers returns the pairs needing coverage. With no base currency
// configured there is nothing to refresh.
func (f *FxFetcher) Identifiers(ctx context.Context) ([]string, error) {
	base, err := f.base.BaseCurrency()
	if err != nil {
		return nil, err
	}
	if base == "" {
		f.log.Debug().Msg("No base currency configured, skipping fx pairs")
		return nil, nil
	}
	return f.pairs.CurrencyPairs(base)
}

// FetchOne fetches and records the rate for a single "SRC->DST" pair.
func (f *FxFetcher) FetchOne(ctx context.Context, identifier string) error {
	from, to, err := parsePair(identifier)
	if err != nil {
		return err
	}

	rate, err := f.feed.Rate(ctx, from, to)
	if err != nil {
		return fmt.Errorf("rate fetch failed: %w", err)
	}

	if err := f.store.Insert(from, to, f.now(), rate); err != nil {
		return fmt.Errorf("rate persist failed: %w", err)
	}

	return nil
}

// parsePair splits a "SRC->DST" pair identifier.
func parsePair(identifier string) (from, to string, err error) {
	parts := strings.Split(identifier, "->")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed fx pair %q", identifier)
	}
	return parts[0], parts[1], nil
}
