// Discolog - Personal Music Library and Listening History Backend
// Copyright 2026 Nils K. (nilskh)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nilskh/discolog

package sync

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/nilskh/discolog/internal/logging"
	"github.com/nilskh/discolog/internal/resilience"
)

// Page is one page of provider records. Total is the provider-reported
// record count across all pages, zero when the provider does not report
// one.
type Page[T any] struct {
	Records []T
	HasMore bool
	Total   int
}

// PageFunc fetches one page, numbered from 1.
type PageFunc[T any] func(ctx context.Context, page int) (*Page[T], error)

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	// Operation names the fetch in logs and retry metrics.
	Operation string

	// CourtesyDelay is the minimum spacing between page requests.
	// Zero disables pacing.
	CourtesyDelay time.Duration

	// Limit caps the number of records yielded to the caller. Zero
	// means unlimited. Skipped records do not count against it.
	Limit int

	// Retry wraps each page fetch. Required.
	Retry *resilience.Policy
}

// FetchResult summarizes one pagination walk. It is valid even when
// FetchAll returns an error: counts reflect the records yielded before
// the walk stopped.
type FetchResult struct {
	Fetched      int
	Skipped      int
	Pages        int
	Total        int
	RateLimited  bool
	LimitReached bool
}

// Fetcher walks a provider's paginated listing, spacing page requests
// by a courtesy delay and retrying each page through the resilience
// policy. A rate-limit signal ends the walk early without error so the
// caller keeps everything fetched so far.
type Fetcher[T any] struct {
	operation string
	fetchPage PageFunc[T]
	key       func(T) string
	retry     *resilience.Policy
	limiter   *rate.Limiter
	limit     int

	// OnTotal is invoked once with the provider-reported total, when
	// the first page that carries one arrives.
	OnTotal func(total int)
}

// NewFetcher creates a Fetcher. key extracts the natural key used for
// skip-set membership and for detecting pagination that stopped
// advancing.
func NewFetcher[T any](cfg FetcherConfig, fetch PageFunc[T], key func(T) string) *Fetcher[T] {
	f := &Fetcher[T]{
		operation: cfg.Operation,
		fetchPage: fetch,
		key:       key,
		retry:     cfg.Retry,
		limit:     cfg.Limit,
	}
	if cfg.CourtesyDelay > 0 {
		f.limiter = rate.NewLimiter(rate.Every(cfg.CourtesyDelay), 1)
	}
	return f
}

// FetchAll walks pages from 1 until the provider reports no more
// records, the record limit is reached, or the walk is cut short.
//
// Records whose key is in skip are reported to onSkip and never reach
// onRecord, so the caller performs no further work for them. All other
// records go to onRecord in provider order; a non-nil error from
// onRecord aborts the walk and is returned as-is.
//
// A rate-limited page fetch stops the walk with RateLimited set and a
// nil error. Any other page fetch failure, including retry exhaustion,
// is returned to the caller.
func (f *Fetcher[T]) FetchAll(ctx context.Context, skip map[string]struct{}, onRecord func(T) error, onSkip func(T)) (*FetchResult, error) {
	result := &FetchResult{}
	prevFirst := ""

	for page := 1; ; page++ {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return result, err
			}
		} else if err := ctx.Err(); err != nil {
			return result, err
		}

		p, err := resilience.Do(ctx, f.retry, f.operation, func(ctx context.Context) (*Page[T], error) {
			return f.fetchPage(ctx, page)
		})
		if err != nil {
			if resilience.IsRateLimited(err) {
				logging.Warn().
					Str("operation", f.operation).
					Int("page", page).
					Int("fetched", result.Fetched).
					Msg("Provider rate limit hit, stopping pagination early")
				result.RateLimited = true
				return result, nil
			}
			return result, err
		}
		result.Pages++

		if p.Total > 0 && result.Total == 0 {
			result.Total = p.Total
			if f.OnTotal != nil {
				f.OnTotal(p.Total)
			}
		}

		if len(p.Records) == 0 {
			if p.HasMore {
				logging.Warn().
					Str("operation", f.operation).
					Int("page", page).
					Msg("Empty page reported more results, stopping")
			}
			return result, nil
		}

		// A page starting with the same record as the last one means
		// the provider's pagination stopped advancing.
		first := f.key(p.Records[0])
		if page > 1 && first == prevFirst {
			logging.Warn().
				Str("operation", f.operation).
				Int("page", page).
				Str("key", first).
				Msg("Pagination did not advance, stopping")
			return result, nil
		}
		prevFirst = first

		for _, rec := range p.Records {
			if _, ok := skip[f.key(rec)]; ok {
				result.Skipped++
				if onSkip != nil {
					onSkip(rec)
				}
				continue
			}

			if err := onRecord(rec); err != nil {
				return result, err
			}
			result.Fetched++

			if f.limit > 0 && result.Fetched >= f.limit {
				logging.Info().
					Str("operation", f.operation).
					Int("limit", f.limit).
					Msg("Record limit reached, stopping pagination")
				result.LimitReached = true
				return result, nil
			}
		}

		if !p.HasMore {
			return result, nil
		}
	}
}
