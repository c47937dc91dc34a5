package vatsim

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrFetchFailed is returned by Fetcher.Fetch once the retry budget is exhausted.
var ErrFetchFailed = errors.New("feed fetch failed")

// Notice texts shown to the user while the feed is unreachable.
const (
	retryNoticeFormat = "Connection error. Retry %d/%d..."
	FailureNotice     = "Connection failed. Using cached data."
)

// FetcherConfig wires a Fetcher to its collaborators.
type FetcherConfig struct {
	// Retry is the per-call retry policy. OnRetry is overwritten by the fetcher.
	Retry RetryConfig

	// Notify receives user-visible notices (one per retry, one on failure).
	Notify func(message string)

	// OnAttempt, if set, observes the outcome of every single request.
	OnAttempt func(err error)

	// Logger receives fetch diagnostics. Defaults to a no-op logger.
	Logger *zerolog.Logger
}

// Fetcher retrieves one snapshot with bounded retry.
type Fetcher struct {
	source    Source
	retry     RetryConfig
	notify    func(string)
	onAttempt func(error)
	log       zerolog.Logger
}

// NewFetcher creates a Fetcher over source.
func NewFetcher(source Source, cfg FetcherConfig) *Fetcher {
	f := &Fetcher{
		source:    source,
		retry:     cfg.Retry,
		notify:    cfg.Notify,
		onAttempt: cfg.OnAttempt,
		log:       zerolog.Nop(),
	}
	if cfg.Logger != nil {
		f.log = *cfg.Logger
	}
	if f.notify == nil {
		f.notify = func(string) {}
	}
	return f
}

// Fetch returns the current snapshot. A successful response with empty lists is
// returned as-is with a nil error; it is up to the caller to decide whether to
// apply it. After MaxRetries failed retries it returns an error wrapping
// ErrFetchFailed and the last request error.
func (f *Fetcher) Fetch(ctx context.Context) (Snapshot, error) {
	cfg := f.retry
	cfg.OnRetry = func(retry int, err error) {
		f.log.Warn().Err(err).Int("retry", retry).Int("max_retries", cfg.MaxRetries).Msg("Feed request failed, retrying")
		f.notify(fmt.Sprintf(retryNoticeFormat, retry, cfg.MaxRetries))
	}

	snap, err := RetryWithBackoffResult(ctx, cfg, func() (Snapshot, error) {
		s, err := f.source.FetchSnapshot(ctx)
		if f.onAttempt != nil {
			f.onAttempt(err)
		}
		return s, err
	})
	if err != nil && ctx.Err() != nil {
		f.log.Debug().Err(err).Msg("Feed request aborted")
		return Snapshot{}, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	if err != nil {
		f.log.Error().Err(err).Msg("Feed unreachable, keeping last good state")
		f.notify(FailureNotice)
		return Snapshot{}, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	f.log.Debug().
		Int("pilots", len(snap.Pilots)).
		Int("controllers", len(snap.Controllers)).
		Msg("Feed snapshot received")
	return snap, nil
}
