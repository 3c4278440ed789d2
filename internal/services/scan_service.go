package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"wifi-rtt-sync/internal/database/influx"
	"wifi-rtt-sync/internal/interfaces"
	"wifi-rtt-sync/internal/models"
	"wifi-rtt-sync/internal/observability"
	"wifi-rtt-sync/internal/permissions"
	"wifi-rtt-sync/internal/state"
)

// ErrCycleActive is returned by Trigger while a previous cycle is still
// waiting for its ranging outcome. Triggers are rejected, not queued.
var ErrCycleActive = errors.New("scan cycle already active")

// ScanService drives one scan-then-range cycle per trigger: permission
// gate, scan snapshot, immediate publish, ranging request for the
// responder-capable subset, merge of the distances back into the
// published list. Only one cycle runs at a time.
type ScanService struct {
	status  interfaces.StatusSource
	scanner interfaces.ScanSource
	ranger  interfaces.RangingSource
	display *state.DisplayState

	registry  *RegistryService
	distances *influx.DistanceWriter
	collector *observability.Collector
	logger    zerolog.Logger

	scanTimeout    time.Duration
	rangingTimeout time.Duration

	mu         sync.Mutex
	active     bool
	generation uint64
	cancelChan chan struct{}
}

func NewScanService(
	status interfaces.StatusSource,
	scanner interfaces.ScanSource,
	ranger interfaces.RangingSource,
	display *state.DisplayState,
	registry *RegistryService,
	distances *influx.DistanceWriter,
	collector *observability.Collector,
	scanTimeout time.Duration,
	rangingTimeout time.Duration,
	logger zerolog.Logger,
) *ScanService {
	return &ScanService{
		status:         status,
		scanner:        scanner,
		ranger:         ranger,
		display:        display,
		registry:       registry,
		distances:      distances,
		collector:      collector,
		scanTimeout:    scanTimeout,
		rangingTimeout: rangingTimeout,
		logger:         logger,
	}
}

// Trigger runs one cycle. It returns once the scan result has been
// published; the ranging merge completes asynchronously. Every early
// exit leaves the display in a well-defined state: empty before a scan
// was published, untouched afterwards.
func (s *ScanService) Trigger(ctx context.Context) error {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return ErrCycleActive
	}
	s.active = true
	s.generation++
	gen := s.generation
	cancelChan := make(chan struct{})
	s.cancelChan = cancelChan
	s.mu.Unlock()

	status, err := s.status.Status(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Could not determine agent grants, treating as denied")
		s.publishEmpty(gen)
		s.finish(gen)
		return nil
	}

	if !permissions.CanRange(status.Capabilities, status.Platform) {
		s.logger.Info().
			Str("platform", string(status.Platform)).
			Msg("Ranging not permitted on this agent")
		s.collector.ObserveCycle("denied")
		s.publishEmpty(gen)
		s.finish(gen)
		return nil
	}

	// The scan round-trip is bounded on its own, the caller's ctx only
	// tightens it further.
	scanCtx, cancelScan := context.WithTimeout(ctx, s.scanTimeout)
	snapshot, err := s.scanner.Scan(scanCtx)
	cancelScan()
	if err != nil {
		s.logger.Warn().Err(err).Msg("Scan rejected, clearing display")
		s.collector.ObserveCycle("scan_failed")
		s.publishEmpty(gen)
		s.finish(gen)
		return nil
	}

	if !snapshot.RadioEnabled {
		s.logger.Info().Msg("Radio disabled on agent, clearing display")
		s.collector.ObserveCycle("radio_disabled")
		s.publishEmpty(gen)
		s.finish(gen)
		return nil
	}

	if !snapshot.RTTAvailable {
		s.logger.Info().Msg("Ranging capability not available on agent, clearing display")
		s.collector.ObserveCycle("ranging_unavailable")
		s.publishEmpty(gen)
		s.finish(gen)
		return nil
	}

	entries := make([]models.DisplayEntry, len(snapshot.AccessPoints))
	for i, ap := range snapshot.AccessPoints {
		entries[i] = models.NewDisplayEntry(ap)
	}

	// The scan result is published before any ranging request exists, so
	// the display always shows the full access point list without
	// waiting on distances. A Cancel that raced the scan has already
	// bumped the generation and the result is discarded.
	if !s.publishIfCurrent(gen, entries) {
		return nil
	}
	s.collector.ObserveCycle("scanned")
	s.collector.SetDisplayEntries(len(entries))

	if s.registry != nil {
		accessPoints := snapshot.AccessPoints
		go func() {
			recordCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := s.registry.RecordScan(recordCtx, accessPoints); err != nil {
				s.logger.Warn().Err(err).Msg("Could not record scan in registry")
			}
		}()
	}

	bssids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.RTTCapable {
			bssids = append(bssids, entry.BSSID)
		}
	}

	if len(bssids) == 0 {
		s.logger.Debug().Int("entries", len(entries)).Msg("No responder-capable access points, scan-only cycle")
		s.finish(gen)
		return nil
	}

	rangeCtx, cancelRange := context.WithCancel(context.Background())
	outcomes, err := s.ranger.Range(rangeCtx, bssids)
	if err != nil {
		cancelRange()
		s.logger.Error().Err(err).Msg("Could not issue ranging request, keeping scan-only results")
		s.collector.ObserveRangingFailure()
		s.finish(gen)
		return nil
	}

	s.collector.ObserveRangingRequest(len(bssids))
	s.logger.Debug().Int("bssids", len(bssids)).Msg("Ranging request issued")

	go s.awaitRanging(gen, entries, outcomes, cancelRange, cancelChan)

	return nil
}

// Cancel aborts the active cycle, if any. A ranging outcome arriving
// after Cancel never mutates the display.
func (s *ScanService) Cancel() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	s.generation++
	cancelChan := s.cancelChan
	s.cancelChan = nil
	s.mu.Unlock()

	if cancelChan != nil {
		close(cancelChan)
	}

	s.logger.Info().Msg("Active scan cycle cancelled")
}

// Active reports whether a cycle is currently in flight.
func (s *ScanService) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *ScanService) awaitRanging(
	gen uint64,
	entries []models.DisplayEntry,
	outcomes <-chan models.RangingOutcome,
	cancelRange context.CancelFunc,
	cancelled <-chan struct{},
) {
	defer cancelRange()

	timer := time.NewTimer(s.rangingTimeout)
	defer timer.Stop()

	select {
	case outcome := <-outcomes:
		if outcome.Failure != nil {
			// Scan-only results stay on the display: partial information
			// beats a wiped screen.
			s.logger.Warn().
				Int("code", outcome.Failure.Code).
				Msg("Ranging failed, keeping scan-only results")
			s.collector.ObserveRangingFailure()
			s.exportFailure(outcome.Failure)
			s.finish(gen)
			return
		}

		merged, matched := mergeDistances(entries, outcome.Results)
		if s.publishIfCurrent(gen, merged) {
			s.collector.ObserveDistancesMerged(matched)
			s.exportDistances(merged)
			s.logger.Info().
				Int("entries", len(merged)).
				Int("matched", matched).
				Msg("Ranging results merged")
		}
		s.finish(gen)

	case <-timer.C:
		s.logger.Warn().
			Dur("timeout", s.rangingTimeout).
			Msg("Ranging request timed out, keeping scan-only results")
		s.collector.ObserveRangingFailure()
		s.finish(gen)

	case <-cancelled:
		// Cycle was cancelled; drop whatever the agent answers later.
	}
}

// mergeDistances attaches ranging results to the entries they belong to.
// Lookup is by exact BSSID equality; unmatched entries stay untouched,
// result tuples without a matching entry are dropped, entries without
// responder support never receive a distance.
func mergeDistances(entries []models.DisplayEntry, results []models.RangingResult) ([]models.DisplayEntry, int) {
	byBSSID := make(map[string]models.RangingResult, len(results))
	for _, result := range results {
		byBSSID[result.BSSID] = result
	}

	merged := make([]models.DisplayEntry, len(entries))
	matched := 0
	for i, entry := range entries {
		merged[i] = entry
		if !entry.RTTCapable {
			continue
		}

		result, ok := byBSSID[entry.BSSID]
		if !ok {
			continue
		}

		distance := result.DistanceMeters()
		stdDev := result.DistanceStdDevMeters()
		merged[i].DistanceMeters = &distance
		merged[i].DistanceStdDevMeters = &stdDev
		matched++
	}

	return merged, matched
}

func (s *ScanService) publishEmpty(gen uint64) {
	if s.publishIfCurrent(gen, []models.DisplayEntry{}) {
		s.collector.SetDisplayEntries(0)
	}
}

func (s *ScanService) publishIfCurrent(gen uint64, entries []models.DisplayEntry) bool {
	s.mu.Lock()
	current := s.generation == gen
	s.mu.Unlock()

	if !current {
		return false
	}

	s.display.Set(entries)
	return true
}

func (s *ScanService) finish(gen uint64) {
	s.mu.Lock()
	if s.generation == gen {
		s.active = false
		s.cancelChan = nil
	}
	s.mu.Unlock()
}

func (s *ScanService) exportDistances(entries []models.DisplayEntry) {
	if s.distances == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.distances.WriteDistances(ctx, entries); err != nil {
		s.logger.Warn().Err(err).Msg("Could not export distances")
	}
}

func (s *ScanService) exportFailure(failure *models.RangingFailure) {
	if s.distances == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.distances.WriteFailure(ctx, failure.Code); err != nil {
		s.logger.Warn().Err(err).Msg("Could not export ranging failure")
	}
}
