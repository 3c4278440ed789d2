package services

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"wifi-rtt-sync/internal/models"
	"wifi-rtt-sync/internal/state"
)

type fakeStatusSource struct {
	status *models.AgentStatus
	err    error
}

func (f *fakeStatusSource) Status(ctx context.Context) (*models.AgentStatus, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.status, nil
}

type fakeScanSource struct {
	mu       sync.Mutex
	snapshot *models.ScanSnapshot
	err      error
	calls    int

	// Scan blocks on wait (or ctx) when set.
	wait <-chan struct{}
}

func (f *fakeScanSource) Scan(ctx context.Context) (*models.ScanSnapshot, error) {
	f.mu.Lock()
	f.calls++
	snapshot, err, wait := f.snapshot, f.err, f.wait
	f.mu.Unlock()

	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (f *fakeScanSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRangingSource struct {
	mu       sync.Mutex
	requests [][]string
	outcome  chan models.RangingOutcome
	err      error
}

func (f *fakeRangingSource) Range(ctx context.Context, bssids []string) (<-chan models.RangingOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	f.requests = append(f.requests, bssids)
	f.outcome = make(chan models.RangingOutcome, 1)
	return f.outcome, nil
}

func (f *fakeRangingSource) deliver(outcome models.RangingOutcome) {
	f.mu.Lock()
	ch := f.outcome
	f.mu.Unlock()
	ch <- outcome
}

func (f *fakeRangingSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func modernGranted() *models.AgentStatus {
	return &models.AgentStatus{
		Capabilities: models.CapabilitySet{NearbyDevices: true},
		Platform:     models.PlatformModern,
	}
}

func testSnapshot(aps ...models.AccessPoint) *models.ScanSnapshot {
	return &models.ScanSnapshot{
		RadioEnabled: true,
		RTTAvailable: true,
		AccessPoints: aps,
	}
}

func newTestService(status *fakeStatusSource, scanner *fakeScanSource, ranger *fakeRangingSource, rangingTimeout time.Duration) (*ScanService, *state.DisplayState) {
	display := state.NewDisplayState()
	service := NewScanService(status, scanner, ranger, display, nil, nil, nil, time.Second, rangingTimeout, zerolog.Nop())
	return service, display
}

func waitIdle(t *testing.T, s *ScanService) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !s.Active() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("scan service did not return to idle")
}

func TestTriggerDeniedPublishesEmptyAndSkipsSources(t *testing.T) {
	status := &fakeStatusSource{status: &models.AgentStatus{
		Capabilities: models.CapabilitySet{PreciseLocation: true},
		Platform:     models.PlatformModern,
	}}
	scanner := &fakeScanSource{snapshot: testSnapshot(models.AccessPoint{BSSID: "aa:bb:cc:dd:ee:01"})}
	ranger := &fakeRangingSource{}
	service, display := newTestService(status, scanner, ranger, time.Second)

	// Pre-seed the display to prove the denial clears it.
	display.Set([]models.DisplayEntry{{BSSID: "stale"}})

	if err := service.Trigger(context.Background()); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	waitIdle(t, service)

	if entries := display.Get(); len(entries) != 0 {
		t.Errorf("display has %d entries after denial, want 0", len(entries))
	}
	if scanner.callCount() != 0 {
		t.Error("scan source was called despite denied gate")
	}
	if ranger.callCount() != 0 {
		t.Error("ranging source was called despite denied gate")
	}
}

func TestTriggerStatusErrorTreatedAsDenial(t *testing.T) {
	status := &fakeStatusSource{err: errors.New("agent unreachable")}
	scanner := &fakeScanSource{snapshot: testSnapshot()}
	ranger := &fakeRangingSource{}
	service, display := newTestService(status, scanner, ranger, time.Second)

	if err := service.Trigger(context.Background()); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	waitIdle(t, service)

	if entries := display.Get(); len(entries) != 0 {
		t.Errorf("display has %d entries, want 0", len(entries))
	}
	if scanner.callCount() != 0 {
		t.Error("scan source was called despite status error")
	}
}

func TestRadioDisabledPublishesEmpty(t *testing.T) {
	snapshot := testSnapshot(models.AccessPoint{BSSID: "aa:bb:cc:dd:ee:01", RTTCapable: true})
	snapshot.RadioEnabled = false

	service, display := newTestService(
		&fakeStatusSource{status: modernGranted()},
		&fakeScanSource{snapshot: snapshot},
		&fakeRangingSource{},
		time.Second,
	)

	if err := service.Trigger(context.Background()); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	waitIdle(t, service)

	if entries := display.Get(); len(entries) != 0 {
		t.Errorf("display has %d entries with radio disabled, want 0", len(entries))
	}
}

func TestRangingUnavailablePublishesEmpty(t *testing.T) {
	snapshot := testSnapshot(models.AccessPoint{BSSID: "aa:bb:cc:dd:ee:01", RTTCapable: true})
	snapshot.RTTAvailable = false

	ranger := &fakeRangingSource{}
	service, display := newTestService(
		&fakeStatusSource{status: modernGranted()},
		&fakeScanSource{snapshot: snapshot},
		ranger,
		time.Second,
	)

	if err := service.Trigger(context.Background()); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	waitIdle(t, service)

	if entries := display.Get(); len(entries) != 0 {
		t.Errorf("display has %d entries without ranging capability, want 0", len(entries))
	}
	if ranger.callCount() != 0 {
		t.Error("ranging source was called despite missing capability")
	}
}

func TestScanErrorPublishesEmpty(t *testing.T) {
	service, display := newTestService(
		&fakeStatusSource{status: modernGranted()},
		&fakeScanSource{err: errors.New("security exception")},
		&fakeRangingSource{},
		time.Second,
	)

	display.Set([]models.DisplayEntry{{BSSID: "stale"}})

	if err := service.Trigger(context.Background()); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	waitIdle(t, service)

	if entries := display.Get(); len(entries) != 0 {
		t.Errorf("display has %d entries after scan rejection, want 0", len(entries))
	}
}

func TestScanTimeoutPublishesEmpty(t *testing.T) {
	scanner := &fakeScanSource{
		snapshot: testSnapshot(models.AccessPoint{BSSID: "aa:bb:cc:dd:ee:01", RTTCapable: true}),
		wait:     make(chan struct{}), // never delivered
	}
	ranger := &fakeRangingSource{}
	display := state.NewDisplayState()
	service := NewScanService(
		&fakeStatusSource{status: modernGranted()},
		scanner, ranger, display,
		nil, nil, nil,
		50*time.Millisecond, time.Second,
		zerolog.Nop(),
	)

	display.Set([]models.DisplayEntry{{BSSID: "stale"}})

	start := time.Now()
	if err := service.Trigger(context.Background()); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Trigger blocked %v despite 50ms scan timeout", elapsed)
	}
	waitIdle(t, service)

	if entries := display.Get(); len(entries) != 0 {
		t.Errorf("display has %d entries after scan timeout, want 0", len(entries))
	}
	if ranger.callCount() != 0 {
		t.Error("ranging source was called despite scan timeout")
	}
}

func TestCancelDuringScanSuppressesPublish(t *testing.T) {
	release := make(chan struct{})
	scanner := &fakeScanSource{
		snapshot: testSnapshot(models.AccessPoint{BSSID: "aa:bb:cc:dd:ee:01", RTTCapable: true}),
		wait:     release,
	}
	ranger := &fakeRangingSource{}
	service, display := newTestService(
		&fakeStatusSource{status: modernGranted()},
		scanner,
		ranger,
		time.Second,
	)

	display.Set([]models.DisplayEntry{{BSSID: "stale"}})
	before := display.Get()

	done := make(chan error, 1)
	go func() {
		done <- service.Trigger(context.Background())
	}()

	deadline := time.Now().Add(2 * time.Second)
	for scanner.callCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("scan was never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	service.Cancel()
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}

	after := display.Get()
	if !reflect.DeepEqual(before, after) {
		t.Error("scan result of a cancelled cycle mutated the display")
	}
	if ranger.callCount() != 0 {
		t.Error("ranging requested by a cancelled cycle")
	}
}

func TestScanPublishPreservesOrderWithoutDistances(t *testing.T) {
	aps := []models.AccessPoint{
		{BSSID: "aa:bb:cc:dd:ee:01", SSID: "office", SignalLevel: -40, FrequencyMHz: 5180, Capabilities: "[WPA2-PSK-CCMP]", RTTCapable: true},
		{BSSID: "aa:bb:cc:dd:ee:02", SSID: "", SignalLevel: -67, FrequencyMHz: 2437, Capabilities: "[ESS]", RTTCapable: false},
		{BSSID: "aa:bb:cc:dd:ee:03", SSID: "guest", SignalLevel: -71, FrequencyMHz: 5500, Capabilities: "[WPA2-PSK-CCMP]", RTTCapable: true},
	}
	ranger := &fakeRangingSource{}
	service, display := newTestService(
		&fakeStatusSource{status: modernGranted()},
		&fakeScanSource{snapshot: testSnapshot(aps...)},
		ranger,
		time.Second,
	)

	if err := service.Trigger(context.Background()); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}

	// The scan publish happens before Trigger returns.
	entries := display.Get()
	if len(entries) != len(aps) {
		t.Fatalf("display has %d entries, want %d", len(entries), len(aps))
	}
	for i, entry := range entries {
		if entry.BSSID != aps[i].BSSID {
			t.Errorf("entry %d BSSID = %s, want %s", i, entry.BSSID, aps[i].BSSID)
		}
		if entry.SSID != aps[i].SSID || entry.SignalLevel != aps[i].SignalLevel ||
			entry.FrequencyMHz != aps[i].FrequencyMHz || entry.Capabilities != aps[i].Capabilities ||
			entry.RTTCapable != aps[i].RTTCapable {
			t.Errorf("entry %d does not match scanned access point", i)
		}
		if entry.DistanceMeters != nil || entry.DistanceStdDevMeters != nil {
			t.Errorf("entry %d already has a distance before any merge", i)
		}
	}

	ranger.deliver(models.RangingOutcome{Failure: &models.RangingFailure{Code: 1}})
	waitIdle(t, service)
}

func TestEmptyScanPublishesEmptyAndIdles(t *testing.T) {
	ranger := &fakeRangingSource{}
	service, display := newTestService(
		&fakeStatusSource{status: modernGranted()},
		&fakeScanSource{snapshot: testSnapshot()},
		ranger,
		time.Second,
	)

	if err := service.Trigger(context.Background()); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}

	if service.Active() {
		t.Error("service still active after empty scan")
	}
	if entries := display.Get(); len(entries) != 0 {
		t.Errorf("display has %d entries, want 0", len(entries))
	}
	if ranger.callCount() != 0 {
		t.Error("ranging requested for empty scan")
	}
}

func TestNoCapableEntriesSkipsRanging(t *testing.T) {
	aps := []models.AccessPoint{
		{BSSID: "aa:bb:cc:dd:ee:01", RTTCapable: false},
		{BSSID: "aa:bb:cc:dd:ee:02", RTTCapable: false},
	}
	ranger := &fakeRangingSource{}
	service, display := newTestService(
		&fakeStatusSource{status: modernGranted()},
		&fakeScanSource{snapshot: testSnapshot(aps...)},
		ranger,
		time.Second,
	)

	if err := service.Trigger(context.Background()); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}

	if service.Active() {
		t.Error("service still active with no capable entries")
	}
	if ranger.callCount() != 0 {
		t.Error("ranging requested with no capable entries")
	}
	if entries := display.Get(); len(entries) != 2 {
		t.Errorf("display has %d entries, want 2", len(entries))
	}
}

func TestRangingRequestCarriesExactlyCapableBSSIDs(t *testing.T) {
	aps := []models.AccessPoint{
		{BSSID: "aa:bb:cc:dd:ee:01", RTTCapable: true},
		{BSSID: "aa:bb:cc:dd:ee:02", RTTCapable: false},
		{BSSID: "aa:bb:cc:dd:ee:03", RTTCapable: true},
	}
	ranger := &fakeRangingSource{}
	service, _ := newTestService(
		&fakeStatusSource{status: modernGranted()},
		&fakeScanSource{snapshot: testSnapshot(aps...)},
		ranger,
		time.Second,
	)

	if err := service.Trigger(context.Background()); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}

	if ranger.callCount() != 1 {
		t.Fatalf("ranging called %d times, want 1", ranger.callCount())
	}
	want := []string{"aa:bb:cc:dd:ee:01", "aa:bb:cc:dd:ee:03"}
	if !reflect.DeepEqual(ranger.requests[0], want) {
		t.Errorf("ranging request BSSIDs = %v, want %v", ranger.requests[0], want)
	}

	ranger.deliver(models.RangingOutcome{})
	waitIdle(t, service)
}

func TestMergeSuccessAttachesExactDistances(t *testing.T) {
	aps := []models.AccessPoint{
		{BSSID: "aa:bb:cc:dd:ee:01", SSID: "office", RTTCapable: true},
		{BSSID: "aa:bb:cc:dd:ee:02", SSID: "printer", RTTCapable: false},
	}
	ranger := &fakeRangingSource{}
	service, display := newTestService(
		&fakeStatusSource{status: modernGranted()},
		&fakeScanSource{snapshot: testSnapshot(aps...)},
		ranger,
		time.Second,
	)

	if err := service.Trigger(context.Background()); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}

	ranger.deliver(models.RangingOutcome{Results: []models.RangingResult{
		{BSSID: "aa:bb:cc:dd:ee:01", DistanceMm: 2500, DistanceStdDevMm: 150},
	}})
	waitIdle(t, service)

	entries := display.Get()
	if len(entries) != 2 {
		t.Fatalf("display has %d entries, want 2", len(entries))
	}

	first := entries[0]
	if first.DistanceMeters == nil || first.DistanceStdDevMeters == nil {
		t.Fatal("matched entry has no distance after merge")
	}
	if *first.DistanceMeters != 2.5 {
		t.Errorf("distance = %v m, want 2.5", *first.DistanceMeters)
	}
	if *first.DistanceStdDevMeters != 0.15 {
		t.Errorf("std dev = %v m, want 0.15", *first.DistanceStdDevMeters)
	}

	second := entries[1]
	if second.DistanceMeters != nil || second.DistanceStdDevMeters != nil {
		t.Error("non-capable entry acquired a distance")
	}
}

func TestPartialMatchAndExtraResultsIgnored(t *testing.T) {
	aps := []models.AccessPoint{
		{BSSID: "aa:bb:cc:dd:ee:01", RTTCapable: true},
		{BSSID: "aa:bb:cc:dd:ee:02", RTTCapable: true},
		{BSSID: "aa:bb:cc:dd:ee:03", RTTCapable: false},
	}
	ranger := &fakeRangingSource{}
	service, display := newTestService(
		&fakeStatusSource{status: modernGranted()},
		&fakeScanSource{snapshot: testSnapshot(aps...)},
		ranger,
		time.Second,
	)

	if err := service.Trigger(context.Background()); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}

	ranger.deliver(models.RangingOutcome{Results: []models.RangingResult{
		{BSSID: "aa:bb:cc:dd:ee:01", DistanceMm: 1000, DistanceStdDevMm: 100},
		// Stale tuple from an access point not in this scan.
		{BSSID: "ff:ff:ff:ff:ff:ff", DistanceMm: 9000, DistanceStdDevMm: 900},
		// Tuple for a non-capable entry must never be applied.
		{BSSID: "aa:bb:cc:dd:ee:03", DistanceMm: 3000, DistanceStdDevMm: 300},
	}})
	waitIdle(t, service)

	entries := display.Get()
	if len(entries) != 3 {
		t.Fatalf("display has %d entries, want 3", len(entries))
	}
	if entries[0].DistanceMeters == nil || *entries[0].DistanceMeters != 1.0 {
		t.Error("matched capable entry not updated")
	}
	if entries[1].DistanceMeters != nil || entries[1].DistanceStdDevMeters != nil {
		t.Error("unmatched capable entry acquired a distance")
	}
	if entries[2].DistanceMeters != nil || entries[2].DistanceStdDevMeters != nil {
		t.Error("non-capable entry acquired a distance from a stray result")
	}
}

func TestMergeWithZeroMatchesLeavesDisplayUnchanged(t *testing.T) {
	aps := []models.AccessPoint{
		{BSSID: "aa:bb:cc:dd:ee:01", SSID: "office", SignalLevel: -50, RTTCapable: true},
		{BSSID: "aa:bb:cc:dd:ee:02", SSID: "guest", SignalLevel: -60, RTTCapable: false},
	}
	ranger := &fakeRangingSource{}
	service, display := newTestService(
		&fakeStatusSource{status: modernGranted()},
		&fakeScanSource{snapshot: testSnapshot(aps...)},
		ranger,
		time.Second,
	)

	if err := service.Trigger(context.Background()); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	before := display.Get()

	ranger.deliver(models.RangingOutcome{Results: []models.RangingResult{
		{BSSID: "ff:ff:ff:ff:ff:ff", DistanceMm: 1234, DistanceStdDevMm: 56},
	}})
	waitIdle(t, service)

	after := display.Get()
	if !reflect.DeepEqual(before, after) {
		t.Errorf("display changed by a zero-match merge:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestRangingFailureKeepsScanResults(t *testing.T) {
	aps := []models.AccessPoint{
		{BSSID: "aa:bb:cc:dd:ee:01", RTTCapable: true},
		{BSSID: "aa:bb:cc:dd:ee:02", RTTCapable: false},
	}
	ranger := &fakeRangingSource{}
	service, display := newTestService(
		&fakeStatusSource{status: modernGranted()},
		&fakeScanSource{snapshot: testSnapshot(aps...)},
		ranger,
		time.Second,
	)

	if err := service.Trigger(context.Background()); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	before := display.Get()

	ranger.deliver(models.RangingOutcome{Failure: &models.RangingFailure{Code: -2}})
	waitIdle(t, service)

	after := display.Get()
	if !reflect.DeepEqual(before, after) {
		t.Errorf("display changed by a ranging failure:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestRangingTimeoutKeepsScanResults(t *testing.T) {
	aps := []models.AccessPoint{{BSSID: "aa:bb:cc:dd:ee:01", RTTCapable: true}}
	ranger := &fakeRangingSource{}
	service, display := newTestService(
		&fakeStatusSource{status: modernGranted()},
		&fakeScanSource{snapshot: testSnapshot(aps...)},
		ranger,
		50*time.Millisecond,
	)

	if err := service.Trigger(context.Background()); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	before := display.Get()

	// Never deliver an outcome; the timeout must end the cycle.
	waitIdle(t, service)

	after := display.Get()
	if !reflect.DeepEqual(before, after) {
		t.Error("display changed by a ranging timeout")
	}
}

func TestTriggerRejectedWhileCycleActive(t *testing.T) {
	aps := []models.AccessPoint{{BSSID: "aa:bb:cc:dd:ee:01", RTTCapable: true}}
	ranger := &fakeRangingSource{}
	service, _ := newTestService(
		&fakeStatusSource{status: modernGranted()},
		&fakeScanSource{snapshot: testSnapshot(aps...)},
		ranger,
		time.Second,
	)

	if err := service.Trigger(context.Background()); err != nil {
		t.Fatalf("first Trigger failed: %v", err)
	}

	if err := service.Trigger(context.Background()); !errors.Is(err, ErrCycleActive) {
		t.Errorf("second Trigger returned %v, want ErrCycleActive", err)
	}

	ranger.deliver(models.RangingOutcome{})
	waitIdle(t, service)

	// After the cycle completes a new trigger is accepted again.
	if err := service.Trigger(context.Background()); err != nil {
		t.Errorf("Trigger after idle returned %v", err)
	}
	ranger.deliver(models.RangingOutcome{})
	waitIdle(t, service)
}

func TestCancelSuppressesLateOutcome(t *testing.T) {
	aps := []models.AccessPoint{{BSSID: "aa:bb:cc:dd:ee:01", RTTCapable: true}}
	ranger := &fakeRangingSource{}
	service, display := newTestService(
		&fakeStatusSource{status: modernGranted()},
		&fakeScanSource{snapshot: testSnapshot(aps...)},
		ranger,
		time.Second,
	)

	if err := service.Trigger(context.Background()); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	before := display.Get()

	service.Cancel()
	if service.Active() {
		t.Fatal("service still active after Cancel")
	}

	ranger.deliver(models.RangingOutcome{Results: []models.RangingResult{
		{BSSID: "aa:bb:cc:dd:ee:01", DistanceMm: 2500, DistanceStdDevMm: 150},
	}})

	// Give the late outcome a chance to be (wrongly) applied.
	time.Sleep(50 * time.Millisecond)

	after := display.Get()
	if !reflect.DeepEqual(before, after) {
		t.Error("late ranging outcome mutated the display after Cancel")
	}
}

func TestRangingIssueErrorKeepsScanResults(t *testing.T) {
	aps := []models.AccessPoint{{BSSID: "aa:bb:cc:dd:ee:01", RTTCapable: true}}
	ranger := &fakeRangingSource{err: errors.New("broker down")}
	service, display := newTestService(
		&fakeStatusSource{status: modernGranted()},
		&fakeScanSource{snapshot: testSnapshot(aps...)},
		ranger,
		time.Second,
	)

	if err := service.Trigger(context.Background()); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}

	if service.Active() {
		t.Error("service still active after failed ranging issue")
	}
	if entries := display.Get(); len(entries) != 1 {
		t.Errorf("display has %d entries, want the scan-only entry", len(entries))
	}
}
