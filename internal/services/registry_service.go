package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"wifi-rtt-sync/internal/database/postgres/repositories"
	"wifi-rtt-sync/internal/models"
)

// RegistryService keeps the metadata registry of every access point the
// service has seen. Registry writes are best-effort side work of a scan
// cycle and never feed back into the display.
type RegistryService struct {
	accessPointRepository *repositories.AccessPointRepository
	logger                zerolog.Logger
}

func NewRegistryService(accessPointRepository *repositories.AccessPointRepository, logger zerolog.Logger) *RegistryService {
	return &RegistryService{
		accessPointRepository: accessPointRepository,
		logger:                logger,
	}
}

// RecordScan upserts every scanned access point by BSSID and refreshes
// its last-seen timestamp. Individual failures are logged and skipped so
// one bad row does not lose the rest of the snapshot.
func (s *RegistryService) RecordScan(ctx context.Context, accessPoints []models.AccessPoint) error {
	seenAt := time.Now()
	failures := 0

	for _, ap := range accessPoints {
		if err := s.validate(&ap); err != nil {
			s.logger.Warn().Err(err).
				Str("bssid", ap.BSSID).
				Msg("Invalid access point in scan, skipping")
			failures++
			continue
		}

		known := &models.KnownAccessPoint{}
		known.UpdateFromScan(ap, seenAt)

		if err := s.accessPointRepository.CreateOrUpdate(ctx, known); err != nil {
			s.logger.Error().Err(err).
				Str("bssid", ap.BSSID).
				Msg("Error saving access point to registry")
			failures++
			continue
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d access points could not be recorded", failures, len(accessPoints))
	}

	s.logger.Debug().
		Int("access_points", len(accessPoints)).
		Msg("Scan recorded in registry")

	return nil
}

func (s *RegistryService) ListKnown(ctx context.Context) ([]*models.KnownAccessPoint, error) {
	return s.accessPointRepository.GetAll(ctx)
}

func (s *RegistryService) FindKnown(ctx context.Context, bssid string) (*models.KnownAccessPoint, error) {
	return s.accessPointRepository.FindByBSSID(ctx, bssid)
}

func (s *RegistryService) validate(ap *models.AccessPoint) error {
	if ap.BSSID == "" {
		return fmt.Errorf("bssid is required")
	}
	return nil
}
