package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"wifi-rtt-sync/internal/models"
)

type AccessPointRepository struct {
	db *gorm.DB
}

func NewAccessPointRepository(db *gorm.DB) *AccessPointRepository {
	return &AccessPointRepository{db: db}
}

func (r *AccessPointRepository) CreateOrUpdate(ctx context.Context, accessPoint *models.KnownAccessPoint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.KnownAccessPoint
		result := tx.Where("bssid = ?", accessPoint.BSSID).First(&existing)

		if result.Error == nil {

			updateMap := map[string]interface{}{
				"ssid":          accessPoint.SSID,
				"capabilities":  accessPoint.Capabilities,
				"rtt_capable":   accessPoint.RTTCapable,
				"signal_level":  accessPoint.SignalLevel,
				"frequency_mhz": accessPoint.FrequencyMHz,
				"last_seen":     accessPoint.LastSeen,
			}

			return tx.Model(&models.KnownAccessPoint{}).
				Where("bssid = ?", accessPoint.BSSID).
				Updates(updateMap).Error

		} else if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return tx.Create(accessPoint).Error

		} else {
			return result.Error
		}
	})
}

func (r *AccessPointRepository) FindByBSSID(ctx context.Context, bssid string) (*models.KnownAccessPoint, error) {
	var accessPoint models.KnownAccessPoint
	err := r.db.WithContext(ctx).Where("bssid = ?", bssid).First(&accessPoint).Error
	if err != nil {
		return nil, err
	}
	return &accessPoint, nil
}

func (r *AccessPointRepository) GetAll(ctx context.Context) ([]*models.KnownAccessPoint, error) {
	var accessPoints []*models.KnownAccessPoint
	err := r.db.WithContext(ctx).Find(&accessPoints).Error
	return accessPoints, err
}
