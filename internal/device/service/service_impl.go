package service

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	devicedomain "github.com/tidewatch/aquameter/internal/device/domain"
	"github.com/tidewatch/aquameter/internal/device/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Log  *zap.Logger
	Repo repository.Repository
}

type Service struct {
	log  *zap.Logger
	repo repository.Repository
}

func NewService(p ServiceParam) devicedomain.Service {
	return &Service{
		log:  p.Log.Named("device.service"),
		repo: p.Repo,
	}
}

func (s *Service) Authenticate(ctx context.Context, rawKey string) (*devicedomain.Device, error) {
	rawKey = strings.TrimSpace(rawKey)
	if rawKey == "" {
		return nil, devicedomain.ErrInvalidCredential
	}

	hash := devicedomain.HashAPIKey(rawKey)
	device, err := s.repo.FindByKeyHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if device == nil || subtle.ConstantTimeCompare([]byte(device.APIKeyHash), []byte(hash)) != 1 {
		return nil, devicedomain.ErrInvalidCredential
	}
	return device, nil
}

func (s *Service) Touch(ctx context.Context, deviceID string, now time.Time) error {
	if err := s.repo.UpdateLastSeen(ctx, deviceID, now); err != nil {
		s.log.Warn("last_seen update failed",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *Service) GetActive(ctx context.Context, deviceID string) (*devicedomain.Device, error) {
	device, err := s.repo.FindByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, devicedomain.ErrDeviceNotFound
	}
	if !device.IsActive {
		return nil, devicedomain.ErrDeviceInactive
	}
	return device, nil
}

func (s *Service) List(ctx context.Context, req devicedomain.ListRequest) ([]devicedomain.Device, error) {
	return s.repo.List(ctx, req)
}
