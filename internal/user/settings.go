package user

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hotpath/glide/internal/model"
	"github.com/hotpath/glide/internal/repository"
)

// SettingsService はサイト全体の設定を管理する。
// 現在は新規登録の受付可否のみを扱う。
type SettingsService struct {
	repo repository.SiteSettingRepository
	now  func() time.Time
}

// NewSettingsService はSettingsServiceを生成する。
func NewSettingsService(repo repository.SiteSettingRepository) *SettingsService {
	return &SettingsService{
		repo: repo,
		now:  time.Now,
	}
}

// RegistrationOpen は新規登録を受け付けているかを返す。
// 設定が未登録の場合は受付中とみなす。
func (s *SettingsService) RegistrationOpen(ctx context.Context) (bool, error) {
	setting, err := s.repo.FindByKey(ctx, model.SettingRegistrationOpen)
	if err != nil {
		return false, fmt.Errorf("failed to find registration setting: %w", err)
	}
	if setting == nil {
		return true, nil
	}
	return setting.Value == "true", nil
}

// SetRegistrationOpen は新規登録の受付可否を更新する。
func (s *SettingsService) SetRegistrationOpen(ctx context.Context, actorID string, open bool) error {
	if err := s.repo.Upsert(ctx, model.SettingRegistrationOpen, strconv.FormatBool(open), s.now()); err != nil {
		return fmt.Errorf("failed to update registration setting: %w", err)
	}

	slog.Info("registration setting changed",
		slog.String("user_id", actorID),
		slog.Bool("open", open),
	)
	return nil
}
