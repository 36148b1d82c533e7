package services

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"membership-erp/config"
	"membership-erp/models"
)

// Keys stored in the settings table.
const (
	SettingSMTPHost     = "smtp_host"
	SettingSMTPPort     = "smtp_port"
	SettingSMTPUser     = "smtp_user"
	SettingSMTPPassword = "smtp_password"
	SettingSMTPFrom     = "smtp_from"
)

var knownSettings = map[string]bool{
	SettingSMTPHost:     true,
	SettingSMTPPort:     true,
	SettingSMTPUser:     true,
	SettingSMTPPassword: true,
	SettingSMTPFrom:     true,
}

// secretSettings are never returned by All.
var secretSettings = map[string]bool{
	SettingSMTPPassword: true,
}

type SettingsService struct {
	store *Store
}

func NewSettingsService(store *Store) *SettingsService {
	return &SettingsService{store: store}
}

func (s *SettingsService) Get(ctx context.Context, key string) (string, error) {
	var setting models.Setting
	err := s.store.Read(ctx, "get_setting", func(db *gorm.DB) error {
		return db.Where("key = ?", key).Limit(1).Find(&setting).Error
	})
	return setting.Value, err
}

// All returns every stored setting with secrets masked.
func (s *SettingsService) All(ctx context.Context) (map[string]string, error) {
	var settings []models.Setting
	if err := s.store.Read(ctx, "list_settings", func(db *gorm.DB) error {
		return db.Find(&settings).Error
	}); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(settings))
	for _, st := range settings {
		if secretSettings[st.Key] && st.Value != "" {
			out[st.Key] = "********"
			continue
		}
		out[st.Key] = st.Value
	}
	return out, nil
}

// Update upserts the given keys. Unknown keys are rejected so typos do not
// silently disappear.
func (s *SettingsService) Update(ctx context.Context, values map[string]string) error {
	rows := make([]models.Setting, 0, len(values))
	for k, v := range values {
		k = strings.TrimSpace(k)
		if !knownSettings[k] {
			return &ValidationError{Field: k, Message: "unknown setting"}
		}
		rows = append(rows, models.Setting{Key: k, Value: strings.TrimSpace(v)})
	}
	if len(rows) == 0 {
		return nil
	}
	return s.store.Tx(ctx, "update_settings", func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).Create(&rows).Error
	})
}

// SMTPConfig overlays stored SMTP settings on top of fallback.
func (s *SettingsService) SMTPConfig(ctx context.Context, fallback config.SMTPConfig) (config.SMTPConfig, error) {
	var settings []models.Setting
	err := s.store.Read(ctx, "smtp_settings", func(db *gorm.DB) error {
		return db.Where("key LIKE ?", "smtp_%").Find(&settings).Error
	})
	if err != nil {
		return fallback, err
	}
	cfg := fallback
	for _, st := range settings {
		if st.Value == "" {
			continue
		}
		switch st.Key {
		case SettingSMTPHost:
			cfg.Host = st.Value
		case SettingSMTPPort:
			cfg.Port = st.Value
		case SettingSMTPUser:
			cfg.User = st.Value
		case SettingSMTPPassword:
			cfg.Password = st.Value
		case SettingSMTPFrom:
			cfg.From = st.Value
		}
	}
	return cfg, nil
}
