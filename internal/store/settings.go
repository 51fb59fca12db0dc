package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/Danvdl/SecureStudio/internal/config"
	"github.com/Danvdl/SecureStudio/internal/render"
)

// Setting keys. Values are stored as strings and converted on load.
const (
	keyMode       = "mode"
	keyClasses    = "classes"
	keyStyle      = "style"
	keySmoothing  = "smoothing"
	keyConfidence = "confidence_threshold"
	keyFallback   = "fallback_threshold"
	keyMaxAge     = "max_age"
	keyWidth      = "width"
	keyHeight     = "height"
	keyFPS        = "fps"
	keyCameraID   = "camera_id"
	keySinkPath   = "sink_path"
	keyMaskURL    = "mask_url"
)

// GetSetting returns the raw value for a key, or ok=false when unset.
func (s *Store) GetSetting(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get setting %q: %w", key, err)
	}
	return value, true, nil
}

// SetSetting stores a raw value under a key, replacing any previous value.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set setting %q: %w", key, err)
	}
	return nil
}

// LoadConfig reads the persisted configuration, falling back to the
// default for any key that is missing or unparsable. The result is
// always valid.
func (s *Store) LoadConfig() (config.Config, error) {
	cfg := config.Default()

	if v, ok, err := s.GetSetting(keyMode); err != nil {
		return cfg, err
	} else if ok {
		if m, valid := config.ParseMode(v); valid {
			cfg.Mode = m
		}
	}

	if v, ok, err := s.GetSetting(keyClasses); err != nil {
		return cfg, err
	} else if ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil && n != 0 {
			cfg.Classes = config.ClassSet(n)
		}
	}

	if v, ok, err := s.GetSetting(keyStyle); err != nil {
		return cfg, err
	} else if ok {
		if st, valid := render.ParseStyle(v); valid {
			cfg.Style = st
		}
	}

	loadFloat := func(key string, dst *float32) error {
		v, ok, err := s.GetSetting(key)
		if err != nil || !ok {
			return err
		}
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			*dst = float32(f)
		}
		return nil
	}
	if err := loadFloat(keySmoothing, &cfg.Smoothing); err != nil {
		return cfg, err
	}
	if err := loadFloat(keyConfidence, &cfg.ConfidenceThreshold); err != nil {
		return cfg, err
	}
	if err := loadFloat(keyFallback, &cfg.FallbackThreshold); err != nil {
		return cfg, err
	}

	loadInt := func(key string, dst *int) error {
		v, ok, err := s.GetSetting(key)
		if err != nil || !ok {
			return err
		}
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
		return nil
	}
	if err := loadInt(keyMaxAge, &cfg.MaxAge); err != nil {
		return cfg, err
	}
	if err := loadInt(keyWidth, &cfg.Width); err != nil {
		return cfg, err
	}
	if err := loadInt(keyHeight, &cfg.Height); err != nil {
		return cfg, err
	}
	if err := loadInt(keyFPS, &cfg.FPS); err != nil {
		return cfg, err
	}
	if err := loadInt(keyCameraID, &cfg.CameraID); err != nil {
		return cfg, err
	}

	if v, ok, err := s.GetSetting(keySinkPath); err != nil {
		return cfg, err
	} else if ok && v != "" {
		cfg.SinkPath = v
	}

	if v, ok, err := s.GetSetting(keyMaskURL); err != nil {
		return cfg, err
	} else if ok {
		cfg.MaskURL = v
	}

	// A corrupted row could have produced an out-of-range combination;
	// fall back to defaults rather than refusing to start.
	if err := cfg.Validate(); err != nil {
		return config.Default(), nil
	}

	return cfg, nil
}

// SaveConfig persists every field of the configuration.
func (s *Store) SaveConfig(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	pairs := []struct {
		key   string
		value string
	}{
		{keyMode, cfg.Mode.String()},
		{keyClasses, strconv.FormatUint(uint64(cfg.Classes), 10)},
		{keyStyle, cfg.Style.String()},
		{keySmoothing, strconv.FormatFloat(float64(cfg.Smoothing), 'f', -1, 32)},
		{keyConfidence, strconv.FormatFloat(float64(cfg.ConfidenceThreshold), 'f', -1, 32)},
		{keyFallback, strconv.FormatFloat(float64(cfg.FallbackThreshold), 'f', -1, 32)},
		{keyMaxAge, strconv.Itoa(cfg.MaxAge)},
		{keyWidth, strconv.Itoa(cfg.Width)},
		{keyHeight, strconv.Itoa(cfg.Height)},
		{keyFPS, strconv.Itoa(cfg.FPS)},
		{keyCameraID, strconv.Itoa(cfg.CameraID)},
		{keySinkPath, cfg.SinkPath},
		{keyMaskURL, cfg.MaskURL},
	}

	for _, p := range pairs {
		if err := s.SetSetting(p.key, p.value); err != nil {
			return err
		}
	}
	return nil
}
