package config

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"sync"
	"time"

	"shiftclock/internal/models"
	"shiftclock/internal/store"
	"shiftclock/internal/types"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SettingsUpdateChannel is the store channel used to tell other nodes to
// reload system settings after an update.
const SettingsUpdateChannel = "system_settings:updated"

// settingsRefreshInterval is the fallback polling cadence for nodes that miss
// an invalidation message.
const settingsRefreshInterval = 10 * time.Minute

// SystemSettingsManager manages the DB-backed runtime settings with an
// in-memory cache. Defaults come from the struct tags on
// types.SystemSettings.
type SystemSettingsManager struct {
	mu       sync.RWMutex
	settings types.SystemSettings
	db       *gorm.DB
	store    store.Store
	isMaster bool
	validate *validator.Validate
	sub      store.Subscription
	stopCh   chan struct{}
	wg       sync.WaitGroup
	started  bool
}

// NewSystemSettingsManager creates a manager pre-populated with defaults.
func NewSystemSettingsManager() *SystemSettingsManager {
	return &SystemSettingsManager{
		settings: DefaultSystemSettings(),
		validate: validator.New(),
		stopCh:   make(chan struct{}),
	}
}

// DefaultSystemSettings builds a SystemSettings from the `default` struct tags.
func DefaultSystemSettings() types.SystemSettings {
	var settings types.SystemSettings
	v := reflect.ValueOf(&settings).Elem()
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		def := t.Field(i).Tag.Get("default")
		if def == "" {
			continue
		}
		field := v.Field(i)
		switch field.Kind() {
		case reflect.String:
			field.SetString(def)
		case reflect.Int:
			if n, err := strconv.Atoi(def); err == nil {
				field.SetInt(int64(n))
			}
		case reflect.Bool:
			if b, err := strconv.ParseBool(def); err == nil {
				field.SetBool(b)
			}
		}
	}
	return settings
}

// EnsureSettingsInitialized writes default rows for any missing setting keys.
// Only the master node calls this.
func (sm *SystemSettingsManager) EnsureSettingsInitialized(db *gorm.DB) error {
	sm.db = db

	defaults := DefaultSystemSettings()
	v := reflect.ValueOf(defaults)
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		key := t.Field(i).Tag.Get("json")
		if key == "" || key == "-" {
			continue
		}
		value := fmt.Sprint(v.Field(i).Interface())

		var count int64
		if err := db.Model(&models.SystemSetting{}).Where("setting_key = ?", key).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check setting %s: %w", key, err)
		}
		if count > 0 {
			continue
		}
		setting := models.SystemSetting{
			SettingKey:   key,
			SettingValue: value,
			Description:  t.Field(i).Tag.Get("desc"),
		}
		if err := db.Create(&setting).Error; err != nil {
			return fmt.Errorf("failed to initialize setting %s: %w", key, err)
		}
	}
	return nil
}

// Initialize loads settings from the database, subscribes to invalidation
// messages, and starts the periodic refresh loop.
func (sm *SystemSettingsManager) Initialize(db *gorm.DB, st store.Store, isMaster bool) {
	sm.mu.Lock()
	sm.db = db
	sm.store = st
	sm.isMaster = isMaster
	sm.started = true
	sm.mu.Unlock()

	if err := sm.loadFromDB(); err != nil {
		logrus.WithError(err).Warn("Failed to load system settings, using defaults")
	}

	sub, err := st.Subscribe(SettingsUpdateChannel)
	if err != nil {
		logrus.WithError(err).Warn("Failed to subscribe to settings updates")
	} else {
		sm.sub = sub
	}

	sm.wg.Add(1)
	go sm.refreshLoop()
}

// GetSettings returns the current settings snapshot.
func (sm *SystemSettingsManager) GetSettings() types.SystemSettings {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.settings
}

// UpdateSettings applies a partial update keyed by json field names,
// validates the merged result, persists it, and notifies other nodes.
func (sm *SystemSettingsManager) UpdateSettings(updates map[string]any) error {
	sm.mu.RLock()
	merged := sm.settings
	db := sm.db
	sm.mu.RUnlock()

	if db == nil {
		return fmt.Errorf("settings manager not initialized")
	}

	// Round-trip through JSON to apply the partial update onto the struct.
	current, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	var asMap map[string]any
	if err := json.Unmarshal(current, &asMap); err != nil {
		return err
	}
	for k, v := range updates {
		if _, known := asMap[k]; !known {
			return fmt.Errorf("unknown setting: %s", k)
		}
		asMap[k] = v
	}
	mergedJSON, err := json.Marshal(asMap)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return fmt.Errorf("invalid setting value: %w", err)
	}

	if err := sm.validate.Struct(merged); err != nil {
		return fmt.Errorf("settings validation failed: %w", err)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		for key := range updates {
			value := fmt.Sprint(asMap[key])
			if err := tx.Model(&models.SystemSetting{}).
				Where("setting_key = ?", key).
				Update("setting_value", value).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to persist settings: %w", err)
	}

	sm.mu.Lock()
	sm.settings = merged
	st := sm.store
	sm.mu.Unlock()

	if st != nil {
		if err := st.Publish(SettingsUpdateChannel, []byte("reload")); err != nil {
			logrus.WithError(err).Warn("Failed to publish settings invalidation")
		}
	}
	return nil
}

// Stop terminates the refresh loop.
func (sm *SystemSettingsManager) Stop(ctx context.Context) {
	sm.mu.Lock()
	if !sm.started {
		sm.mu.Unlock()
		return
	}
	sm.started = false
	sm.mu.Unlock()

	close(sm.stopCh)
	if sm.sub != nil {
		sm.sub.Close()
	}

	done := make(chan struct{})
	go func() {
		sm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logrus.Debug("SystemSettingsManager stopped gracefully.")
	case <-ctx.Done():
		logrus.Warn("SystemSettingsManager stop timed out.")
	}
}

func (sm *SystemSettingsManager) refreshLoop() {
	defer sm.wg.Done()

	ticker := time.NewTicker(settingsRefreshInterval)
	defer ticker.Stop()

	var subCh <-chan *store.Message
	if sm.sub != nil {
		subCh = sm.sub.Channel()
	}

	for {
		select {
		case <-ticker.C:
			if err := sm.loadFromDB(); err != nil {
				logrus.WithError(err).Warn("Periodic settings refresh failed")
			}
		case _, ok := <-subCh:
			if !ok {
				subCh = nil
				continue
			}
			if err := sm.loadFromDB(); err != nil {
				logrus.WithError(err).Warn("Settings reload after invalidation failed")
			}
		case <-sm.stopCh:
			return
		}
	}
}

// loadFromDB reads all setting rows and overlays them on the defaults.
func (sm *SystemSettingsManager) loadFromDB() error {
	sm.mu.RLock()
	db := sm.db
	sm.mu.RUnlock()
	if db == nil {
		return fmt.Errorf("settings manager has no database")
	}

	var rows []models.SystemSetting
	if err := db.Find(&rows).Error; err != nil {
		return err
	}

	settings := DefaultSystemSettings()
	v := reflect.ValueOf(&settings).Elem()
	t := v.Type()

	byKey := make(map[string]string, len(rows))
	for _, row := range rows {
		byKey[row.SettingKey] = row.SettingValue
	}

	for i := 0; i < t.NumField(); i++ {
		key := t.Field(i).Tag.Get("json")
		raw, ok := byKey[key]
		if !ok {
			continue
		}
		field := v.Field(i)
		switch field.Kind() {
		case reflect.String:
			field.SetString(raw)
		case reflect.Int:
			if n, err := strconv.Atoi(raw); err == nil {
				field.SetInt(int64(n))
			} else {
				logrus.Warnf("Ignoring malformed value for setting %s: %q", key, raw)
			}
		case reflect.Bool:
			if b, err := strconv.ParseBool(raw); err == nil {
				field.SetBool(b)
			} else {
				logrus.Warnf("Ignoring malformed value for setting %s: %q", key, raw)
			}
		}
	}

	if err := sm.validate.Struct(settings); err != nil {
		return fmt.Errorf("stored settings failed validation: %w", err)
	}

	sm.mu.Lock()
	sm.settings = settings
	sm.mu.Unlock()
	return nil
}
