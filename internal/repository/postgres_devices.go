package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/Jithendra123892/LAPSO/internal/models"
)

// PostgresDevicesRepo 设备快照的 Postgres 持久化（对应 devices 表）。
// Store 是运行时事实来源；这里只做启动恢复和尽力而为的写入。
type PostgresDevicesRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresDevicesRepo 创建设备仓库
func NewPostgresDevicesRepo(db *sql.DB, logger *zap.Logger) *PostgresDevicesRepo {
	return &PostgresDevicesRepo{db: db, logger: logger}
}

// EnsureSchema 创建 devices 表（幂等，启动时调用）
func (r *PostgresDevicesRepo) EnsureSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS devices (
			device_id        TEXT PRIMARY KEY,
			owner_email      TEXT NOT NULL,
			device_name      TEXT,
			manufacturer     TEXT,
			model            TEXT,
			os_name          TEXT,
			os_version       TEXT,
			location         JSONB,
			battery_level    INTEGER,
			is_charging      BOOLEAN,
			is_online        BOOLEAN NOT NULL DEFAULT false,
			is_stolen        BOOLEAN NOT NULL DEFAULT false,
			registered_at    TIMESTAMPTZ NOT NULL,
			last_seen_at     TIMESTAMPTZ NOT NULL,
			last_alert_state JSONB
		)`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure devices schema: %w", err)
	}
	return nil
}

// SaveDevice 写入设备快照（INSERT ... ON CONFLICT 更新）
func (r *PostgresDevicesRepo) SaveDevice(ctx context.Context, rec models.DeviceRecord) error {
	locationJSON, err := marshalLocation(rec.Location)
	if err != nil {
		return fmt.Errorf("failed to marshal location: %w", err)
	}
	alertStateJSON, err := marshalAlertState(rec.LastAlertState)
	if err != nil {
		return fmt.Errorf("failed to marshal alert state: %w", err)
	}

	query := `
		INSERT INTO devices (
			device_id, owner_email, device_name, manufacturer, model,
			os_name, os_version, location, battery_level, is_charging,
			is_online, is_stolen, registered_at, last_seen_at, last_alert_state
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (device_id) DO UPDATE SET
			owner_email      = EXCLUDED.owner_email,
			device_name      = EXCLUDED.device_name,
			manufacturer     = EXCLUDED.manufacturer,
			model            = EXCLUDED.model,
			os_name          = EXCLUDED.os_name,
			os_version       = EXCLUDED.os_version,
			location         = EXCLUDED.location,
			battery_level    = EXCLUDED.battery_level,
			is_charging      = EXCLUDED.is_charging,
			is_online        = EXCLUDED.is_online,
			is_stolen        = EXCLUDED.is_stolen,
			last_seen_at     = EXCLUDED.last_seen_at,
			last_alert_state = EXCLUDED.last_alert_state`

	_, err = r.db.ExecContext(ctx, query,
		rec.DeviceID,
		rec.OwnerEmail,
		nullString(rec.DeviceName),
		nullString(rec.Manufacturer),
		nullString(rec.Model),
		nullString(rec.OSName),
		nullString(rec.OSVersion),
		locationJSON,
		nullInt(rec.BatteryLevel),
		nullBool(rec.IsCharging),
		rec.IsOnline,
		rec.IsStolen,
		rec.RegisteredAt,
		rec.LastSeenAt,
		alertStateJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save device %s: %w", rec.DeviceID, err)
	}
	return nil
}

// DeleteDevice 删除设备快照
func (r *PostgresDevicesRepo) DeleteDevice(ctx context.Context, deviceID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE device_id = $1`, deviceID)
	if err != nil {
		return fmt.Errorf("failed to delete device %s: %w", deviceID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("device %s not found", deviceID)
	}
	return nil
}

// LoadDevices 启动时加载全部设备快照
func (r *PostgresDevicesRepo) LoadDevices(ctx context.Context) ([]models.DeviceRecord, error) {
	query := `
		SELECT
			device_id, owner_email, device_name, manufacturer, model,
			os_name, os_version, location, battery_level, is_charging,
			is_online, is_stolen, registered_at, last_seen_at, last_alert_state
		FROM devices
		ORDER BY device_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load devices: %w", err)
	}
	defer rows.Close()

	var devices []models.DeviceRecord
	for rows.Next() {
		var (
			rec            models.DeviceRecord
			deviceName     sql.NullString
			manufacturer   sql.NullString
			model          sql.NullString
			osName         sql.NullString
			osVersion      sql.NullString
			locationJSON   sql.NullString
			batteryLevel   sql.NullInt64
			isCharging     sql.NullBool
			alertStateJSON sql.NullString
		)

		if err := rows.Scan(
			&rec.DeviceID,
			&rec.OwnerEmail,
			&deviceName,
			&manufacturer,
			&model,
			&osName,
			&osVersion,
			&locationJSON,
			&batteryLevel,
			&isCharging,
			&rec.IsOnline,
			&rec.IsStolen,
			&rec.RegisteredAt,
			&rec.LastSeenAt,
			&alertStateJSON,
		); err != nil {
			return nil, fmt.Errorf("failed to scan device row: %w", err)
		}

		rec.DeviceName = deviceName.String
		rec.Manufacturer = manufacturer.String
		rec.Model = model.String
		rec.OSName = osName.String
		rec.OSVersion = osVersion.String
		if batteryLevel.Valid {
			lvl := int(batteryLevel.Int64)
			rec.BatteryLevel = &lvl
		}
		if isCharging.Valid {
			ch := isCharging.Bool
			rec.IsCharging = &ch
		}
		if locationJSON.Valid && locationJSON.String != "" {
			var loc models.Location
			if err := json.Unmarshal([]byte(locationJSON.String), &loc); err != nil {
				r.logger.Warn("Skipping malformed location JSON",
					zap.String("device_id", rec.DeviceID),
					zap.Error(err),
				)
			} else {
				rec.Location = &loc
			}
		}
		if alertStateJSON.Valid && alertStateJSON.String != "" {
			var state map[models.AlertCategory]models.AlertStamp
			if err := json.Unmarshal([]byte(alertStateJSON.String), &state); err != nil {
				r.logger.Warn("Skipping malformed alert state JSON",
					zap.String("device_id", rec.DeviceID),
					zap.Error(err),
				)
			} else {
				rec.LastAlertState = state
			}
		}

		devices = append(devices, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate device rows: %w", err)
	}
	return devices, nil
}

func marshalLocation(loc *models.Location) (sql.NullString, error) {
	if loc == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(loc)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func marshalAlertState(state map[models.AlertCategory]models.AlertStamp) (sql.NullString, error) {
	if len(state) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(state)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}
