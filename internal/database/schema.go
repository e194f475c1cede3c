package database

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
)

// schema creates the booking tables when they are missing.  Statements run
// one by one because the DSN does not enable multiStatements.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS experiences (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		timezone VARCHAR(64) NOT NULL DEFAULT 'UTC',
		recurrence JSON NOT NULL,
		default_capacity_total INT NOT NULL DEFAULT 0,
		default_capacity_per_type JSON NULL,
		default_prices JSON NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS slots (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		experience_id BIGINT UNSIGNED NOT NULL,
		starts_at DATETIME NOT NULL,
		ends_at DATETIME NOT NULL,
		status ENUM('open','closed','cancelled') NOT NULL DEFAULT 'open',
		capacity_total INT NOT NULL,
		capacity_per_type JSON NULL,
		price_snapshot JSON NULL,
		created_at DATETIME(3) NOT NULL,
		updated_at DATETIME(3) NOT NULL,
		UNIQUE KEY uq_slots_occurrence (experience_id, starts_at, ends_at),
		KEY idx_slots_range (starts_at, ends_at),
		CONSTRAINT chk_slots_times CHECK (ends_at > starts_at),
		CONSTRAINT chk_slots_capacity CHECK (capacity_total > 0)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS reservations (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		slot_id BIGINT UNSIGNED NOT NULL,
		order_id VARCHAR(64) NULL,
		status ENUM('pending_payment','confirmed','cancelled','rtb_held','rtb_expired','rtb_rejected') NOT NULL,
		mode ENUM('direct','rtb') NOT NULL,
		party JSON NOT NULL,
		customer_ref VARCHAR(191) NOT NULL DEFAULT '',
		attribution JSON NULL,
		approved_at DATETIME(3) NULL,
		created_at DATETIME(3) NOT NULL,
		updated_at DATETIME(3) NOT NULL,
		KEY idx_reservations_slot_status (slot_id, status),
		KEY idx_reservations_customer (customer_ref),
		CONSTRAINT fk_reservations_slot FOREIGN KEY (slot_id) REFERENCES slots (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS holds (
		token CHAR(36) NOT NULL PRIMARY KEY,
		reservation_id BIGINT UNSIGNED NOT NULL,
		created_at DATETIME(3) NOT NULL,
		expires_at DATETIME(3) NOT NULL,
		UNIQUE KEY uq_holds_reservation (reservation_id),
		KEY idx_holds_expires (expires_at),
		CONSTRAINT fk_holds_reservation FOREIGN KEY (reservation_id) REFERENCES reservations (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS lifecycle_events (
		seq BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		event_id CHAR(36) NOT NULL,
		type VARCHAR(64) NOT NULL,
		reservation_id BIGINT UNSIGNED NOT NULL,
		payload JSON NOT NULL,
		occurred_at DATETIME(3) NOT NULL,
		dispatched_at DATETIME(3) NULL,
		UNIQUE KEY uq_events_event_id (event_id),
		KEY idx_events_pending (dispatched_at, seq)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates missing tables.  It is safe to run on every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "apply schema")
		}
	}
	return nil
}
