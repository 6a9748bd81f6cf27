package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema lists the DDL statements applied at startup.  Statements are
// idempotent so EnsureSchema can run on every boot.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS members (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		member_id VARCHAR(16) NOT NULL,
		full_name VARCHAR(255) NOT NULL,
		employee_id VARCHAR(50) NOT NULL,
		company_name VARCHAR(255) NOT NULL,
		department VARCHAR(255) NOT NULL,
		phone_number VARCHAR(20) NOT NULL,
		email VARCHAR(255) NOT NULL,
		membership_start_date DATE NOT NULL,
		membership_end_date DATE NULL,
		status ENUM('active','inactive') NOT NULL DEFAULT 'active',
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
		UNIQUE KEY uq_members_member_id (member_id),
		UNIQUE KEY uq_members_employee_id (employee_id),
		UNIQUE KEY uq_members_email (email),
		KEY idx_members_company_name (company_name),
		KEY idx_members_department (department),
		KEY idx_members_status (status),
		KEY idx_members_status_created_at (status, created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	`CREATE TABLE IF NOT EXISTS accounts (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		email VARCHAR(255) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		role ENUM('administrator','member') NOT NULL DEFAULT 'member',
		member_ref BIGINT UNSIGNED NULL,
		is_active TINYINT(1) NOT NULL DEFAULT 1,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
		UNIQUE KEY uq_accounts_email (email),
		UNIQUE KEY uq_accounts_member_ref (member_ref),
		CONSTRAINT fk_accounts_member FOREIGN KEY (member_ref) REFERENCES members (id) ON DELETE SET NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		account_id BIGINT UNSIGNED NOT NULL,
		token_hash CHAR(64) NOT NULL,
		expires_at DATETIME NOT NULL,
		revoked_at DATETIME NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_refresh_tokens_hash (token_hash),
		KEY idx_refresh_tokens_account (account_id),
		CONSTRAINT fk_refresh_tokens_account FOREIGN KEY (account_id) REFERENCES accounts (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
}

// EnsureSchema creates the registry tables when they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
