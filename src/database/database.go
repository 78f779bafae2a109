package database

import (
	"database/sql"
	stdlog "log"

	"github.com/m-tsaryk/InvestTax.Calculator/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

func InitDB(databasePath string) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}

	DB = db

	if logger.L != nil {
		logger.L.Info("Checking database migrations", "databasePath", databasePath)
	} else {
		stdlog.Println("Checking database migrations for:", databasePath)
	}
	migrateJobsTable()

	createTableStatement := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		year INTEGER NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP,
		error_message TEXT DEFAULT '',
		transaction_count INTEGER DEFAULT 0,
		duration_seconds REAL DEFAULT 0,
		report TEXT DEFAULT '',
		summary_json TEXT DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_email ON jobs(email);
	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
	`

	_, err = DB.Exec(createTableStatement)
	if err != nil {
		if logger.L != nil {
			logger.L.Error("failed to create tables", "error", err)
		}
		stdlog.Fatalf("failed to create tables: %v", err)
	}
	if logger.L != nil {
		logger.L.Info("Database tables ensured/created.")
	} else {
		stdlog.Println("Database tables ensured/created.")
	}
}

func migrateJobsTable() {
	var tableName string
	err := DB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='jobs'").Scan(&tableName)
	if err != nil {
		if err == sql.ErrNoRows {
			if logger.L != nil {
				logger.L.Info("'jobs' table does not exist, no migration needed as table will be created.")
			} else {
				stdlog.Println("'jobs' table does not exist, no migration needed as table will be created.")
			}
			return
		}
		if logger.L != nil {
			logger.L.Error("Error checking for 'jobs' table", "error", err)
		} else {
			stdlog.Printf("Error checking for 'jobs' table: %v", err)
		}
		return
	}

	rows, err := DB.Query("PRAGMA table_info(jobs)")
	if err != nil {
		if logger.L != nil {
			logger.L.Error("Error querying table schema for 'jobs'", "error", err)
		} else {
			stdlog.Printf("Error querying table schema for 'jobs': %v", err)
		}
		return
	}
	defer rows.Close()

	columnExists := make(map[string]bool)
	for rows.Next() {
		var cid, pk int
		var name, dataType string
		var notnullVal int
		var dfltValue interface{}

		if err := rows.Scan(&cid, &name, &dataType, &notnullVal, &dfltValue, &pk); err != nil {
			if logger.L != nil {
				logger.L.Error("Error scanning column info for 'jobs'", "error", err)
			} else {
				stdlog.Printf("Error scanning column info for 'jobs': %v", err)
			}
			return
		}
		columnExists[name] = true
	}
	if err = rows.Err(); err != nil {
		if logger.L != nil {
			logger.L.Error("Error iterating over column info for 'jobs'", "error", err)
		} else {
			stdlog.Printf("Error iterating over column info for 'jobs': %v", err)
		}
		return
	}

	if _, ok := columnExists["report"]; !ok {
		_, err := DB.Exec("ALTER TABLE jobs ADD COLUMN report TEXT DEFAULT ''")
		if err != nil {
			logger.L.Error("Error adding 'report' column to 'jobs' table", "error", err)
		} else {
			logger.L.Info("Added 'report' column to 'jobs' table")
		}
	}
	if _, ok := columnExists["summary_json"]; !ok {
		_, err := DB.Exec("ALTER TABLE jobs ADD COLUMN summary_json TEXT DEFAULT ''")
		if err != nil {
			logger.L.Error("Error adding 'summary_json' column to 'jobs' table", "error", err)
		} else {
			logger.L.Info("Added 'summary_json' column to 'jobs' table")
		}
	}
	if _, ok := columnExists["duration_seconds"]; !ok {
		_, err := DB.Exec("ALTER TABLE jobs ADD COLUMN duration_seconds REAL DEFAULT 0")
		if err != nil {
			logger.L.Error("Error adding 'duration_seconds' column to 'jobs' table", "error", err)
		} else {
			logger.L.Info("Added 'duration_seconds' column to 'jobs' table")
		}
	}
}
