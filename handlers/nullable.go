package handlers

import "database/sql"

// nullString converts an empty JSON string field into a SQL NULL, matching
// the optional fields job_items/jobs carry.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
