package sqlutil

import (
	"database/sql"
	"time"
)

// ToSqlString maps a nil pointer to NULL.
func ToSqlString(val *string) sql.NullString {
	if val == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *val, Valid: true}
}

// ToSqlStringNonEmpty maps "" to NULL.
func ToSqlStringNonEmpty(val string) sql.NullString {
	return sql.NullString{String: val, Valid: val != ""}
}

func ToSqlBool(val *bool) sql.NullBool {
	if val == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *val, Valid: true}
}

func FromSqlStringPtr(val sql.NullString) *string {
	return fromNull(val.String, val.Valid)
}

func FromSqlTime(val sql.NullTime) *time.Time {
	return fromNull(val.Time, val.Valid)
}

func fromNull[T any](v T, valid bool) *T {
	if !valid {
		return nil
	}
	return &v
}
