package sqlutil

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestStringConverters(t *testing.T) {
	handle := "tourist"

	assert.Equal(t, sql.NullString{String: "tourist", Valid: true}, ToSqlString(&handle))
	assert.False(t, ToSqlString(nil).Valid)
	assert.False(t, ToSqlStringNonEmpty("").Valid)
	assert.Equal(t, "x", ToSqlStringNonEmpty("x").String)

	yes := true
	assert.Equal(t, sql.NullBool{Bool: true, Valid: true}, ToSqlBool(&yes))
	assert.False(t, ToSqlBool(nil).Valid)

	assert.Nil(t, FromSqlStringPtr(sql.NullString{}))
	assert.Equal(t, "tourist", *FromSqlStringPtr(sql.NullString{String: "tourist", Valid: true}))
}

func TestFromSqlTime(t *testing.T) {
	now := time.Date(2026, 2, 14, 9, 30, 0, 0, time.UTC)

	assert.Nil(t, FromSqlTime(sql.NullTime{}))
	assert.Equal(t, now, *FromSqlTime(sql.NullTime{Time: now, Valid: true}))
}

func TestUniqueViolation(t *testing.T) {
	wrapped := fmt.Errorf("insert: %w", &pq.Error{Code: "23505", Constraint: "registrations_email_key"})

	constraint, ok := UniqueViolation(wrapped)
	assert.True(t, ok)
	assert.Equal(t, "registrations_email_key", constraint)

	_, ok = UniqueViolation(&pq.Error{Code: "23503"})
	assert.False(t, ok)

	_, ok = UniqueViolation(errors.New("boom"))
	assert.False(t, ok)
}
