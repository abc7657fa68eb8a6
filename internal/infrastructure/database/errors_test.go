package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
)

func TestUniqueViolation(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantField string
		wantOK    bool
	}{
		{
			name:      "mysql 8 prefixed key",
			err:       &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'a@b.c' for key 'stores.uk_stores_email'"},
			wantField: "stores.email",
			wantOK:    true,
		},
		{
			name:      "mysql 5.7 bare key wrapped",
			err:       fmt.Errorf("insert: %w", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry '555' for key 'uk_stores_mobile'"}),
			wantField: "stores.mobile_number",
			wantOK:    true,
		},
		{
			name:   "mysql other error",
			err:    &mysql.MySQLError{Number: 1213, Message: "Deadlock found"},
			wantOK: false,
		},
		{
			name:      "sqlite",
			err:       errors.New("constraint failed: UNIQUE constraint failed: stores.name (2067)"),
			wantField: "stores.name",
			wantOK:    true,
		},
		{
			name:   "unrelated",
			err:    errors.New("connection refused"),
			wantOK: false,
		},
		{
			name:   "nil",
			err:    nil,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			field, ok := UniqueViolation(tt.err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantField, field)
		})
	}
}
