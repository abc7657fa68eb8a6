package database

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// mysqlUniqueKeys 唯一索引名 -> 表.列
var mysqlUniqueKeys = map[string]string{
	"uk_stores_name":             "stores.name",
	"uk_stores_email":            "stores.email",
	"uk_stores_mobile":           "stores.mobile_number",
	"uk_transactions_no":         "transactions.transaction_no",
	"uk_recharges_no":            "recharges.recharge_no",
	"uk_settlements_reference":   "settlements.reference_id",
	"uk_store_settlements_store": "store_settlements.store_id",
}

var (
	mysqlDupKeyRe     = regexp.MustCompile(`for key '([^']+)'`)
	sqliteUniqueRe    = regexp.MustCompile(`UNIQUE constraint failed: ([a-z_]+\.[a-z_]+)`)
	mysqlErrDuplicate = uint16(1062)
)

// UniqueViolation 识别唯一约束冲突，返回冲突的 "表.列"
func UniqueViolation(err error) (field string, ok bool) {
	if err == nil {
		return "", false
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		if myErr.Number != mysqlErrDuplicate {
			return "", false
		}
		m := mysqlDupKeyRe.FindStringSubmatch(myErr.Message)
		if m == nil {
			return "", true
		}
		// MySQL 8 的 key 名带表前缀，如 stores.uk_stores_email
		key := m[1]
		if i := strings.LastIndex(key, "."); i >= 0 {
			key = key[i+1:]
		}
		return mysqlUniqueKeys[key], true
	}

	if m := sqliteUniqueRe.FindStringSubmatch(err.Error()); m != nil {
		return m[1], true
	}
	return "", false
}
