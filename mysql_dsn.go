package main

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// mysqlDSNWithReadOptions rewrites a MySQL DSN so that DATE/DATETIME values
// scan as UTC time.Time and the connection uses the requested charset.
func mysqlDSNWithReadOptions(baseDSN, charset string) (string, error) {
	cfg, err := mysql.ParseDSN(baseDSN)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.InterpolateParams = true
	cfg.Loc = time.UTC
	dsn := cfg.FormatDSN()
	if charset == "" {
		return dsn, nil
	}

	// The driver keeps charset outside Params, so it is appended as a
	// DSN parameter. A later duplicate overrides an earlier one.
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "charset=" + url.QueryEscape(charset), nil
}
