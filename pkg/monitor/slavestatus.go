package monitor

import (
	"database/sql"
	"time"
)

// snapshotSlaveIODowntime runs SHOW SLAVE STATUS and reports how long the
// IO thread has been stopped, reading Slave_IO_Running and
// Seconds_Behind_Master by column name rather than position, since the
// column set differs between MySQL 8's SHOW REPLICA STATUS-style output
// and MariaDB's SHOW ALL SLAVES STATUS.
func snapshotSlaveIODowntime(db *sql.DB) (time.Duration, bool) {
	rows, err := db.Query("SHOW SLAVE STATUS")
	if err != nil {
		return 0, false
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return 0, false
	}
	if !rows.Next() {
		return 0, false // no slave thread configured at all
	}

	vals := make([]sql.NullString, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return 0, false
	}

	byName := make(map[string]string, len(cols))
	for i, c := range cols {
		byName[c] = vals[i].String
	}

	if byName["Slave_IO_Running"] == "Yes" {
		return 0, true
	}
	secs, ok := byName["Seconds_Behind_Master"]
	if !ok || secs == "" {
		return 0, false
	}
	var n int64
	for _, ch := range secs {
		if ch < '0' || ch > '9' {
			return 0, false
		}
		n = n*10 + int64(ch-'0')
	}
	return time.Duration(n) * time.Second, true
}
