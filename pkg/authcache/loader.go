package authcache

import (
	"database/sql"

	_ "github.com/go-sql-driver/mysql"
)

// Loader queries the designated backend for mysql.user/mysql.db/
// mysql.tables_priv/SHOW DATABASES, per spec section 4.I, using
// database/sql the same way pkg/monitor's SQLExecutor does for its own
// admin queries — the "MariaDB client library used only as an outbound
// connection driver" role of spec section 1.
type Loader struct {
	db *sql.DB
}

// NewLoader opens a connection to dsn for the account the service uses
// to refresh its user cache (typically the monitor's own credentials,
// per spec section 4.I's fallback clause).
func NewLoader(dsn string) (*Loader, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	return &Loader{db: db}, nil
}

func (l *Loader) Close() error { return l.db.Close() }

// LoadAll runs the four queries spec section 4.I names and returns the
// rows in the shape Cache.Load expects.
func (l *Loader) LoadAll() ([]UserEntry, []string, error) {
	users, err := l.loadUsers()
	if err != nil {
		return nil, nil, err
	}
	dbGrants, err := l.loadDBGrants()
	if err != nil {
		return nil, nil, err
	}
	users = append(users, dbGrants...)
	tableGrants, err := l.loadTablePrivGrants()
	if err != nil {
		return nil, nil, err
	}
	users = append(users, tableGrants...)
	dbs, err := l.loadDatabases()
	if err != nil {
		return nil, nil, err
	}
	return users, dbs, nil
}

func (l *Loader) loadUsers() ([]UserEntry, error) {
	rows, err := l.db.Query("SELECT User, Host, Password FROM mysql.user")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UserEntry
	for rows.Next() {
		var user, host, pass string
		if err := rows.Scan(&user, &host, &pass); err != nil {
			return nil, err
		}
		out = append(out, UserEntry{User: user, Host: host, AnyDB: true, Password: []byte(pass)})
	}
	return out, rows.Err()
}

func (l *Loader) loadDBGrants() ([]UserEntry, error) {
	rows, err := l.db.Query("SELECT User, Host, Db FROM mysql.db")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UserEntry
	for rows.Next() {
		var user, host, db string
		if err := rows.Scan(&user, &host, &db); err != nil {
			return nil, err
		}
		out = append(out, UserEntry{User: user, Host: host, DB: db})
	}
	return out, rows.Err()
}

// loadTablePrivGrants mirrors mysql.tables_priv: a user with a grant on
// a specific table gets implicit access to that table's database, the
// same (user, host, db) shape as a mysql.db row.
func (l *Loader) loadTablePrivGrants() ([]UserEntry, error) {
	rows, err := l.db.Query("SELECT User, Host, Db FROM mysql.tables_priv")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UserEntry
	for rows.Next() {
		var user, host, db string
		if err := rows.Scan(&user, &host, &db); err != nil {
			return nil, err
		}
		out = append(out, UserEntry{User: user, Host: host, DB: db})
	}
	return out, rows.Err()
}

func (l *Loader) loadDatabases() ([]string, error) {
	rows, err := l.db.Query("SHOW DATABASES")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}
