package repos

import "github.com/jmoiron/sqlx"

// NextSeq returns the next id for a collection from the shared monotonic
// sequence table. Safe under concurrent callers: the upsert and read are one
// statement.
func NextSeq(q sqlx.Queryer, name string) (int64, error) {
	var v int64
	err := q.QueryRowx(`
		INSERT INTO sequences(name, value) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET value = value + 1
		RETURNING value
	`, name).Scan(&v)
	return v, err
}
