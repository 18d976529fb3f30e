//go:build cgo && !sqlite_vec

package knowledge

import (
	"database/sql"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// cgoDriver is the database/sql name used for driver "sqlite3".
const cgoDriver = "sqlite3_knowledge"

func init() {
	sql.Register(cgoDriver, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("vec_distance_cosine", func(a, b []byte) (float64, error) {
				return vecDistanceCosine(a, b)
			}, true)
		},
	})
}
