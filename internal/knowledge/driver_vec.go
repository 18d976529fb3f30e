//go:build cgo && sqlite_vec

package knowledge

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

// cgoDriver is the database/sql name used for driver "sqlite3". The native
// sqlite-vec extension provides vec_distance_cosine.
const cgoDriver = "sqlite3"

func init() {
	vec.Auto()
}
