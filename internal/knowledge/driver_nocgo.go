//go:build !cgo

package knowledge

// cgoDriver is empty when the binary is built without cgo; driver "sqlite3"
// is then unavailable.
const cgoDriver = ""
