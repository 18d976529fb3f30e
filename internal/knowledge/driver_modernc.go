package knowledge

import (
	"database/sql/driver"
	"fmt"

	sqlite "modernc.org/sqlite"
)

func init() {
	// Deterministic: same input vectors produce the same distance.
	_ = sqlite.RegisterDeterministicScalarFunction("vec_distance_cosine", 2, moderncDistance)
}

func moderncDistance(ctx *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("vec_distance_cosine expects 2 arguments")
	}
	return vecDistanceCosine(args[0], args[1])
}
