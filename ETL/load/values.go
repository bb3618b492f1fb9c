package load

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/marcboeker/go-duckdb/v2"
)

// duckValue приводит UUID к канонической строке, а LIST и STRUCT к JSON.
// Остальные значения возвращаются без изменений.
func duckValue(v interface{}, duckType string) interface{} {
	switch x := v.(type) {
	case uuid.UUID:
		return x.String()
	case [16]byte:
		return uuid.UUID(x).String()
	case []byte:
		// DuckDB отдает UUID как 16 байт
		if baseType(duckType) == "UUID" && len(x) == 16 {
			if id, err := uuid.FromBytes(x); err == nil {
				return id.String()
			}
		}
		return x
	case []interface{}, map[string]interface{}:
		data, err := json.Marshal(jsonValue(x))
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	default:
		return v
	}
}

// jsonValue заменяет вложенные значения, которые go-json кодирует не как числа или строки
func jsonValue(v interface{}) interface{} {
	switch x := v.(type) {
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, item := range x {
			out[i] = jsonValue(item)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, item := range x {
			out[k] = jsonValue(item)
		}
		return out
	case duckdb.Decimal:
		return x.Float64()
	case []byte:
		return string(x)
	case uuid.UUID:
		return x.String()
	case [16]byte:
		return uuid.UUID(x).String()
	default:
		return v
	}
}
