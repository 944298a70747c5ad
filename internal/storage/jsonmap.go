package storage

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap stores a map as JSON text. It works with both drivers since the
// column type is TEXT.
type JSONMap map[string]any

func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j *JSONMap) Scan(value any) error {
	var b []byte
	switch v := value.(type) {
	case nil:
		*j = nil
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("JSONMap: expected text, got %T", value)
	}

	if len(b) == 0 {
		*j = nil
		return nil
	}
	return json.Unmarshal(b, j)
}
