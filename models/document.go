package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Document is an opaque JSON payload. It is stored as TEXT and written back to
// clients byte for byte; nothing in the service looks inside it.
type Document []byte

// EmptyDocument is stored when a page is created without a configuration.
func EmptyDocument() Document {
	return Document(`{}`)
}

// IsNull reports whether the document is absent or the JSON literal null.
func (d Document) IsNull() bool {
	trimmed := bytes.TrimSpace(d)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func (d Document) MarshalJSON() ([]byte, error) {
	if len(d) == 0 {
		return []byte("null"), nil
	}
	return d, nil
}

func (d *Document) UnmarshalJSON(data []byte) error {
	if d == nil {
		return fmt.Errorf("models.Document: UnmarshalJSON on nil pointer")
	}
	*d = append((*d)[0:0], data...)
	return nil
}

func (d Document) Value() (driver.Value, error) {
	if len(d) == 0 {
		return string(EmptyDocument()), nil
	}
	if !json.Valid(d) {
		return nil, fmt.Errorf("models.Document: invalid JSON")
	}
	return string(d), nil
}

func (d *Document) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = nil
	case string:
		*d = Document(v)
	case []byte:
		*d = append(Document(nil), v...)
	default:
		return fmt.Errorf("models.Document: cannot scan %T", src)
	}
	return nil
}

// GormDataType keeps the column TEXT on every dialect.
func (Document) GormDataType() string {
	return "text"
}
