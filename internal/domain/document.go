package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JSONMap stores a JSON object in a text column.
type JSONMap map[string]interface{}

// Value implements the driver.Valuer interface for database serialization.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan JSONMap")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, m)
}

// Document is one stored document addressed by a hierarchical path such as
// "deputados/current/204554".
type Document struct {
	Path       string    `gorm:"type:text;primaryKey" json:"path"`
	Collection string    `gorm:"type:text;not null;index" json:"collection"`
	DocID      string    `gorm:"type:text;not null;index" json:"doc_id"`
	Data       string    `gorm:"type:text" json:"data"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName returns the database table name for Document.
func (Document) TableName() string {
	return "documents"
}
