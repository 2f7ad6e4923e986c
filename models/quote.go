package models

import (
	"time"

	"gorm.io/datatypes"
)

// Quote ist ein kuratiertes Zitat, das die Enhancement-Stufe in Artikel einfügen kann.
type Quote struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	Text      string                      `json:"text" gorm:"type:text;not null"`
	Author    string                      `json:"author" gorm:"not null"`
	Role      string                      `json:"role,omitempty"`
	SourceURL string                      `json:"source_url,omitempty"`
	Tags      datatypes.JSONSlice[string] `json:"tags" gorm:"type:jsonb"`
	Active    bool                        `json:"active" gorm:"index"`
}

// TableName gibt explizit den Tabellennamen an.
func (Quote) TableName() string {
	return "quotes"
}
