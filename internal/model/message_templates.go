package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// MessageTemplates holds the per-step texts of a campaign. It is stored as
// a jsonb column.
type MessageTemplates struct {
	ConnectionRequest string   `json:"connection_request,omitempty"`
	FollowUps         []string `json:"follow_up_messages,omitempty"`
	FollowUpDelayDays []int    `json:"follow_up_delays,omitempty"`
}

// FirstStep is the text sent by a dispatch pass.
func (t MessageTemplates) FirstStep() string {
	if t.ConnectionRequest != "" {
		return t.ConnectionRequest
	}
	if len(t.FollowUps) > 0 {
		return t.FollowUps[0]
	}
	return ""
}

func (t MessageTemplates) Value() (driver.Value, error) {
	return json.Marshal(t)
}

func (t *MessageTemplates) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*t = MessageTemplates{}
		return nil
	case []byte:
		return json.Unmarshal(v, t)
	case string:
		return json.Unmarshal([]byte(v), t)
	}
	return fmt.Errorf("message_templates: unsupported type %T", src)
}
