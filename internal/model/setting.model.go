package model

import "time"

const SettingAutomaticDeliveryEnabled = "automatic_delivery_enabled"

type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"last_updated"`
}
