// Package events announces processed uploads to other services.
package events

import (
	"encoding/json"
	"time"
)

// UploadProcessedMessage is published once an upload reached its final
// status. Consumers fetch details from storage by UploadID.
type UploadProcessedMessage struct {
	UploadID    string    `json:"uploadId"`
	Filename    string    `json:"filename"`
	Status      string    `json:"status"`
	TotalRows   int       `json:"totalRows"`
	ValidRows   int       `json:"validRows"`
	InvalidRows int       `json:"invalidRows"`
	Warnings    int       `json:"warnings"`
	StorageURI  string    `json:"storageUri,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// ToJSON converts the message to JSON bytes.
func (m *UploadProcessedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// UploadProcessedMessageFromJSON decodes a message body.
func UploadProcessedMessageFromJSON(data []byte) (*UploadProcessedMessage, error) {
	var msg UploadProcessedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
