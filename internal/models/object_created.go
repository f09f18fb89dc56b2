package models

import (
	"time"

	"github.com/google/uuid"
)

// ObjectCreated announces a newly stored document to downstream consumers.
type ObjectCreated struct {
	ID             string    `json:"id"`
	Bucket         string    `json:"bucket"`
	Key            string    `json:"key"`
	Service        string    `json:"service"`
	Date           string    `json:"date"`
	Size           int       `json:"size"`
	CompressedSize int       `json:"compressed_size"`
	ReceivedAt     time.Time `json:"received_at"`
}

// NewObjectCreated builds the notification for an object written at key.
func NewObjectCreated(bucket string, key PartitionKey, size, compressedSize int, receivedAt time.Time) *ObjectCreated {
	return &ObjectCreated{
		ID:             uuid.New().String(),
		Bucket:         bucket,
		Key:            key.Key(),
		Service:        key.Service,
		Date:           key.Date(),
		Size:           size,
		CompressedSize: compressedSize,
		ReceivedAt:     receivedAt.UTC(),
	}
}

// PartitionKey is the message key used when publishing: notifications for the
// same service stay ordered.
func (o *ObjectCreated) PartitionKey() string {
	return o.Service
}
