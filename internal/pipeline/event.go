package pipeline

import (
	"encoding/json"
	"fmt"
)

const EventEmbedRequested = "file/embed.requested"

// TriggerEvent is the message that starts an ingestion job.
type TriggerEvent struct {
	Name          string      `json:"name"`
	Data          TriggerData `json:"data"`
	User          TriggerUser `json:"user"`
	CorrelationID string      `json:"correlationId,omitempty"`
}

type TriggerData struct {
	ManagedFileID   string `json:"managedFileId"`
	Name            string `json:"name"`
	BlobURL         string `json:"blobUrl"`
	BlobDownloadURL string `json:"blobDownloadUrl"`
	MimeType        string `json:"mimeType"`
}

type TriggerUser struct {
	ID string `json:"id"`
}

func NewTriggerEvent(req IngestionRequest, correlationID string) TriggerEvent {
	return TriggerEvent{
		Name: EventEmbedRequested,
		Data: TriggerData{
			ManagedFileID:   req.FileID,
			Name:            req.FileName,
			BlobURL:         req.BlobURL,
			BlobDownloadURL: req.DownloadURL,
			MimeType:        req.MimeType,
		},
		User:          TriggerUser{ID: req.OwnerUserID},
		CorrelationID: correlationID,
	}
}

// DecodeTriggerEvent parses and validates a trigger message body.
func DecodeTriggerEvent(body []byte) (TriggerEvent, error) {
	var ev TriggerEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return TriggerEvent{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if ev.Name != "" && ev.Name != EventEmbedRequested {
		return TriggerEvent{}, fmt.Errorf("%w: unexpected event %q", ErrInvalidRequest, ev.Name)
	}
	if err := ev.Request().Validate(); err != nil {
		return TriggerEvent{}, err
	}
	return ev, nil
}

func (e TriggerEvent) Request() IngestionRequest {
	return IngestionRequest{
		FileID:      e.Data.ManagedFileID,
		FileName:    e.Data.Name,
		BlobURL:     e.Data.BlobURL,
		DownloadURL: e.Data.BlobDownloadURL,
		MimeType:    e.Data.MimeType,
		OwnerUserID: e.User.ID,
	}
}

func (e TriggerEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}
