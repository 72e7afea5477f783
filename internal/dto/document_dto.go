package dto

import "github.com/google/uuid"

type UploadDocumentResponse struct {
	DocumentId uuid.UUID `json:"document_id"`
	FileName   string    `json:"file_name"`
	Status     string    `json:"status"`
}

// PublishIngestDocumentMessage is the payload published to the ingestion
// topic when a document is accepted.
type PublishIngestDocumentMessage struct {
	DocumentId uuid.UUID `json:"document_id"`
	FilePath   string    `json:"file_path"`
	FileName   string    `json:"file_name"`
	IsPdf      bool      `json:"is_pdf"`
}
