package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ai-tutor-be/internal/dto"
	"ai-tutor-be/internal/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IDocumentService interface {
	Upload(ctx context.Context, fileName string, data []byte) (*dto.UploadDocumentResponse, error)
}

type documentService struct {
	publisherService IPublisherService
	logger           logger.ILogger
	uploadDir        string
}

func NewDocumentService(
	publisherService IPublisherService,
	log logger.ILogger,
	uploadDir string,
) IDocumentService {
	return &documentService{
		publisherService: publisherService,
		logger:           log,
		uploadDir:        uploadDir,
	}
}

// Upload accepts a PDF or plain-text document, stores it and hands it to the
// ingestion pipeline. The caller only learns accepted or rejected; chunking
// and embedding happen asynchronously.
func (ds *documentService) Upload(ctx context.Context, fileName string, data []byte) (*dto.UploadDocumentResponse, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext != ".pdf" && ext != ".txt" {
		return nil, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("unsupported file type: %s", ext))
	}
	if len(data) == 0 {
		return nil, fiber.NewError(fiber.StatusBadRequest, "empty file")
	}

	documentId := uuid.New()
	documentsDir := filepath.Join(ds.uploadDir, "documents")
	if err := os.MkdirAll(documentsDir, 0755); err != nil {
		return nil, fmt.Errorf("create documents dir: %w", err)
	}

	filePath := filepath.Join(documentsDir, documentId.String()+ext)
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}

	payload := dto.PublishIngestDocumentMessage{
		DocumentId: documentId,
		FilePath:   filePath,
		FileName:   fileName,
		IsPdf:      ext == ".pdf",
	}
	payloadJson, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	if err := ds.publisherService.Publish(ctx, payloadJson); err != nil {
		return nil, fmt.Errorf("publish ingest message: %w", err)
	}

	ds.logger.Info("document", "document accepted for ingestion", map[string]interface{}{
		"document_id": documentId.String(),
		"file_name":   fileName,
	})

	return &dto.UploadDocumentResponse{
		DocumentId: documentId,
		FileName:   fileName,
		Status:     "accepted",
	}, nil
}
