package service

import (
	"context"
	"encoding/json"
	"time"

	"ai-tutor-be/internal/dto"
	"ai-tutor-be/internal/entity"
	"ai-tutor-be/internal/pkg/logger"
	"ai-tutor-be/internal/repository/contract"
	"ai-tutor-be/pkg/embedding"
	"ai-tutor-be/pkg/ingest"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

type consumerService struct {
	pubSub            *gochannel.GoChannel
	topicName         string
	chunkRepo         contract.CourseChunkRepository
	embeddingProvider embedding.EmbeddingProvider
	logger            logger.ILogger
	chunkSize         int
	chunkOverlap      int
}

func NewConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	chunkRepo contract.CourseChunkRepository,
	embeddingProvider embedding.EmbeddingProvider,
	log logger.ILogger,
	chunkSize int,
	chunkOverlap int,
) IConsumerService {
	if chunkSize <= 0 {
		chunkSize = 1500
	}
	if chunkOverlap < 0 {
		chunkOverlap = 200
	}
	return &consumerService{
		pubSub:            pubSub,
		topicName:         topicName,
		chunkRepo:         chunkRepo,
		embeddingProvider: embeddingProvider,
		logger:            log,
		chunkSize:         chunkSize,
		chunkOverlap:      chunkOverlap,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

// processMessage runs the full ingestion of one document: extract, split,
// embed, store. Ingestion is best-effort; every outcome acks the message so
// a broken document cannot wedge the pipeline.
func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	defer msg.Ack()

	var payload dto.PublishIngestDocumentMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		cs.logger.Error("consumer", "failed to unmarshal ingest message", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	cs.logger.Info("consumer", "processing document", map[string]interface{}{
		"document_id": payload.DocumentId.String(),
		"file_name":   payload.FileName,
	})

	text, err := ingest.ExtractText(payload.FilePath)
	if err != nil {
		cs.logger.Error("consumer", "text extraction failed", map[string]interface{}{
			"document_id": payload.DocumentId.String(),
			"error":       err.Error(),
		})
		return
	}

	chunks := ingest.SplitText(text, cs.chunkSize, cs.chunkOverlap)

	newChunks := make([]*entity.CourseChunk, 0, len(chunks))
	for i, chunk := range chunks {
		res, err := cs.embeddingProvider.Generate(chunk, "RETRIEVAL_DOCUMENT")
		if err != nil {
			cs.logger.Error("consumer", "embedding generation failed", map[string]interface{}{
				"document_id": payload.DocumentId.String(),
				"chunk_index": i,
				"error":       err.Error(),
			})
			return
		}

		newChunks = append(newChunks, &entity.CourseChunk{
			Id:         uuid.New(),
			DocumentId: payload.DocumentId,
			Title:      payload.FileName,
			Content:    chunk,
			ChunkIndex: i,
			Embedding:  pgvector.NewVector(res.Embedding.Values),
			CreatedAt:  time.Now(),
		})
	}

	// Re-ingesting the same document replaces its chunks.
	if err := cs.chunkRepo.DeleteByDocumentId(ctx, payload.DocumentId); err != nil {
		cs.logger.Error("consumer", "failed to delete old chunks", map[string]interface{}{
			"document_id": payload.DocumentId.String(),
			"error":       err.Error(),
		})
		return
	}
	if err := cs.chunkRepo.CreateBulk(ctx, newChunks); err != nil {
		cs.logger.Error("consumer", "failed to store chunks", map[string]interface{}{
			"document_id": payload.DocumentId.String(),
			"error":       err.Error(),
		})
		return
	}

	cs.logger.Info("consumer", "document ingested", map[string]interface{}{
		"document_id": payload.DocumentId.String(),
		"chunks":      len(newChunks),
	})
}
