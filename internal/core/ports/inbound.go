package ports

import (
	"context"

	"github.com/asafonov/docqa/internal/core/domain"
)

// AnswerService is the inbound contract exposed to the transport layer.
type AnswerService interface {
	Answer(ctx context.Context, req domain.AnswerRequest) (*domain.AgentAnswer, error)
	// StreamAnswer emits thread first, done or error last. The channel is
	// closed after the terminal event.
	StreamAnswer(ctx context.Context, req domain.AnswerRequest) (<-chan domain.StreamEvent, error)
}

// ClusterService is the inbound contract for batch corpus clustering.
type ClusterService interface {
	ClusterDocuments(ctx context.Context, k, maxIterations int) ([]domain.ClusterAssignment, error)
}
