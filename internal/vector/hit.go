package vector

import "docvault/internal/pipeline"

// Hit is one nearest-neighbour result from a vector backend.
type Hit struct {
	ID       string                  `json:"id"`
	Score    float32                 `json:"score"`
	Metadata pipeline.RecordMetadata `json:"metadata"`
}
