package collection

import (
	"fmt"
	"strconv"

	"github.com/kailas-cloud/catalograg/internal/domain"
)

func collectionToHash(info domain.CollectionInfo) map[string]string {
	return map[string]string{
		"name":       info.Name,
		"vector_dim": strconv.Itoa(info.VectorDim),
		"metric":     info.Metric,
		"created_at": strconv.FormatInt(info.CreatedAt, 10),
	}
}

func collectionFromHash(m map[string]string) (domain.CollectionInfo, error) {
	dim, err := strconv.Atoi(m["vector_dim"])
	if err != nil {
		return domain.CollectionInfo{}, fmt.Errorf("invalid vector_dim: %w", err)
	}
	createdAt, err := strconv.ParseInt(m["created_at"], 10, 64)
	if err != nil {
		return domain.CollectionInfo{}, fmt.Errorf("invalid created_at: %w", err)
	}
	return domain.CollectionInfo{
		Name:      m["name"],
		VectorDim: dim,
		Metric:    m["metric"],
		CreatedAt: createdAt,
	}, nil
}
