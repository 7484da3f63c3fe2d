package vectorstore

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
)

func TestStatsFromInfo(t *testing.T) {
	info := &qdrant.CollectionInfo{
		Status:              qdrant.CollectionStatus_Green,
		PointsCount:         qdrant.PtrOf(uint64(42)),
		IndexedVectorsCount: qdrant.PtrOf(uint64(40)),
	}

	stats := statsFromInfo(CollectionChunks, info)

	assert.Equal(t, CollectionChunks, stats.Name)
	assert.Equal(t, "Green", stats.Status)
	assert.Equal(t, uint64(42), stats.PointsCount)
	assert.Equal(t, uint64(40), stats.IndexedVectorsCount)
}

func TestStatsFromInfoMissingCounts(t *testing.T) {
	stats := statsFromInfo(CollectionDocuments, &qdrant.CollectionInfo{})

	assert.Equal(t, uint64(0), stats.PointsCount)
	assert.Equal(t, uint64(0), stats.IndexedVectorsCount)
}

func TestPointIDEqual(t *testing.T) {
	assert.True(t, pointIDEqual(qdrant.NewIDNum(7), qdrant.NewIDNum(7)))
	assert.False(t, pointIDEqual(qdrant.NewIDNum(7), qdrant.NewIDNum(8)))
	assert.True(t, pointIDEqual(qdrant.NewID("a"), qdrant.NewID("a")))
	assert.False(t, pointIDEqual(qdrant.NewID("a"), qdrant.NewID("b")))
	assert.False(t, pointIDEqual(qdrant.NewIDNum(7), qdrant.NewID("a")))
	assert.False(t, pointIDEqual(nil, qdrant.NewIDNum(7)))
	assert.True(t, pointIDEqual(nil, nil))
}
