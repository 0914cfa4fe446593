package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func bookWithFormats(formats ...string) *Book {
	b := &Book{Title: "Test Book"}
	for _, f := range formats {
		a := b.Asset(f)
		a.URL = "/uploads/books/test." + f
		a.FileSize = 1024
	}
	return b
}

func TestAsset(t *testing.T) {
	b := bookWithFormats(FormatEpub)

	require.NotNil(t, b.Asset(FormatEpub))
	require.NotNil(t, b.Asset(FormatAudiobook))
	assert.Nil(t, b.Asset("docx"))
	assert.Nil(t, b.Asset(""))
}

func TestHasAsset(t *testing.T) {
	b := bookWithFormats(FormatEpub, FormatAudiobook)

	assert.True(t, b.HasAsset(FormatEpub))
	assert.True(t, b.HasAsset(FormatAudiobook))
	assert.False(t, b.HasAsset(FormatMobi))
	assert.False(t, b.HasAsset("docx"))
}

func TestCanRead(t *testing.T) {
	now := time.Now()
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	tests := []struct {
		name    string
		book    *Book
		format  string
		canRead bool
	}{
		{
			name:    "missing asset",
			book:    bookWithFormats(FormatEpub),
			format:  FormatPDF,
			canRead: false,
		},
		{
			name:    "unprotected with asset",
			book:    bookWithFormats(FormatEpub),
			format:  FormatEpub,
			canRead: true,
		},
		{
			name: "protected without expiration",
			book: func() *Book {
				b := bookWithFormats(FormatPDF)
				b.DRM = DRM{IsProtected: true, LicenseType: "premium"}
				return b
			}(),
			format:  FormatPDF,
			canRead: true,
		},
		{
			name: "protected expired",
			book: func() *Book {
				b := bookWithFormats(FormatEpub)
				b.DRM = DRM{IsProtected: true, ExpirationDate: &past}
				return b
			}(),
			format:  FormatEpub,
			canRead: false,
		},
		{
			name: "protected not yet expired",
			book: func() *Book {
				b := bookWithFormats(FormatEpub)
				b.DRM = DRM{IsProtected: true, ExpirationDate: &future}
				return b
			}(),
			format:  FormatEpub,
			canRead: true,
		},
		{
			name: "unprotected with stale expiration",
			book: func() *Book {
				b := bookWithFormats(FormatEpub)
				b.DRM = DRM{IsProtected: false, ExpirationDate: &past}
				return b
			}(),
			format:  FormatEpub,
			canRead: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.canRead, tt.book.CanRead(tt.format, now))
		})
	}
}

func TestAvailableFormats(t *testing.T) {
	t.Run("priority order", func(t *testing.T) {
		b := bookWithFormats(FormatPDF, FormatEpub)
		assert.Equal(t, []string{FormatEpub, FormatPDF}, b.AvailableFormats())
	})

	t.Run("audiobook excluded", func(t *testing.T) {
		b := bookWithFormats(FormatAudiobook, FormatMobi)
		assert.Equal(t, []string{FormatMobi}, b.AvailableFormats())
	})

	t.Run("empty book", func(t *testing.T) {
		assert.Empty(t, (&Book{}).AvailableFormats())
	})
}

func TestReadingStatsFor(t *testing.T) {
	b := bookWithFormats(FormatEpub)
	b.DigitalFiles.Epub.ViewCount = 3
	b.DigitalFiles.Epub.ReadingTime = 10

	stats := b.ReadingStatsFor(FormatEpub)
	require.NotNil(t, stats)
	assert.Equal(t, int64(3), stats.ViewCount)
	assert.Equal(t, int64(10), stats.TotalReadingTime)
	assert.Equal(t, int64(3), stats.AvgReadingTime) // 10/3 rounded

	assert.Nil(t, b.ReadingStatsFor(FormatMobi))
}

func TestReadingStatsForZeroViews(t *testing.T) {
	b := bookWithFormats(FormatPDF)

	stats := b.ReadingStatsFor(FormatPDF)
	require.NotNil(t, stats)
	assert.Zero(t, stats.AvgReadingTime)
}

func TestNewAverage(t *testing.T) {
	assert.InDelta(t, 4.0909, NewAverage(4.0, 10, 5), 0.0001)
	assert.InDelta(t, 5.0, NewAverage(0, 0, 5), 0.0001)
	assert.InDelta(t, 3.0, NewAverage(4.0, 1, 2), 0.0001)
}

func TestReadingDelta(t *testing.T) {
	delta := ReadingDelta(FormatEpub, 7)

	inc, ok := delta["$inc"].(bson.M)
	require.True(t, ok)
	assert.Equal(t, int64(1), inc["digitalFiles.epub.viewCount"])
	assert.Equal(t, int64(7), inc["digitalFiles.epub.readingTime"])
}

func TestAssetField(t *testing.T) {
	assert.Equal(t, "digitalFiles.pdf", AssetField(FormatPDF))
}

func TestRatingUpdatePipeline(t *testing.T) {
	pipeline := RatingUpdatePipeline(4)
	require.Len(t, pipeline, 1)

	stage := pipeline[0]
	require.Len(t, stage, 1)
	assert.Equal(t, "$set", stage[0].Key)

	set, ok := stage[0].Value.(bson.M)
	require.True(t, ok)
	assert.Contains(t, set, "ratings.average")
	assert.Contains(t, set, "ratings.count")
	assert.Contains(t, set, "ratings.distribution.4")
	assert.Equal(t, "$$NOW", set["updatedAt"])

	dist, ok := set["ratings.distribution.4"].(bson.M)
	require.True(t, ok)
	assert.Equal(t, bson.A{"$ratings.distribution.4", 1}, dist["$add"])
}
