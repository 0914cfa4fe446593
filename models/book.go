package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Book formats with a readable asset slot. Audiobook files are stored too but
// never listed by AvailableFormats, matching the reader apps which only open
// epub/mobi/pdf in-line.
const (
	FormatEpub      = "epub"
	FormatMobi      = "mobi"
	FormatPDF       = "pdf"
	FormatAudiobook = "audiobook"
)

// ReadableFormats is the fixed priority order shown to clients.
var ReadableFormats = []string{FormatEpub, FormatMobi, FormatPDF}

// BookAsset is one uploaded file of a given format.
type BookAsset struct {
	URL         string     `bson:"url,omitempty" json:"url,omitempty"`
	FileSize    int64      `bson:"fileSize" json:"fileSize"`
	UploadDate  *time.Time `bson:"uploadDate,omitempty" json:"uploadDate,omitempty"`
	ViewCount   int64      `bson:"viewCount" json:"viewCount"`
	ReadingTime int64      `bson:"readingTime" json:"readingTime"` // cumulative minutes
}

type DigitalFiles struct {
	Epub      BookAsset `bson:"epub" json:"epub"`
	Mobi      BookAsset `bson:"mobi" json:"mobi"`
	PDF       BookAsset `bson:"pdf" json:"pdf"`
	Audiobook BookAsset `bson:"audiobook" json:"audiobook"`
}

// DRM policy fields. downloadLimit and allowedDevices are stored for the
// mobile clients but not enforced server-side.
type DRM struct {
	IsProtected    bool       `bson:"isProtected" json:"isProtected"`
	LicenseType    string     `bson:"licenseType" json:"licenseType"`     // free, premium, subscription
	DownloadLimit  int        `bson:"downloadLimit" json:"downloadLimit"` // -1 = unlimited
	ExpirationDate *time.Time `bson:"expirationDate,omitempty" json:"expirationDate,omitempty"`
	AllowedDevices int        `bson:"allowedDevices" json:"allowedDevices"`
}

type RatingDistribution struct {
	One   int64 `bson:"1" json:"1"`
	Two   int64 `bson:"2" json:"2"`
	Three int64 `bson:"3" json:"3"`
	Four  int64 `bson:"4" json:"4"`
	Five  int64 `bson:"5" json:"5"`
}

type Ratings struct {
	Average      float64            `bson:"average" json:"average"`
	Count        int64              `bson:"count" json:"count"`
	Distribution RatingDistribution `bson:"distribution" json:"distribution"`
}

type Book struct {
	ID           bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Title        string        `bson:"title" json:"title"`
	Authors      []string      `bson:"authors" json:"authors"`
	Description  string        `bson:"description" json:"description"`
	Language     string        `bson:"language" json:"language"`
	DigitalFiles DigitalFiles  `bson:"digitalFiles" json:"digitalFiles"`
	DRM          DRM           `bson:"drm" json:"drm"`
	Ratings      Ratings       `bson:"ratings" json:"ratings"`
	AddedBy      bson.ObjectID `bson:"addedBy,omitempty" json:"addedBy"`
	IsPublic     bool          `bson:"isPublic" json:"isPublic"`
	CreatedAt    time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time     `bson:"updatedAt" json:"updatedAt"`
}

// Asset returns the slot for a format, nil when the format is unknown.
func (b *Book) Asset(format string) *BookAsset {
	switch format {
	case FormatEpub:
		return &b.DigitalFiles.Epub
	case FormatMobi:
		return &b.DigitalFiles.Mobi
	case FormatPDF:
		return &b.DigitalFiles.PDF
	case FormatAudiobook:
		return &b.DigitalFiles.Audiobook
	}
	return nil
}

// HasAsset reports whether a file was ever committed for the format.
func (b *Book) HasAsset(format string) bool {
	a := b.Asset(format)
	return a != nil && a.URL != ""
}

// CanRead gates in-app reading: the asset must exist and, for protected
// books, the license must not have expired.
func (b *Book) CanRead(format string, now time.Time) bool {
	if !b.HasAsset(format) {
		return false
	}
	if b.DRM.IsProtected && b.DRM.ExpirationDate != nil && now.After(*b.DRM.ExpirationDate) {
		return false
	}
	return true
}

// AvailableFormats lists present readable formats in fixed priority order.
func (b *Book) AvailableFormats() []string {
	formats := make([]string, 0, len(ReadableFormats))
	for _, f := range ReadableFormats {
		if b.HasAsset(f) {
			formats = append(formats, f)
		}
	}
	return formats
}

type ReadingStats struct {
	ViewCount        int64 `json:"viewCount"`
	TotalReadingTime int64 `json:"totalReadingTime"`
	AvgReadingTime   int64 `json:"avgReadingTime"`
}

// ReadingStatsFor returns usage counters for a format, nil when the format
// has no asset configured.
func (b *Book) ReadingStatsFor(format string) *ReadingStats {
	if !b.HasAsset(format) {
		return nil
	}
	a := b.Asset(format)
	stats := &ReadingStats{
		ViewCount:        a.ViewCount,
		TotalReadingTime: a.ReadingTime,
	}
	if a.ViewCount > 0 {
		stats.AvgReadingTime = int64(float64(a.ReadingTime)/float64(a.ViewCount) + 0.5)
	}
	return stats
}

// AssetField builds the bson path of a format slot, e.g. "digitalFiles.epub".
func AssetField(format string) string {
	return "digitalFiles." + format
}

// ReadingDelta is the atomic increment applied for one reading session.
// Counters are bumped in-place so concurrent sessions never lose updates.
func ReadingDelta(format string, minutes int64) bson.M {
	return bson.M{"$inc": bson.M{
		AssetField(format) + ".viewCount":   int64(1),
		AssetField(format) + ".readingTime": minutes,
	}}
}

// NewAverage folds one rating into a running average without replaying
// rating history.
func NewAverage(oldAverage float64, oldCount int64, rating int) float64 {
	return (oldAverage*float64(oldCount) + float64(rating)) / float64(oldCount+1)
}

// RatingUpdatePipeline recomputes the aggregate inside a single update so the
// average, count and distribution move together atomically.
func RatingUpdatePipeline(rating int) mongo.Pipeline {
	countField := "$ratings.count"
	avgField := "$ratings.average"
	distField := fmt.Sprintf("ratings.distribution.%d", rating)

	return mongo.Pipeline{
		bson.D{{Key: "$set", Value: bson.M{
			"ratings.average": bson.M{"$divide": bson.A{
				bson.M{"$add": bson.A{
					bson.M{"$multiply": bson.A{avgField, countField}},
					rating,
				}},
				bson.M{"$add": bson.A{countField, 1}},
			}},
			"ratings.count": bson.M{"$add": bson.A{countField, 1}},
			distField:       bson.M{"$add": bson.A{"$" + distField, 1}},
			"updatedAt":     "$$NOW",
		}}},
	}
}
