package controllers

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/kitabi/kitabibackend/config"
	"github.com/kitabi/kitabibackend/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubBookStore serves a fixed book and records every write it receives.
type stubBookStore struct {
	book       *models.Book
	updates    int
	lastUpdate interface{}
}

func (s *stubBookStore) FindOne(_ context.Context, _ interface{}, _ ...options.Lister[options.FindOneOptions]) *mongo.SingleResult {
	if s.book == nil {
		return mongo.NewSingleResultFromDocument(bson.D{}, mongo.ErrNoDocuments, nil)
	}
	return mongo.NewSingleResultFromDocument(s.book, nil, nil)
}

func (s *stubBookStore) InsertOne(_ context.Context, _ interface{}, _ ...options.Lister[options.InsertOneOptions]) (*mongo.InsertOneResult, error) {
	return &mongo.InsertOneResult{InsertedID: bson.NewObjectID()}, nil
}

func (s *stubBookStore) UpdateOne(_ context.Context, _ interface{}, update interface{}, _ ...options.Lister[options.UpdateOneOptions]) (*mongo.UpdateResult, error) {
	s.updates++
	s.lastUpdate = update
	return &mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
}

func (s *stubBookStore) DeleteOne(_ context.Context, _ interface{}, _ ...options.Lister[options.DeleteOneOptions]) (*mongo.DeleteResult, error) {
	return &mongo.DeleteResult{DeletedCount: 1}, nil
}

func testApp(store *stubBookStore) *App {
	return &App{
		Cfg:   config.Config{Env: "dev"},
		Log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Books: store,
	}
}

func epubBook() *models.Book {
	b := &models.Book{
		ID:    bson.NewObjectID(),
		Title: "Test Book",
	}
	b.DigitalFiles.Epub.URL = "/uploads/books/test.epub"
	b.DigitalFiles.Epub.FileSize = 1024
	return b
}

func postProgress(app *App, id, body string) *httptest.ResponseRecorder {
	r := gin.New()
	r.POST("/books/:id/progress", app.TrackProgress())
	req := httptest.NewRequest(http.MethodPost, "/books/"+id+"/progress", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTrackProgress(t *testing.T) {
	t.Run("unconfigured format rejected without writes", func(t *testing.T) {
		store := &stubBookStore{book: epubBook()}
		app := testApp(store)

		w := postProgress(app, store.book.ID.Hex(), `{"format":"mobi","sessionTime":5}`)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "الملف غير متوفر بهذه الصيغة")
		assert.Zero(t, store.updates)
	})

	t.Run("session recorded as atomic delta", func(t *testing.T) {
		store := &stubBookStore{book: epubBook()}
		app := testApp(store)

		w := postProgress(app, store.book.ID.Hex(), `{"format":"epub","sessionTime":5}`)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "تم حفظ التقدم بنجاح")
		require.Equal(t, 1, store.updates)

		update, ok := store.lastUpdate.(bson.M)
		require.True(t, ok)
		inc, ok := update["$inc"].(bson.M)
		require.True(t, ok)
		assert.Equal(t, int64(1), inc["digitalFiles.epub.viewCount"])
		assert.Equal(t, int64(5), inc["digitalFiles.epub.readingTime"])
	})

	t.Run("session time defaults to one minute", func(t *testing.T) {
		store := &stubBookStore{book: epubBook()}
		app := testApp(store)

		w := postProgress(app, store.book.ID.Hex(), `{"format":"epub"}`)

		assert.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, 1, store.updates)
		inc := store.lastUpdate.(bson.M)["$inc"].(bson.M)
		assert.Equal(t, int64(1), inc["digitalFiles.epub.readingTime"])
	})

	t.Run("unknown book rejected without writes", func(t *testing.T) {
		store := &stubBookStore{}
		app := testApp(store)

		w := postProgress(app, bson.NewObjectID().Hex(), `{"format":"epub"}`)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "الكتاب غير موجود")
		assert.Zero(t, store.updates)
	})

	t.Run("invalid book id rejected", func(t *testing.T) {
		store := &stubBookStore{book: epubBook()}
		app := testApp(store)

		w := postProgress(app, "not-an-id", `{"format":"epub"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Zero(t, store.updates)
	})
}
