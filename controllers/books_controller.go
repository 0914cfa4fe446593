package controllers

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/kitabi/kitabibackend/apperr"
	"github.com/kitabi/kitabibackend/dto"
	"github.com/kitabi/kitabibackend/logger"
	"github.com/kitabi/kitabibackend/middleware"
	"github.com/kitabi/kitabibackend/models"
)

func formatContentType(format string) string {
	switch format {
	case models.FormatEpub:
		return "application/epub+zip"
	case models.FormatMobi:
		return "application/x-mobipocket-ebook"
	case models.FormatPDF:
		return "application/pdf"
	case models.FormatAudiobook:
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}

func (a *App) findBook(c *gin.Context) (*models.Book, bool) {
	id, err := bson.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		apperr.Respond(c, a.Cfg.Env, apperr.New(apperr.Validation, "Invalid book id"))
		return nil, false
	}

	var book models.Book
	booksCol := a.books()
	if err := booksCol.FindOne(c.Request.Context(), bson.M{"_id": id}).Decode(&book); err != nil {
		apperr.Respond(c, a.Cfg.Env, apperr.New(apperr.NotAvailable, "الكتاب غير موجود"))
		return nil, false
	}
	return &book, true
}

// canManageFiles allows the uploader of the book, moderators and admins to
// add or remove its digital files.
func canManageFiles(c *gin.Context, book *models.Book) bool {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		return false
	}
	switch {
	case claims.IsAdmin, claims.Role == string(models.RoleAdmin):
		return true
	case claims.Role == string(models.RoleModerator):
		return true
	}
	return book.AddedBy.Hex() == claims.UserID
}

func (a *App) CreateBook() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.CreateBookDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			apperr.Respond(c, a.Cfg.Env, apperr.Wrap(apperr.Validation, "Invalid book payload", err))
			return
		}

		claims, _ := middleware.ClaimsFrom(c)
		addedBy, err := bson.ObjectIDFromHex(claims.UserID)
		if err != nil {
			apperr.Respond(c, a.Cfg.Env, apperr.Wrap(apperr.Internal, "Failed to create book", err))
			return
		}

		language := body.Language
		if language == "" {
			language = "ar"
		}
		isPublic := true
		if body.IsPublic != nil {
			isPublic = *body.IsPublic
		}

		now := time.Now().UTC()
		book := models.Book{
			Title:       body.Title,
			Authors:     body.Authors,
			Description: body.Description,
			Language:    language,
			DRM: models.DRM{
				LicenseType:    "free",
				DownloadLimit:  -1,
				AllowedDevices: 5,
			},
			AddedBy:   addedBy,
			IsPublic:  isPublic,
			CreatedAt: now,
			UpdatedAt: now,
		}

		booksCol := a.books()
		result, err := booksCol.InsertOne(c.Request.Context(), book)
		if err != nil {
			a.Log.Error("book insert failed", logger.Err(err))
			apperr.Respond(c, a.Cfg.Env, apperr.Wrap(apperr.Internal, "Failed to create book", err))
			return
		}
		book.ID = result.InsertedID.(bson.ObjectID)

		c.JSON(http.StatusCreated, gin.H{"success": true, "data": book})
	}
}

func (a *App) GetBook() gin.HandlerFunc {
	return func(c *gin.Context) {
		book, ok := a.findBook(c)
		if !ok {
			return
		}

		if !book.IsPublic && !middleware.IsAuthenticated(c) {
			apperr.Respond(c, a.Cfg.Env, apperr.New(apperr.NotAvailable, "الكتاب غير موجود"))
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data": gin.H{
				"book":             book,
				"availableFormats": book.AvailableFormats(),
			},
		})
	}
}

// UploadBookFile ingests one digital file for an existing book. Acceptance
// is provisional until the integrity check passes; a replaced asset's old
// file is removed from disk.
func (a *App) UploadBookFile() gin.HandlerFunc {
	return func(c *gin.Context) {
		book, ok := a.findBook(c)
		if !ok {
			return
		}
		if !canManageFiles(c, book) {
			apperr.Respond(c, a.Cfg.Env, apperr.New(apperr.Authorization, "ليس لديك صلاحية لرفع ملفات لهذا الكتاب"))
			return
		}

		fh, err := c.FormFile("bookFile")
		if err != nil {
			apperr.Respond(c, a.Cfg.Env, apperr.New(apperr.Validation, "لم يتم رفع أي ملف"))
			return
		}

		stored, err := a.Uploader.Accept(fh)
		if err != nil {
			apperr.Respond(c, a.Cfg.Env, err)
			return
		}

		asset := book.Asset(stored.Format)
		if asset == nil {
			a.Uploader.Delete(stored.Path)
			apperr.Respond(c, a.Cfg.Env, apperr.New(apperr.Validation, "نوع الملف غير مدعوم"))
			return
		}

		// Replacing a format removes the previous file.
		if asset.URL != "" {
			a.Uploader.Delete(a.Uploader.PathFor(asset.URL))
		}

		now := time.Now().UTC()
		newAsset := models.BookAsset{
			URL:        stored.URL,
			FileSize:   stored.Size,
			UploadDate: &now,
		}

		booksCol := a.books()
		_, err = booksCol.UpdateOne(c.Request.Context(),
			bson.M{"_id": book.ID},
			bson.M{"$set": bson.M{
				models.AssetField(stored.Format): newAsset,
				"updatedAt":                      now,
			}},
		)
		if err != nil {
			a.Uploader.Delete(stored.Path)
			a.Log.Error("asset commit failed", logger.Err(err))
			apperr.Respond(c, a.Cfg.Env, apperr.Wrap(apperr.Internal, "خطأ في رفع الملف", err))
			return
		}

		*book.Asset(stored.Format) = newAsset
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "تم رفع الملف بنجاح",
			"data": gin.H{
				"format":           stored.Format,
				"fileSize":         stored.Size,
				"availableFormats": book.AvailableFormats(),
			},
		})
	}
}

// UploadBookFiles ingests several formats in one request. Field names are
// not restricted; each file passes the same pipeline as the single upload,
// and one bad file does not roll back the ones already committed.
func (a *App) UploadBookFiles() gin.HandlerFunc {
	return func(c *gin.Context) {
		book, ok := a.findBook(c)
		if !ok {
			return
		}
		if !canManageFiles(c, book) {
			apperr.Respond(c, a.Cfg.Env, apperr.New(apperr.Authorization, "ليس لديك صلاحية لرفع ملفات لهذا الكتاب"))
			return
		}

		form, err := c.MultipartForm()
		if err != nil {
			apperr.Respond(c, a.Cfg.Env, apperr.New(apperr.Validation, "لم يتم رفع أي ملف"))
			return
		}

		var files []*multipart.FileHeader
		for _, headers := range form.File {
			files = append(files, headers...)
		}
		if len(files) == 0 {
			apperr.Respond(c, a.Cfg.Env, apperr.New(apperr.Validation, "لم يتم رفع أي ملف"))
			return
		}
		if len(files) > a.Cfg.MaxUploadFiles {
			apperr.Respond(c, a.Cfg.Env, apperr.New(apperr.Validation,
				fmt.Sprintf("عدد الملفات كبير جداً. الحد الأقصى %d ملفات", a.Cfg.MaxUploadFiles)))
			return
		}

		booksCol := a.books()
		now := time.Now().UTC()
		committed := make([]string, 0, len(files))
		failures := make([]gin.H, 0)

		for _, fh := range files {
			stored, err := a.Uploader.Accept(fh)
			if err != nil {
				failures = append(failures, gin.H{"file": fh.Filename, "message": userMessage(err)})
				continue
			}

			asset := book.Asset(stored.Format)
			if asset == nil {
				a.Uploader.Delete(stored.Path)
				failures = append(failures, gin.H{"file": fh.Filename, "message": "نوع الملف غير مدعوم"})
				continue
			}
			if asset.URL != "" {
				a.Uploader.Delete(a.Uploader.PathFor(asset.URL))
			}

			newAsset := models.BookAsset{URL: stored.URL, FileSize: stored.Size, UploadDate: &now}
			_, err = booksCol.UpdateOne(c.Request.Context(),
				bson.M{"_id": book.ID},
				bson.M{"$set": bson.M{
					models.AssetField(stored.Format): newAsset,
					"updatedAt":                      now,
				}},
			)
			if err != nil {
				a.Uploader.Delete(stored.Path)
				a.Log.Error("asset commit failed", logger.Err(err))
				failures = append(failures, gin.H{"file": fh.Filename, "message": "خطأ في رفع الملف"})
				continue
			}

			*book.Asset(stored.Format) = newAsset
			committed = append(committed, stored.Format)
		}

		status := http.StatusOK
		if len(committed) == 0 {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{
			"success": len(committed) > 0,
			"data": gin.H{
				"uploaded":         committed,
				"failed":           failures,
				"availableFormats": book.AvailableFormats(),
			},
		})
	}
}

// userMessage extracts the localized message from a pipeline rejection.
func userMessage(err error) string {
	var e *apperr.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "خطأ في رفع الملف"
}

// ReadBook streams a book file for in-app reading and tracks a one-minute
// session. Range requests are honored for progressive loading.
func (a *App) ReadBook() gin.HandlerFunc {
	return func(c *gin.Context) {
		book, ok := a.findBook(c)
		if !ok {
			return
		}
		format := c.Param("format")

		if !book.CanRead(format, time.Now()) {
			apperr.Respond(c, a.Cfg.Env, apperr.New(apperr.Authorization, "ليس لديك صلاحية لقراءة هذا الملف"))
			return
		}

		path := a.Uploader.PathFor(book.Asset(format).URL)
		f, err := os.Open(path)
		if err != nil {
			apperr.Respond(c, a.Cfg.Env, apperr.New(apperr.NotAvailable, "الملف غير موجود على الخادم"))
			return
		}
		defer f.Close()

		stat, err := f.Stat()
		if err != nil {
			apperr.Respond(c, a.Cfg.Env, apperr.Wrap(apperr.Internal, "خطأ في قراءة الملف", err))
			return
		}

		c.Header("Content-Type", formatContentType(format))
		c.Header("Content-Disposition", "inline")
		c.Header("Cache-Control", "no-cache")
		http.ServeContent(c.Writer, c.Request, stat.Name(), stat.ModTime(), f)

		booksCol := a.books()
		if _, err := booksCol.UpdateOne(c.Request.Context(),
			bson.M{"_id": book.ID}, models.ReadingDelta(format, 1)); err != nil {
			a.Log.Warn("reading session not recorded", logger.Err(err))
		}
	}
}

func (a *App) GetBookMetadata() gin.HandlerFunc {
	return func(c *gin.Context) {
		book, ok := a.findBook(c)
		if !ok {
			return
		}
		format := c.Param("format")

		if !book.CanRead(format, time.Now()) {
			apperr.Respond(c, a.Cfg.Env, apperr.New(apperr.Authorization, "ليس لديك صلاحية لقراءة هذا الملف"))
			return
		}

		drm := gin.H{"isProtected": false}
		if book.DRM.IsProtected {
			drm = gin.H{
				"isProtected":    true,
				"expirationDate": book.DRM.ExpirationDate,
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data": gin.H{
				"title":       book.Title,
				"authors":     book.Authors,
				"description": book.Description,
				"language":    book.Language,
				"format":      format,
				"size":        book.Asset(format).FileSize,
				"drm":         drm,
				"stats":       book.ReadingStatsFor(format),
			},
		})
	}
}

// TrackProgress records one reading session as an atomic counter delta.
// A format with no configured asset is rejected, never silently created.
func (a *App) TrackProgress() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.ProgressDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			apperr.Respond(c, a.Cfg.Env, apperr.Wrap(apperr.Validation, "Invalid progress payload", err))
			return
		}
		if body.SessionTime <= 0 {
			body.SessionTime = 1
		}

		book, ok := a.findBook(c)
		if !ok {
			return
		}
		if !book.HasAsset(body.Format) {
			apperr.Respond(c, a.Cfg.Env, apperr.New(apperr.NotAvailable, "الملف غير متوفر بهذه الصيغة"))
			return
		}

		booksCol := a.books()
		_, err := booksCol.UpdateOne(c.Request.Context(),
			bson.M{"_id": book.ID}, models.ReadingDelta(body.Format, body.SessionTime))
		if err != nil {
			a.Log.Error("progress update failed", logger.Err(err))
			apperr.Respond(c, a.Cfg.Env, apperr.Wrap(apperr.Internal, "خطأ في حفظ التقدم", err))
			return
		}

		asset := book.Asset(body.Format)
		asset.ViewCount++
		asset.ReadingTime += body.SessionTime

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "تم حفظ التقدم بنجاح",
			"data":    gin.H{"stats": book.ReadingStatsFor(body.Format)},
		})
	}
}

// RateBook folds one rating into the aggregate in a single atomic update;
// raw rating history is never replayed.
func (a *App) RateBook() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.RatingDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			apperr.Respond(c, a.Cfg.Env, apperr.Wrap(apperr.Validation, "Rating must be between 1 and 5", err))
			return
		}

		id, err := bson.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			apperr.Respond(c, a.Cfg.Env, apperr.New(apperr.Validation, "Invalid book id"))
			return
		}

		booksCol := a.books()
		result, err := booksCol.UpdateOne(c.Request.Context(),
			bson.M{"_id": id}, models.RatingUpdatePipeline(body.Rating))
		if err != nil {
			a.Log.Error("rating update failed", logger.Err(err))
			apperr.Respond(c, a.Cfg.Env, apperr.Wrap(apperr.Internal, "Failed to save rating", err))
			return
		}
		if result.MatchedCount == 0 {
			apperr.Respond(c, a.Cfg.Env, apperr.New(apperr.NotAvailable, "الكتاب غير موجود"))
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func (a *App) DeleteBookFile() gin.HandlerFunc {
	return func(c *gin.Context) {
		book, ok := a.findBook(c)
		if !ok {
			return
		}
		if !canManageFiles(c, book) {
			apperr.Respond(c, a.Cfg.Env, apperr.New(apperr.Authorization, "ليس لديك صلاحية لحذف ملفات هذا الكتاب"))
			return
		}

		format := c.Param("format")
		if !book.HasAsset(format) {
			apperr.Respond(c, a.Cfg.Env, apperr.New(apperr.NotAvailable, "الملف غير متوفر بهذه الصيغة"))
			return
		}

		a.Uploader.Delete(a.Uploader.PathFor(book.Asset(format).URL))

		booksCol := a.books()
		_, err := booksCol.UpdateOne(c.Request.Context(),
			bson.M{"_id": book.ID},
			bson.M{
				"$unset": bson.M{models.AssetField(format): ""},
				"$set":   bson.M{"updatedAt": time.Now().UTC()},
			},
		)
		if err != nil {
			a.Log.Error("asset removal failed", logger.Err(err))
			apperr.Respond(c, a.Cfg.Env, apperr.Wrap(apperr.Internal, "خطأ في حذف الملف", err))
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "message": "تم حذف الملف بنجاح"})
	}
}

// DeleteBook removes the book and every asset file it owns.
func (a *App) DeleteBook() gin.HandlerFunc {
	return func(c *gin.Context) {
		book, ok := a.findBook(c)
		if !ok {
			return
		}

		for _, format := range append(append([]string{}, models.ReadableFormats...), models.FormatAudiobook) {
			if book.HasAsset(format) {
				a.Uploader.Delete(a.Uploader.PathFor(book.Asset(format).URL))
			}
		}

		booksCol := a.books()
		if _, err := booksCol.DeleteOne(c.Request.Context(), bson.M{"_id": book.ID}); err != nil {
			a.Log.Error("book delete failed", logger.Err(err))
			apperr.Respond(c, a.Cfg.Env, apperr.Wrap(apperr.Internal, "Failed to delete book", err))
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
