package utils

import (
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kitabi/kitabibackend/apperr"
	"github.com/kitabi/kitabibackend/config"
	"github.com/kitabi/kitabibackend/logger"
)

// StoredFile describes a committed upload. It stays transient until the
// handler attaches it to a book asset.
type StoredFile struct {
	OriginalName string
	StoredName   string
	Path         string
	URL          string
	MimeType     string
	Size         int64
	Format       string
}

// Uploader validates and persists book files under <root>/books.
type Uploader struct {
	booksDir    string
	maxSize     int64
	allowedExt  map[string]bool
	allowedMime map[string]bool
	validators  map[string]FormatValidator
	log         *slog.Logger
}

// NewUploader creates the content root idempotently.
func NewUploader(cfg config.Config, log *slog.Logger) (*Uploader, error) {
	booksDir := filepath.Join(cfg.UploadsRoot, "books")
	if err := os.MkdirAll(booksDir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}

	allowedExt := make(map[string]bool, len(cfg.AllowedExt))
	for _, ext := range cfg.AllowedExt {
		allowedExt[ext] = true
	}
	allowedMime := make(map[string]bool, len(cfg.AllowedMime))
	for _, m := range cfg.AllowedMime {
		allowedMime[m] = true
	}

	return &Uploader{
		booksDir:    booksDir,
		maxSize:     cfg.MaxUploadSize,
		allowedExt:  allowedExt,
		allowedMime: allowedMime,
		validators:  DefaultValidators(),
		log:         log,
	}, nil
}

// RegisterValidator plugs in an integrity check for a format.
func (u *Uploader) RegisterValidator(format string, v FormatValidator) {
	u.validators[format] = v
}

// Accept runs the full admission pipeline on one multipart file: type gate,
// size ceiling, disk write, then the format-specific integrity check. A file
// that fails after being written is removed again, so acceptance of the
// write is provisional until Accept returns.
func (u *Uploader) Accept(fh *multipart.FileHeader) (*StoredFile, error) {
	ext := strings.ToLower(filepath.Ext(fh.Filename))

	// Strip parameters like "; charset=binary" before consulting the
	// allow-list.
	declaredMime := strings.ToLower(fh.Header.Get("Content-Type"))
	if mt, _, err := mime.ParseMediaType(declaredMime); err == nil {
		declaredMime = mt
	}

	// Either signal may be wrong; accept when at least one is on the list.
	if !u.allowedMime[declaredMime] && !u.allowedExt[ext] {
		return nil, apperr.New(apperr.Validation, u.unsupportedMessage())
	}

	if fh.Size > u.maxSize {
		return nil, apperr.New(apperr.Validation, u.tooLargeMessage())
	}

	src, err := fh.Open()
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "خطأ في رفع الملف", err)
	}
	defer src.Close()

	base := filepath.Base(fh.Filename)
	storedName := fmt.Sprintf("%s_%d-%s%s",
		SanitizeBaseName(strings.TrimSuffix(base, filepath.Ext(base))),
		time.Now().UnixMilli(),
		uuid.New().String(),
		ext,
	)
	path := filepath.Join(u.booksDir, storedName)

	written, err := u.writeCapped(path, src)
	if err != nil {
		u.Delete(path)
		return nil, err
	}
	if written == 0 {
		u.Delete(path)
		return nil, apperr.New(apperr.Validation, "الملف فارغ")
	}

	format := FileFormat(fh.Filename)
	if err := u.checkIntegrity(path, format); err != nil {
		u.Delete(path)
		return nil, err
	}

	return &StoredFile{
		OriginalName: fh.Filename,
		StoredName:   storedName,
		Path:         path,
		URL:          "/uploads/books/" + storedName,
		MimeType:     declaredMime,
		Size:         written,
		Format:       format,
	}, nil
}

// writeCapped streams to disk, aborting once the ceiling is crossed so an
// oversized upload is never truncated into a plausible file.
func (u *Uploader) writeCapped(path string, src io.Reader) (int64, error) {
	dst, err := os.Create(path)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "خطأ في رفع الملف", err)
	}
	defer dst.Close()

	written, err := io.Copy(dst, io.LimitReader(src, u.maxSize+1))
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "خطأ في رفع الملف", err)
	}
	if written > u.maxSize {
		return 0, apperr.New(apperr.Validation, u.tooLargeMessage())
	}
	return written, nil
}

func (u *Uploader) checkIntegrity(path, format string) error {
	validate, ok := u.validators[format]
	if !ok {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "خطأ في رفع الملف", err)
	}
	defer f.Close()

	header := make([]byte, 8)
	n, err := f.Read(header)
	if err != nil && err != io.EOF {
		return apperr.Wrap(apperr.Internal, "خطأ في رفع الملف", err)
	}

	if err := validate(header[:n]); err != nil {
		return apperr.Wrap(apperr.Validation,
			fmt.Sprintf("ملف %s غير صحيح", strings.ToUpper(format)), err)
	}
	return nil
}

// Delete removes a stored file. A missing path is not an error; a failing
// removal is logged and swallowed so it never fails the enclosing request.
func (u *Uploader) Delete(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		u.log.Warn("failed to delete uploaded file", slog.String("path", path), logger.Err(err))
	}
}

// PathFor resolves an asset URL back to its on-disk location inside the
// content root, ignoring any directory part a stored URL might carry.
func (u *Uploader) PathFor(assetURL string) string {
	return filepath.Join(u.booksDir, filepath.Base(assetURL))
}

func (u *Uploader) unsupportedMessage() string {
	names := make([]string, 0, len(u.allowedExt))
	for _, ext := range sortedKeys(u.allowedExt) {
		names = append(names, strings.ToUpper(strings.TrimPrefix(ext, ".")))
	}
	return "نوع الملف غير مدعوم. الصيغ المدعومة: " + strings.Join(names, ", ")
}

func (u *Uploader) tooLargeMessage() string {
	return fmt.Sprintf("حجم الملف كبير جداً. الحد الأقصى %d ميجابايت", u.maxSize>>20)
}

// FileFormat maps a filename extension to its book format.
func FileFormat(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".epub":
		return "epub"
	case ".mobi":
		return "mobi"
	case ".pdf":
		return "pdf"
	case ".mp3", ".m4a", ".wav":
		return "audiobook"
	default:
		return "unknown"
	}
}
