package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/gophaudio/internal/common"
	"github.com/dmitrijs2005/gophaudio/internal/filex"
	"github.com/dmitrijs2005/gophaudio/internal/logging"
	"github.com/dmitrijs2005/gophaudio/internal/server/blobstore"
	"github.com/dmitrijs2005/gophaudio/internal/server/config"
	"github.com/dmitrijs2005/gophaudio/internal/server/models"
	"github.com/dmitrijs2005/gophaudio/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// DefaultLanguage is used when a text conversion names no language.
const DefaultLanguage = "en"

// textOriginalName is stored as the original name of text conversions.
const textOriginalName = "text_conversion"

var languageTag = regexp.MustCompile(`^[a-z]{2,3}(-[A-Za-z]{2,4})?$`)

// Synthesizer renders text as MP3 speech.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, lang string) ([]byte, error)
}

// AudioExtractor pulls the audio track out of a video file as MP3.
type AudioExtractor interface {
	ExtractAudio(ctx context.Context, path string) ([]byte, error)
}

// ConversionService turns user input into stored audio artifacts.
//
// Bytes are written before the registry row, and any failure after the write
// removes them again, so a failed conversion leaves neither a row nor a blob.
type ConversionService struct {
	db            *sql.DB
	repomanager   repomanager.RepositoryManager
	blobs         blobstore.BlobStore
	tts           Synthesizer
	extractor     AudioExtractor
	tempDir       string
	timeout       time.Duration
	maxTextLength int
	newName       func() string
	logger        logging.Logger
}

func NewConversionService(db *sql.DB, m repomanager.RepositoryManager, blobs blobstore.BlobStore,
	tts Synthesizer, extractor AudioExtractor, cfg *config.Config, logger logging.Logger) *ConversionService {
	return &ConversionService{
		db:            db,
		repomanager:   m,
		blobs:         blobs,
		tts:           tts,
		extractor:     extractor,
		tempDir:       cfg.TempDir,
		timeout:       cfg.ConversionTimeout,
		maxTextLength: cfg.MaxTextLength,
		newName:       func() string { return uuid.NewString() + ".mp3" },
		logger:        logger.With("module", "conversion_service"),
	}
}

// TextToAudio synthesizes text and stores the result for user.
func (s *ConversionService) TextToAudio(ctx context.Context, user *models.User, text, language string) (*models.Artifact, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: text is empty", common.ErrValidation)
	}
	if n := utf8.RuneCountInString(text); n > s.maxTextLength {
		return nil, fmt.Errorf("%w: text is %d characters, limit is %d", common.ErrValidation, n, s.maxTextLength)
	}
	if language == "" {
		language = DefaultLanguage
	}
	if !languageTag.MatchString(language) {
		return nil, fmt.Errorf("%w: unsupported language %q", common.ErrValidation, language)
	}

	data, err := s.convert(ctx, func(ctx context.Context) ([]byte, error) {
		return s.tts.Synthesize(ctx, text, language)
	})
	if err != nil {
		s.logger.Warn(ctx, "text conversion failed", "user_id", user.ID, "error", err)
		return nil, err
	}

	original := textOriginalName
	return s.persist(ctx, user, &original, models.KindTextToAudio, data)
}

// VideoToAudio spools r to a temp file, extracts its audio track and stores
// it for user. The temp file is removed on every exit path.
func (s *ConversionService) VideoToAudio(ctx context.Context, user *models.User, originalName string, r io.Reader) (*models.Artifact, error) {
	original := cleanOriginalName(originalName)

	var data []byte
	err := filex.WithTempFile(s.tempDir, "upload-*"+tempExt(original), func(f *os.File) error {
		n, err := io.Copy(f, r)
		if err != nil {
			return fmt.Errorf("error receiving upload: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: uploaded file is empty", common.ErrValidation)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("error receiving upload: %w", err)
		}

		data, err = s.convert(ctx, func(ctx context.Context) ([]byte, error) {
			return s.extractor.ExtractAudio(ctx, f.Name())
		})
		return err
	})
	if err != nil {
		s.logger.Warn(ctx, "video conversion failed", "user_id", user.ID, "error", err)
		return nil, err
	}

	return s.persist(ctx, user, original, models.KindVideoToAudio, data)
}

// convert runs fn under the conversion timeout and normalises its failures.
func (s *ConversionService) convert(ctx context.Context, fn func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := fn(cctx)
	switch {
	case errors.Is(err, common.ErrNoAudioTrack):
		return nil, err
	case err != nil && ctx.Err() == nil && errors.Is(cctx.Err(), context.DeadlineExceeded):
		return nil, &common.ConversionFailedError{Reason: fmt.Sprintf("timed out after %s", s.timeout)}
	case err != nil:
		return nil, &common.ConversionFailedError{Reason: err.Error()}
	case len(out) == 0:
		return nil, &common.ConversionFailedError{Reason: "converter produced no audio"}
	}
	return out, nil
}

func (s *ConversionService) persist(ctx context.Context, user *models.User, original *string,
	kind models.ArtifactKind, data []byte) (*models.Artifact, error) {

	name := s.newName()

	if err := s.blobs.Put(ctx, name, data); err != nil {
		s.discard(ctx, name)
		return nil, fmt.Errorf("%w: %w", common.ErrStorageWriteFailed, err)
	}

	a, err := s.repomanager.Artifacts(s.db).Create(ctx, &models.Artifact{
		Filename:     name,
		OriginalName: original,
		Kind:         kind,
		Size:         int64(len(data)),
		UserID:       user.ID,
	})
	if err != nil {
		s.discard(ctx, name)
		return nil, fmt.Errorf("error registering artifact: %w", err)
	}

	s.logger.Info(ctx, "artifact stored", "user_id", user.ID, "filename", name, "kind", kind, "size", a.Size)
	return a, nil
}

// discard removes a blob that will never get a registry row.
func (s *ConversionService) discard(ctx context.Context, name string) {
	if err := removeBytes(context.WithoutCancel(ctx), s.blobs, name); err != nil {
		s.logger.Error(ctx, "failed to remove unregistered blob", "filename", name, "error", err)
	}
}

func cleanOriginalName(name string) *string {
	name = strings.TrimSpace(filepath.Base(strings.ReplaceAll(name, `\`, "/")))
	if name == "" || name == "." || name == "/" {
		return nil
	}
	return &name
}

// tempExt keeps a short, plain extension so ffprobe can guess the container.
func tempExt(original *string) string {
	if original == nil {
		return ""
	}
	ext := filepath.Ext(*original)
	if len(ext) > 8 || strings.ContainsAny(ext, `/\*`) {
		return ""
	}
	return ext
}
