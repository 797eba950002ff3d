package services

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophaudio/internal/common"
	"github.com/dmitrijs2005/gophaudio/internal/logging"
	"github.com/dmitrijs2005/gophaudio/internal/server/blobstore"
	"github.com/dmitrijs2005/gophaudio/internal/server/config"
	"github.com/dmitrijs2005/gophaudio/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- converter fakes ---

type fakeTTS struct {
	mu       sync.Mutex
	calls    int
	lastText string
	lastLang string
	fn       func(ctx context.Context, text, lang string) ([]byte, error)
}

func (f *fakeTTS) Synthesize(ctx context.Context, text, lang string) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	f.lastText, f.lastLang = text, lang
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(ctx, text, lang)
	}
	// deterministic: same input, same bytes
	return []byte("ID3" + lang + ":" + text), nil
}

type fakeExtractor struct {
	seenPath    string
	seenContent []byte
	out         []byte
	err         error
}

func (f *fakeExtractor) ExtractAudio(_ context.Context, path string) ([]byte, error) {
	f.seenPath = path
	f.seenContent, _ = os.ReadFile(path)
	return f.out, f.err
}

type convFixture struct {
	cfg   *config.Config
	store *memStore
	blobs *memBlobs
	tts   *fakeTTS
	ext   *fakeExtractor
	svc   *ConversionService
	user  *models.User
}

func newConvFixture(t *testing.T) *convFixture {
	t.Helper()
	f := &convFixture{
		cfg:   testConfig(t),
		store: newMemStore(),
		blobs: newMemBlobs(),
		tts:   &fakeTTS{},
		ext:   &fakeExtractor{out: []byte("ID3audio")},
	}
	f.cfg.MaxTextLength = 50
	f.svc = NewConversionService(nil, f.store, f.blobs, f.tts, f.ext, f.cfg, logging.NewDiscard())
	f.user = seedUser(f.store, "u1", "a@x.io")
	return f
}

func tempDirEntries(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return len(entries)
}

func TestTextToAudio_Success(t *testing.T) {
	f := newConvFixture(t)

	a, err := f.svc.TextToAudio(context.Background(), f.user, "  Hello  ", "")
	require.NoError(t, err)

	assert.Equal(t, models.KindTextToAudio, a.Kind)
	assert.Equal(t, f.user.ID, a.UserID)
	assert.True(t, strings.HasSuffix(a.Filename, ".mp3"))
	require.NotNil(t, a.OriginalName)
	assert.Equal(t, "text_conversion", *a.OriginalName)
	assert.Equal(t, "Hello", f.tts.lastText)
	assert.Equal(t, DefaultLanguage, f.tts.lastLang)
	assert.Equal(t, int64(len("ID3en:Hello")), a.Size)
	assert.True(t, f.blobs.has(a.Filename))
}

func TestTextToAudio_DownloadMatchesSynthesis(t *testing.T) {
	f := newConvFixture(t)
	arts := NewArtifactService(nil, f.store, f.blobs, f.cfg.PublicBaseURL, logging.NewDiscard())

	a, err := f.svc.TextToAudio(context.Background(), f.user, "Hello", "en")
	require.NoError(t, err)

	direct, err := f.tts.Synthesize(context.Background(), "Hello", "en")
	require.NoError(t, err)

	_, stored, err := arts.Download(context.Background(), f.user, a.Filename)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(direct, stored))
}

func TestTextToAudio_Validation(t *testing.T) {
	f := newConvFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		text string
		lang string
	}{
		{"empty", "", "en"},
		{"blank", "   \n", "en"},
		{"too long", strings.Repeat("й", 51), "en"},
		{"bad language", "Hello", "EN!"},
		{"language with path", "Hello", "../x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.TextToAudio(ctx, f.user, tt.text, tt.lang)
			assert.ErrorIs(t, err, common.ErrValidation)
		})
	}
	assert.Zero(t, f.tts.calls)
	assert.Zero(t, f.store.artifactCount())
}

func TestTextToAudio_LengthLimitIsInclusive(t *testing.T) {
	f := newConvFixture(t)
	_, err := f.svc.TextToAudio(context.Background(), f.user, strings.Repeat("й", 50), "ru")
	require.NoError(t, err)
}

func TestTextToAudio_ConverterFailure(t *testing.T) {
	f := newConvFixture(t)
	f.tts.fn = func(context.Context, string, string) ([]byte, error) {
		return nil, errors.New("upstream 503")
	}

	_, err := f.svc.TextToAudio(context.Background(), f.user, "Hello", "en")
	require.ErrorIs(t, err, common.ErrConversionFailed)

	var cf *common.ConversionFailedError
	require.ErrorAs(t, err, &cf)
	assert.Contains(t, cf.Reason, "upstream 503")
	assert.Zero(t, f.store.artifactCount())
	assert.Zero(t, f.blobs.count())
}

func TestTextToAudio_EmptyOutputIsFailure(t *testing.T) {
	f := newConvFixture(t)
	f.tts.fn = func(context.Context, string, string) ([]byte, error) { return nil, nil }

	_, err := f.svc.TextToAudio(context.Background(), f.user, "Hello", "en")
	assert.ErrorIs(t, err, common.ErrConversionFailed)
}

func TestTextToAudio_Timeout(t *testing.T) {
	f := newConvFixture(t)
	f.svc.timeout = 20 * time.Millisecond
	f.tts.fn = func(ctx context.Context, _, _ string) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	_, err := f.svc.TextToAudio(context.Background(), f.user, "Hello", "en")
	require.ErrorIs(t, err, common.ErrConversionFailed)
	assert.Contains(t, err.Error(), "timed out")
}

func TestTextToAudio_StorageFailure(t *testing.T) {
	f := newConvFixture(t)
	f.blobs.putErr = errors.New("disk full")

	_, err := f.svc.TextToAudio(context.Background(), f.user, "Hello", "en")
	assert.ErrorIs(t, err, common.ErrStorageWriteFailed)
	assert.Zero(t, f.store.artifactCount())
}

func TestTextToAudio_RegistryFailureRemovesBlob(t *testing.T) {
	f := newConvFixture(t)
	f.store.createArtifactErr = errors.New("db down")

	_, err := f.svc.TextToAudio(context.Background(), f.user, "Hello", "en")
	require.Error(t, err)
	assert.Zero(t, f.blobs.count())
	assert.Len(t, f.blobs.deleted, 1)
}

func TestVideoToAudio_Success(t *testing.T) {
	f := newConvFixture(t)

	a, err := f.svc.VideoToAudio(context.Background(), f.user, "clips/holiday.mp4", strings.NewReader("video-bytes"))
	require.NoError(t, err)

	assert.Equal(t, models.KindVideoToAudio, a.Kind)
	require.NotNil(t, a.OriginalName)
	assert.Equal(t, "holiday.mp4", *a.OriginalName)
	assert.Equal(t, int64(len("ID3audio")), a.Size)
	assert.Equal(t, []byte("video-bytes"), f.ext.seenContent)
	assert.True(t, strings.HasSuffix(f.ext.seenPath, ".mp4"))
	assert.Zero(t, tempDirEntries(t, f.cfg.TempDir))
}

func TestVideoToAudio_NoAudioTrack(t *testing.T) {
	f := newConvFixture(t)
	f.ext.out, f.ext.err = nil, common.ErrNoAudioTrack

	_, err := f.svc.VideoToAudio(context.Background(), f.user, "silent.mp4", strings.NewReader("video"))
	assert.ErrorIs(t, err, common.ErrNoAudioTrack)
	assert.NotErrorIs(t, err, common.ErrConversionFailed)

	assert.Zero(t, f.store.artifactCount())
	assert.Zero(t, f.blobs.count())
	assert.Zero(t, tempDirEntries(t, f.cfg.TempDir))
}

func TestVideoToAudio_ExtractorFailure(t *testing.T) {
	f := newConvFixture(t)
	f.ext.out, f.ext.err = nil, errors.New("moov atom not found")

	_, err := f.svc.VideoToAudio(context.Background(), f.user, "broken.mp4", strings.NewReader("video"))
	assert.ErrorIs(t, err, common.ErrConversionFailed)
	assert.Zero(t, tempDirEntries(t, f.cfg.TempDir))
}

func TestVideoToAudio_EmptyUpload(t *testing.T) {
	f := newConvFixture(t)

	_, err := f.svc.VideoToAudio(context.Background(), f.user, "a.mp4", strings.NewReader(""))
	assert.ErrorIs(t, err, common.ErrValidation)
	assert.Empty(t, f.ext.seenPath)
	assert.Zero(t, tempDirEntries(t, f.cfg.TempDir))
}

func TestVideoToAudio_NoOriginalName(t *testing.T) {
	f := newConvFixture(t)

	a, err := f.svc.VideoToAudio(context.Background(), f.user, "", strings.NewReader("video"))
	require.NoError(t, err)
	assert.Nil(t, a.OriginalName)
}

func TestVideoToAudio_WithLocalStore(t *testing.T) {
	f := newConvFixture(t)
	local, err := blobstore.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	f.svc.blobs = local

	a, err := f.svc.VideoToAudio(context.Background(), f.user, "x.mov", strings.NewReader("video"))
	require.NoError(t, err)

	got, err := local.Get(context.Background(), a.Filename)
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3audio"), got)
}

func TestCleanOriginalName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a.mp4", "a.mp4"},
		{"dir/sub/a.mp4", "a.mp4"},
		{`C:\Users\me\a.mp4`, "a.mp4"},
		{"../../etc/passwd", "passwd"},
	}
	for _, tt := range tests {
		got := cleanOriginalName(tt.in)
		require.NotNil(t, got, tt.in)
		assert.Equal(t, tt.want, *got)
	}
	assert.Nil(t, cleanOriginalName(""))
	assert.Nil(t, cleanOriginalName("   "))
	assert.Nil(t, cleanOriginalName("/"))
}
