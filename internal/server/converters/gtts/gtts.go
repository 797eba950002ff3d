// Package gtts synthesizes speech through the Google Translate TTS endpoint.
//
// The endpoint accepts at most 100 characters per request, so longer text is
// split on word boundaries and the returned MP3 segments are concatenated.
// MP3 frames are self-delimiting, so plain concatenation plays back in order.
package gtts

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/dmitrijs2005/gophaudio/internal/netx"
)

// MaxChunkRunes is the per-request text limit of the endpoint.
const MaxChunkRunes = 100

const userAgent = "Mozilla/5.0 (compatible; gophaudio/1.0)"

// Synthesizer turns text into MP3 bytes.
type Synthesizer struct {
	baseURL string
	client  *http.Client
}

type Option func(*Synthesizer)

func WithHTTPClient(c *http.Client) Option {
	return func(s *Synthesizer) {
		s.client = c
	}
}

func New(baseURL string, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Synthesize returns the MP3 rendering of text in language lang.
func (s *Synthesizer) Synthesize(ctx context.Context, text, lang string) ([]byte, error) {
	chunks := Chunk(text, MaxChunkRunes)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("nothing to synthesize")
	}

	header := http.Header{}
	header.Set("User-Agent", userAgent)
	header.Set("Referer", s.baseURL+"/")

	var out []byte
	for i, c := range chunks {
		b, err := netx.GetBytes(ctx, s.client, s.chunkURL(c, lang, i, len(chunks)), header)
		if err != nil {
			return nil, fmt.Errorf("tts chunk %d/%d: %w", i+1, len(chunks), err)
		}
		out = append(out, b...)
	}
	return out, nil
}

func (s *Synthesizer) chunkURL(text, lang string, idx, total int) string {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("q", text)
	q.Set("tl", lang)
	q.Set("client", "tw-ob")
	q.Set("total", strconv.Itoa(total))
	q.Set("idx", strconv.Itoa(idx))
	q.Set("textlen", strconv.Itoa(utf8.RuneCountInString(text)))
	return s.baseURL + "/translate_tts?" + q.Encode()
}

// Chunk splits text into pieces of at most limit runes, breaking on
// whitespace where possible. Words longer than limit are hard-split.
// Whitespace-only input yields no chunks.
func Chunk(text string, limit int) []string {
	var (
		chunks []string
		cur    []rune
	)
	flush := func() {
		if s := strings.TrimSpace(string(cur)); s != "" {
			chunks = append(chunks, s)
		}
		cur = cur[:0]
	}

	for _, word := range strings.FieldsFunc(text, unicode.IsSpace) {
		w := []rune(word)
		for len(w) > limit {
			flush()
			chunks = append(chunks, string(w[:limit]))
			w = w[limit:]
		}
		switch {
		case len(cur) == 0:
			cur = append(cur, w...)
		case len(cur)+1+len(w) <= limit:
			cur = append(cur, ' ')
			cur = append(cur, w...)
		default:
			flush()
			cur = append(cur, w...)
		}
	}
	flush()

	return chunks
}
