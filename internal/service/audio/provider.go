package audio

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/hajimehoshi/go-mp3"

	"github.com/acme/announcement-call/internal/config"
	apperrors "github.com/acme/announcement-call/pkg/errors"
)

// ContentType of the served asset.
const ContentType = "audio/mpeg"

// decoded PCM from go-mp3 is 16-bit stereo
const bytesPerFrame = 4

// Asset is the audio file as served over HTTP.
type Asset struct {
	Data         []byte
	ContentType  string
	CacheControl string
}

// AssetInfo describes the decoded asset.
type AssetInfo struct {
	Size       int64
	SampleRate int
	Duration   time.Duration
}

// Provider serves one fixed local audio file. It holds no mutable state and
// is safe for concurrent use.
type Provider struct {
	path         string
	cacheControl string
}

// NewProvider constructs a provider for the configured asset.
func NewProvider(cfg config.AudioConfig) *Provider {
	maxAge := cfg.CacheMaxAge
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &Provider{
		path:         cfg.AssetPath,
		cacheControl: fmt.Sprintf("public, max-age=%d", int64(maxAge/time.Second)),
	}
}

// Path returns the asset location on disk.
func (p *Provider) Path() string {
	return p.path
}

// FetchAudioAsset reads the asset. A missing file yields ErrNotFound, any
// other failure ErrAssetRead.
func (p *Provider) FetchAudioAsset(ctx context.Context) (*Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, p.classify(err)
	}

	return &Asset{
		Data:         data,
		ContentType:  ContentType,
		CacheControl: p.cacheControl,
	}, nil
}

// Inspect decodes the asset to report its sample rate and playback duration.
func (p *Provider) Inspect(ctx context.Context) (AssetInfo, error) {
	if err := ctx.Err(); err != nil {
		return AssetInfo{}, err
	}

	f, err := os.Open(p.path)
	if err != nil {
		return AssetInfo{}, p.classify(err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return AssetInfo{}, p.classify(err)
	}

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return AssetInfo{}, fmt.Errorf("%w: decode %s: %w", apperrors.ErrAssetRead, p.path, err)
	}

	info := AssetInfo{Size: stat.Size(), SampleRate: dec.SampleRate()}
	if length := dec.Length(); length > 0 && info.SampleRate > 0 {
		frames := length / bytesPerFrame
		info.Duration = time.Duration(frames) * time.Second / time.Duration(info.SampleRate)
	}
	return info, nil
}

func (p *Provider) classify(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: audio asset %s", apperrors.ErrNotFound, p.path)
	}
	return fmt.Errorf("%w: %w", apperrors.ErrAssetRead, err)
}
