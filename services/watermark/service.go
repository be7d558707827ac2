package watermark

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"net/http"
	"time"

	"tuliu-backend/pkg/config"
	"tuliu-backend/services/tier"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

var Module = fx.Module("watermark.service", fx.Provide(NewService))

// Service renders the trial-tier preview watermark. Paid tiers pass through
// untouched and any processing failure degrades to the unwatermarked URL,
// never to a request failure.
type Service struct {
	storage    *minio.Client
	httpClient *http.Client
	face       font.Face
	bucket     string
	publicURL  string
	label      string
	size       int
}

type ServiceParams struct {
	fx.In
	Config  *config.Config
	Storage *minio.Client
}

func NewService(p ServiceParams) (*Service, error) {
	fnt, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, err
	}
	face, err := opentype.NewFace(fnt, &opentype.FaceOptions{
		Size:    48,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, err
	}

	return &Service{
		storage:    p.Storage,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		face:       face,
		bucket:     p.Config.Minio.BucketName,
		publicURL:  p.Config.Minio.PublicURL,
		label:      p.Config.Watermark.Label,
		size:       p.Config.Watermark.Size,
	}, nil
}

// Apply returns the final URL for a generated image. Only the trial tier is
// watermarked; every error on that path falls back to rawURL.
func (s *Service) Apply(ctx context.Context, rawURL string, t tier.Tier, accountID string) string {
	if t != tier.Trial {
		return rawURL
	}

	finalURL, err := s.process(ctx, rawURL, accountID)
	if err != nil {
		zap.L().Warn("watermarking failed, returning original image",
			zap.String("account_id", accountID),
			zap.Error(err))
		return rawURL
	}
	return finalURL
}

func (s *Service) process(ctx context.Context, rawURL, accountID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch image: %s", resp.Status)
	}

	src, err := imaging.Decode(resp.Body)
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	// Cover-fit: crop to fill the square, keep aspect, center.
	preview := imaging.Fill(src, s.size, s.size, imaging.Center, imaging.Lanczos)
	s.drawLabel(preview)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, preview, imaging.PNG); err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}

	key := fmt.Sprintf("watermarked/%s/%s-watermarked.png", accountID, uuid.NewString())
	if _, err := s.storage.PutObject(ctx, s.bucket, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), minio.PutObjectOptions{
		ContentType: "image/png",
	}); err != nil {
		return "", fmt.Errorf("upload watermarked image: %w", err)
	}

	return fmt.Sprintf("%s/%s/%s", s.publicURL, s.bucket, key), nil
}

// drawLabel composites the centered, 40%-opacity label onto the preview.
func (s *Service) drawLabel(dst *image.NRGBA) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.NRGBA{R: 255, G: 255, B: 255, A: 102}),
		Face: s.face,
	}

	width := d.MeasureString(s.label)
	bounds := dst.Bounds()
	d.Dot = fixed.Point26_6{
		X: (fixed.I(bounds.Dx()) - width) / 2,
		Y: fixed.I(bounds.Dy() / 2),
	}
	d.DrawString(s.label)
}
