package watermark

import (
	"context"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tuliu-backend/services/tier"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// newTestService builds a service without object storage. Tests on the trial
// path stop before the upload by making the image fetch fail.
func newTestService(t *testing.T) *Service {
	t.Helper()

	fnt, err := opentype.Parse(goregular.TTF)
	require.NoError(t, err)
	face, err := opentype.NewFace(fnt, &opentype.FaceOptions{
		Size:    48,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	require.NoError(t, err)

	return &Service{
		httpClient: &http.Client{Timeout: time.Second},
		face:       face,
		bucket:     "images",
		publicURL:  "https://cdn.example.com",
		label:      "Tuliu Preview",
		size:       720,
	}
}

func TestApplyPaidTiersPassThrough(t *testing.T) {
	s := newTestService(t)

	for _, tr := range []tier.Tier{tier.Standard, tier.HD, tier.Ultra} {
		url := s.Apply(context.Background(), "https://images.example.com/raw.png", tr, "acc-1")
		require.Equal(t, "https://images.example.com/raw.png", url)
	}
}

func TestApplyFallsBackWhenFetchFails(t *testing.T) {
	s := newTestService(t)

	url := s.Apply(context.Background(), "http://127.0.0.1:1/raw.png", tier.Trial, "acc-1")
	require.Equal(t, "http://127.0.0.1:1/raw.png", url)
}

func TestApplyFallsBackOnBadStatus(t *testing.T) {
	s := newTestService(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)

	url := s.Apply(context.Background(), srv.URL+"/raw.png", tier.Trial, "acc-1")
	require.Equal(t, srv.URL+"/raw.png", url)
}

func TestApplyFallsBackOnUndecodableImage(t *testing.T) {
	s := newTestService(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not an image"))
	}))
	t.Cleanup(srv.Close)

	url := s.Apply(context.Background(), srv.URL+"/raw.png", tier.Trial, "acc-1")
	require.Equal(t, srv.URL+"/raw.png", url)
}

func TestDrawLabelWritesPixels(t *testing.T) {
	s := newTestService(t)

	dst := image.NewNRGBA(image.Rect(0, 0, 720, 720))
	s.drawLabel(dst)

	var touched bool
	for i := 3; i < len(dst.Pix); i += 4 {
		if dst.Pix[i] != 0 {
			touched = true
			break
		}
	}
	require.True(t, touched)
}
