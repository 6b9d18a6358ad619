package api

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/go-audio/wav"
	"github.com/gofiber/fiber/v3"
	"github.com/shamaton/msgpack/v2"

	"haruki-hca/config"
	"haruki-hca/utils/cricodecs/hca/hcatest"
	"haruki-hca/utils/keyring"
	harukiLogger "haruki-hca/utils/logger"
	"haruki-hca/utils/remote"
)

const testKey = 0x0030D9E8

type fakeFetcher struct {
	files map[string][]byte
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	data, ok := f.files[url]
	if !ok {
		return nil, fmt.Errorf("%w: %s", remote.ErrNotFound, url)
	}
	return data, nil
}

type fakeUploader struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    bool
}

func (u *fakeUploader) ObjectKey(relativePath string) string {
	return "decoded/" + relativePath
}

func (u *fakeUploader) UploadBytes(_ context.Context, key string, data []byte, _ string) error {
	if u.fail {
		return errors.New("bucket unavailable")
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.objects[key] = data
	return nil
}

type testServer struct {
	app      *fiber.App
	uploader *fakeUploader
}

func newTestServer(t *testing.T, cfg *config.Config, withUploader bool) *testServer {
	t.Helper()

	if cfg == nil {
		cfg = config.Default()
		cfg.Decode.KeyRules = []config.KeyRule{{Pattern: `^bgm_`, Key: fmt.Sprint(testKey)}}
	}
	keys, err := keyring.New(cfg.Decode)
	if err != nil {
		t.Fatalf("keyring.New() error = %v", err)
	}

	fetcher := &fakeFetcher{files: map[string][]byte{
		"https://cdn.example.com/sound/se_jump.hca?sig=1": hcatest.Stream(hcatest.Options{Frames: 2}),
		"https://cdn.example.com/sound/bgm_theme.hca":     hcatest.Stream(hcatest.Options{Frames: 2, Key: testKey}),
	}}

	s := &testServer{}
	var uploader Uploader
	if withUploader {
		s.uploader = &fakeUploader{objects: map[string][]byte{}}
		uploader = s.uploader
	}

	logger := harukiLogger.NewLogger("HarukiHCAAPI", "ERROR", io.Discard)
	s.app = NewApp(cfg, NewHandler(cfg, keys, fetcher, uploader, logger))
	return s
}

func (s *testServer) do(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()

	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	return resp, body
}

func post(target string, body []byte) *http.Request {
	return httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
}

func postJSON(target string, payload any) *http.Request {
	data, _ := sonic.Marshal(payload)
	req := post(target, data)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return req
}

func wavSamples(t *testing.T, data []byte) (channels, samples int) {
	t.Helper()

	dec := wav.NewDecoder(bytes.NewReader(data))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("FullPCMBuffer() error = %v", err)
	}
	return int(dec.NumChans), len(buf.Data)
}

func TestInfo(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil, false)
	stream := hcatest.Stream(hcatest.Options{Channels: 2, Frames: 4, Delay: 100, LoopFrames: &[2]int{1, 3}})

	resp, body := s.do(t, post("/hca/info", stream))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}

	var got struct {
		Info struct {
			ChannelCount uint `json:"channel_count"`
			BlockCount   uint `json:"block_count"`
			LoopEnabled  bool `json:"loop_enabled"`
		} `json:"info"`
		SampleCount      uint `json:"sample_count"`
		LoopStartSample  uint `json:"loop_start_sample"`
		HeaderChecksumOK bool `json:"header_checksum_ok"`
	}
	if err := sonic.Unmarshal(body, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v, body %s", err, body)
	}
	if got.Info.ChannelCount != 2 || got.Info.BlockCount != 4 || !got.Info.LoopEnabled {
		t.Errorf("info = %+v", got.Info)
	}
	if got.SampleCount != 4*1024-100 || got.LoopStartSample != 924 || !got.HeaderChecksumOK {
		t.Errorf("derived fields = %+v", got)
	}
}

func TestInfoMsgPack(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil, false)
	req := post("/hca/info", hcatest.Stream(hcatest.Options{Frames: 3}))
	req.Header.Set(fiber.HeaderAccept, mimeMsgPack)

	resp, body := s.do(t, req)
	if resp.StatusCode != fiber.StatusOK || resp.Header.Get(fiber.HeaderContentType) != mimeMsgPack {
		t.Fatalf("status = %d, content type %q", resp.StatusCode, resp.Header.Get(fiber.HeaderContentType))
	}

	var got infoResponse
	if err := msgpack.Unmarshal(body, &got); err != nil {
		t.Fatalf("msgpack.Unmarshal() error = %v", err)
	}
	if got.SampleCount != 3*1024 || got.Info == nil || got.Info.SamplingRate != 44100 {
		t.Errorf("response = %+v", got)
	}
}

func TestDecode(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil, false)
	keyed := hcatest.Stream(hcatest.Options{Frames: 2, Key: testKey})

	tests := []struct {
		name   string
		target string
		body   []byte
		want   int
	}{
		{"plain stereo", "/hca/decode", hcatest.Stream(hcatest.Options{Channels: 2, Frames: 2, Padding: 48}), 2 * (2048 - 48)},
		{"key from query", fmt.Sprintf("/hca/decode?key=0x%X", testKey), keyed, 2048},
		{"key from name rule", "/hca/decode?name=bgm_theme.hca", keyed, 2048},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resp, body := s.do(t, post(tt.target, tt.body))
			if resp.StatusCode != fiber.StatusOK {
				t.Fatalf("status = %d, body %s", resp.StatusCode, body)
			}
			if ct := resp.Header.Get(fiber.HeaderContentType); ct != "audio/wav" {
				t.Errorf("content type = %q", ct)
			}
			if skipped := resp.Header.Get("X-HCA-Skipped-Frames"); skipped != "0" {
				t.Errorf("skipped frames = %q, want 0", skipped)
			}
			if _, samples := wavSamples(t, body); samples != tt.want {
				t.Errorf("WAV holds %d samples, want %d", samples, tt.want)
			}
		})
	}
}

func TestDecodeMonoResampled(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil, false)
	resp, body := s.do(t, post("/hca/decode?rate=22050&mono=1", hcatest.Stream(hcatest.Options{Channels: 2, Frames: 2})))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	if len(body) < 44 || binary.LittleEndian.Uint16(body[22:24]) != 1 || binary.LittleEndian.Uint32(body[24:28]) != 22050 {
		t.Errorf("WAV header = % X", body[:min(len(body), 44)])
	}
}

func TestDecodeRejects(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil, false)
	stream := hcatest.Stream(hcatest.Options{})
	corrupt := append([]byte{}, stream...)
	corrupt[len(corrupt)-100] ^= 0xFF

	tests := []struct {
		name   string
		target string
		body   []byte
		want   int
	}{
		{"not hca", "/hca/decode", []byte("RIFF\x00\x00\x00\x00WAVEfmt "), fiber.StatusBadRequest},
		{"empty body", "/hca/decode", nil, fiber.StatusBadRequest},
		{"bad key", "/hca/decode?key=zz", stream, fiber.StatusBadRequest},
		{"bad rate", "/hca/decode?rate=fast", stream, fiber.StatusBadRequest},
		{"bad mono", "/hca/decode?mono=maybe", stream, fiber.StatusBadRequest},
		{"corrupt frame", "/hca/decode", corrupt, fiber.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resp, body := s.do(t, post(tt.target, tt.body))
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d, body %s", resp.StatusCode, tt.want, body)
			}
		})
	}
}

func TestDecodeSkipsCorruptFrames(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Decode.SkipCorruptFrames = true
	s := newTestServer(t, cfg, false)

	stream := hcatest.Stream(hcatest.Options{Frames: 3})
	stream[len(stream)-100] ^= 0xFF

	resp, body := s.do(t, post("/hca/decode", stream))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	if skipped := resp.Header.Get("X-HCA-Skipped-Frames"); skipped != "1" {
		t.Errorf("skipped frames = %q, want 1", skipped)
	}
}

func TestAuthorization(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Backend.EnableAuthorization = true
	cfg.Backend.AcceptUserAgentPrefix = "HarukiClient/"
	cfg.Backend.AcceptAuthorizationToken = "secret"
	s := newTestServer(t, cfg, false)
	stream := hcatest.Stream(hcatest.Options{})

	tests := []struct {
		name      string
		userAgent string
		auth      string
		want      int
	}{
		{"accepted", "HarukiClient/1.0", "Bearer secret", fiber.StatusOK},
		{"wrong user agent", "curl/8.0", "Bearer secret", fiber.StatusUnauthorized},
		{"missing token", "HarukiClient/1.0", "", fiber.StatusUnauthorized},
		{"wrong token", "HarukiClient/1.0", "Bearer other", fiber.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := post("/hca/info", stream)
			req.Header.Set(fiber.HeaderUserAgent, tt.userAgent)
			if tt.auth != "" {
				req.Header.Set(fiber.HeaderAuthorization, tt.auth)
			}
			if resp, body := s.do(t, req); resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d, body %s", resp.StatusCode, tt.want, body)
			}
		})
	}
}

func TestDecodeRemote(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil, true)

	resp, body := s.do(t, postJSON("/hca/decode_remote", map[string]any{
		"url": "https://cdn.example.com/sound/se_jump.hca?sig=1",
	}))
	if resp.StatusCode != fiber.StatusOK || resp.Header.Get(fiber.HeaderContentType) != "audio/wav" {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	if _, samples := wavSamples(t, body); samples != 2048 {
		t.Errorf("WAV holds %d samples, want 2048", samples)
	}

	resp, body = s.do(t, postJSON("/hca/decode_remote", map[string]any{
		"url":    "https://cdn.example.com/sound/bgm_theme.hca",
		"upload": true,
	}))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("upload status = %d, body %s", resp.StatusCode, body)
	}
	var got struct {
		Object string `json:"object"`
	}
	if err := sonic.Unmarshal(body, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got.Object != "decoded/bgm_theme.wav" {
		t.Errorf("object = %q, want decoded/bgm_theme.wav", got.Object)
	}
	stored, ok := s.uploader.objects["decoded/bgm_theme.wav"]
	if !ok {
		t.Fatalf("uploader holds %d objects, none at decoded/bgm_theme.wav", len(s.uploader.objects))
	}
	if _, samples := wavSamples(t, stored); samples != 2048 {
		t.Errorf("uploaded WAV holds %d samples, want 2048", samples)
	}
}

func TestDecodeRemoteRejects(t *testing.T) {
	t.Parallel()

	withoutStorage := newTestServer(t, nil, false)
	failingStorage := newTestServer(t, nil, true)
	failingStorage.uploader.fail = true

	tests := []struct {
		name    string
		server  *testServer
		payload any
		want    int
	}{
		{"missing url", withoutStorage, map[string]any{"name": "x.hca"}, fiber.StatusBadRequest},
		{"not found", withoutStorage, map[string]any{"url": "https://cdn.example.com/none.hca"}, fiber.StatusNotFound},
		{"storage disabled", withoutStorage, map[string]any{"url": "https://cdn.example.com/sound/bgm_theme.hca", "upload": true}, fiber.StatusServiceUnavailable},
		{"upload fails", failingStorage, map[string]any{"url": "https://cdn.example.com/sound/bgm_theme.hca", "upload": true}, fiber.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if resp, body := tt.server.do(t, postJSON("/hca/decode_remote", tt.payload)); resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d, body %s", resp.StatusCode, tt.want, body)
			}
		})
	}

	req := post("/hca/decode_remote", []byte("{not json"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if resp, _ := withoutStorage.do(t, req); resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("malformed JSON status = %d, want 400", resp.StatusCode)
	}
}

func TestTestKey(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil, false)
	keyed := hcatest.Stream(hcatest.Options{Frames: 5, Key: testKey})

	tests := []struct {
		name      string
		target    string
		body      []byte
		wantFound bool
		wantKey   string
	}{
		{"query keys", fmt.Sprintf("/hca/test_key?keys=0x1111,0x%X", testKey), keyed, true, fmt.Sprintf("0x%016X", testKey)},
		{"keyring candidates", "/hca/test_key", keyed, true, fmt.Sprintf("0x%016X", testKey)},
		{"silent stream", "/hca/test_key?keys=1,2", hcatest.Stream(hcatest.Options{Frames: 3, Silent: true}), false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resp, body := s.do(t, post(tt.target, tt.body))
			if resp.StatusCode != fiber.StatusOK {
				t.Fatalf("status = %d, body %s", resp.StatusCode, body)
			}

			var got struct {
				Found bool   `json:"found"`
				Key   string `json:"key"`
				Score int    `json:"score"`
			}
			if err := sonic.Unmarshal(body, &got); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if got.Found != tt.wantFound || got.Key != tt.wantKey {
				t.Errorf("response = %s, want found %v key %q", body, tt.wantFound, tt.wantKey)
			}
			if tt.wantFound && got.Score != 1 {
				t.Errorf("score = %d, want 1", got.Score)
			}
		})
	}

	if resp, _ := s.do(t, post("/hca/test_key?keys=0x1,nope", keyed)); resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("invalid key list status = %d, want 400", resp.StatusCode)
	}
}
