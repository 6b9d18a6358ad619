package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/shamaton/msgpack/v2"

	"haruki-hca/config"
	"haruki-hca/utils"
	"haruki-hca/utils/cricodecs/hca"
	"haruki-hca/utils/keyring"
	harukiLogger "haruki-hca/utils/logger"
	"haruki-hca/utils/remote"
)

const mimeMsgPack = "application/x-msgpack"

var errInvalidKey = errors.New("invalid key")

// Fetcher downloads remote HCA files.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Uploader stores decoded files in object storage.
type Uploader interface {
	ObjectKey(relativePath string) string
	UploadBytes(ctx context.Context, key string, data []byte, contentType string) error
}

type Handler struct {
	cfg      *config.Config
	keys     *keyring.Keyring
	fetcher  Fetcher
	uploader Uploader
	logger   *harukiLogger.Logger
}

// NewHandler builds the route handlers. uploader may be nil when storage is disabled.
func NewHandler(cfg *config.Config, keys *keyring.Keyring, fetcher Fetcher, uploader Uploader, logger *harukiLogger.Logger) *Handler {
	if logger == nil {
		logger = harukiLogger.NewLogger("HarukiHCAAPI", cfg.Backend.LogLevel, nil)
	}
	if keys == nil {
		keys, _ = keyring.New(config.DecodeConfig{})
	}
	return &Handler{cfg: cfg, keys: keys, fetcher: fetcher, uploader: uploader, logger: logger}
}

// RegisterRoutes registers all API routes
func RegisterRoutes(app *fiber.App, h *Handler) {
	group := app.Group("/hca", h.authorize)
	group.Post("/info", h.infoHandler)
	group.Post("/decode", h.decodeHandler)
	group.Post("/decode_remote", h.decodeRemoteHandler)
	group.Post("/test_key", h.testKeyHandler)
}

func (h *Handler) authorize(c fiber.Ctx) error {
	backend := h.cfg.Backend
	if !backend.EnableAuthorization {
		return c.Next()
	}

	if backend.AcceptUserAgentPrefix != "" {
		if !strings.HasPrefix(c.Get(fiber.HeaderUserAgent), backend.AcceptUserAgentPrefix) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Invalid User-Agent",
			})
		}
	}

	if backend.AcceptAuthorizationToken != "" {
		if c.Get(fiber.HeaderAuthorization) != "Bearer "+backend.AcceptAuthorizationToken {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Invalid authorization token",
			})
		}
	}
	return c.Next()
}

type infoResponse struct {
	Info             *hca.HCAInfo `json:"info" msgpack:"info"`
	SampleCount      uint         `json:"sample_count" msgpack:"sample_count"`
	LoopStartSample  uint         `json:"loop_start_sample,omitempty" msgpack:"loop_start_sample"`
	LoopEndSample    uint         `json:"loop_end_sample,omitempty" msgpack:"loop_end_sample"`
	HeaderChecksumOK bool         `json:"header_checksum_ok" msgpack:"header_checksum_ok"`
}

func (h *Handler) infoHandler(c fiber.Ctx) error {
	body := c.Body()
	decoder, err := hca.NewHCADecoderFromReader(bytes.NewReader(body))
	if err != nil {
		return h.decodeError(c, err)
	}

	info := decoder.Info()
	resp := infoResponse{
		Info:             info,
		SampleCount:      info.SampleCount(),
		HeaderChecksumOK: hca.HeaderChecksumOK(body),
	}
	if info.LoopEnabled {
		resp.LoopStartSample = info.LoopStartSample()
		resp.LoopEndSample = info.LoopEndSample()
	}

	if c.Accepts(fiber.MIMEApplicationJSON, mimeMsgPack) == mimeMsgPack {
		data, err := msgpack.Marshal(resp)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"message": "Failed to encode response",
				"error":   err.Error(),
			})
		}
		c.Set(fiber.HeaderContentType, mimeMsgPack)
		return c.Send(data)
	}
	return c.JSON(resp)
}

// decodeOptions are the per-request decode settings.
type decodeOptions struct {
	Key    string `json:"key,omitempty"`
	Subkey string `json:"subkey,omitempty"`
	Name   string `json:"name,omitempty"`
	Rate   int    `json:"rate,omitempty"`
	Mono   bool   `json:"mono,omitempty"`
}

func queryDecodeOptions(c fiber.Ctx) (decodeOptions, error) {
	opts := decodeOptions{
		Key:    c.Query("key"),
		Subkey: c.Query("subkey"),
		Name:   c.Query("name"),
	}
	if rate := c.Query("rate"); rate != "" {
		v, err := strconv.Atoi(rate)
		if err != nil || v < 0 {
			return opts, fmt.Errorf("invalid rate %q", rate)
		}
		opts.Rate = v
	}
	if mono := c.Query("mono"); mono != "" {
		v, err := strconv.ParseBool(mono)
		if err != nil {
			return opts, fmt.Errorf("invalid mono %q", mono)
		}
		opts.Mono = v
	}
	return opts, nil
}

// resolveKey prefers an explicit key, then a keyring rule for the name.
func (h *Handler) resolveKey(opts decodeOptions) (keyring.Key, error) {
	if opts.Key != "" {
		code, err := keyring.ParseKey(opts.Key)
		if err != nil {
			return keyring.Key{}, fmt.Errorf("%w: %v", errInvalidKey, err)
		}
		subkey, err := keyring.ParseKey(opts.Subkey)
		if err != nil {
			return keyring.Key{}, fmt.Errorf("%w: %v", errInvalidKey, err)
		}
		return keyring.Key{Code: code, Subkey: subkey}, nil
	}
	key, _ := h.keys.Resolve(opts.Name)
	return key, nil
}

// decodeWav decodes data to a WAV file and returns it with the number of frames replaced by silence.
func (h *Handler) decodeWav(data []byte, opts decodeOptions) ([]byte, int, error) {
	key, err := h.resolveKey(opts)
	if err != nil {
		return nil, 0, err
	}

	decoder, err := hca.NewHCADecoderFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, 0, err
	}
	decoder.SetLogger(h.logger)
	decoder.SetSkipCorruptFrames(h.cfg.Decode.SkipCorruptFrames)
	decoder.SetEncryptionKey(key.Code, key.Subkey)

	if opts.Mono || opts.Rate > 0 {
		var out bytes.Buffer
		if err := decoder.DecodeToMonoWav(&out, opts.Rate); err != nil {
			return nil, 0, err
		}
		return out.Bytes(), decoder.SkippedFrames(), nil
	}

	info := decoder.Info()
	out := utils.NewWriteSeekBuffer(44 + int(info.SampleCount()*info.ChannelCount*2))
	if err := decoder.DecodeToWav(out); err != nil {
		return nil, 0, err
	}
	return out.Bytes(), decoder.SkippedFrames(), nil
}

func sendWav(c fiber.Ctx, wav []byte, skipped int) error {
	c.Set(fiber.HeaderContentType, "audio/wav")
	c.Set("X-HCA-Skipped-Frames", strconv.Itoa(skipped))
	return c.Send(wav)
}

func (h *Handler) decodeHandler(c fiber.Ctx) error {
	opts, err := queryDecodeOptions(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid query",
			"error":   err.Error(),
		})
	}

	wav, skipped, err := h.decodeWav(c.Body(), opts)
	if err != nil {
		return h.decodeError(c, err)
	}
	return sendWav(c, wav, skipped)
}

type decodeRemotePayload struct {
	decodeOptions
	URL    string `json:"url"`
	Upload bool   `json:"upload,omitempty"`
}

func (h *Handler) decodeRemoteHandler(c fiber.Ctx) error {
	var payload decodeRemotePayload
	if err := c.Bind().Body(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request payload",
			"error":   err.Error(),
		})
	}
	if payload.URL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Missing url",
		})
	}
	if payload.Upload && h.uploader == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"message": "Remote storage is not enabled",
		})
	}

	name := payload.Name
	if name == "" {
		name = path.Base(strings.SplitN(payload.URL, "?", 2)[0])
		payload.Name = name
	}

	data, err := h.fetcher.Fetch(c.Context(), payload.URL)
	if err != nil {
		h.logger.Warnf("failed to fetch %s: %v", payload.URL, err)
		status := fiber.StatusBadGateway
		if errors.Is(err, remote.ErrNotFound) {
			status = fiber.StatusNotFound
		}
		return c.Status(status).JSON(fiber.Map{
			"message": "Failed to fetch remote file",
			"error":   err.Error(),
		})
	}

	wav, skipped, err := h.decodeWav(data, payload.decodeOptions)
	if err != nil {
		return h.decodeError(c, err)
	}
	if !payload.Upload {
		return sendWav(c, wav, skipped)
	}

	key := h.uploader.ObjectKey(strings.TrimSuffix(name, path.Ext(name)) + ".wav")
	if err := h.uploader.UploadBytes(c.Context(), key, wav, "audio/wav"); err != nil {
		h.logger.Errorf("failed to upload %s: %v", key, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"message": "Failed to upload decoded file",
			"error":   err.Error(),
		})
	}
	h.logger.Infof("decoded %s and uploaded it to %s", payload.URL, key)
	return c.JSON(fiber.Map{
		"message":        "Decoded file uploaded",
		"object":         key,
		"bytes":          len(wav),
		"skipped_frames": skipped,
	})
}

func parseKeyList(s string) ([]uint64, error) {
	var keys []uint64
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		k, err := keyring.ParseKey(part)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func (h *Handler) testKeyHandler(c fiber.Ctx) error {
	candidates, err := parseKeyList(c.Query("keys"))
	if err == nil && len(candidates) == 0 {
		candidates = h.keys.Candidates()
	}
	var subkey uint64
	if err == nil {
		subkey, err = keyring.ParseKey(c.Query("subkey"))
	}
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid query",
			"error":   err.Error(),
		})
	}

	decoder, err := hca.NewHCADecoderFromReader(bytes.NewReader(c.Body()))
	if err != nil {
		return h.decodeError(c, err)
	}

	key, score, ok := decoder.FindKey(candidates, subkey)
	if !ok {
		return c.JSON(fiber.Map{
			"found":  false,
			"tested": len(candidates),
		})
	}
	return c.JSON(fiber.Map{
		"found":  true,
		"key":    fmt.Sprintf("0x%016X", key),
		"score":  score,
		"tested": len(candidates),
	})
}

func (h *Handler) decodeError(c fiber.Ctx, err error) error {
	status := fiber.StatusUnprocessableEntity
	message := "Failed to decode HCA stream"
	switch {
	case errors.Is(err, errInvalidKey):
		status = fiber.StatusBadRequest
		message = "Invalid key"
	case errors.Is(err, hca.ErrHeaderInvalid), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		status = fiber.StatusBadRequest
		message = "Invalid HCA header"
	}
	h.logger.Debugf("%s: %v", message, err)
	return c.Status(status).JSON(fiber.Map{
		"message": message,
		"error":   err.Error(),
	})
}
