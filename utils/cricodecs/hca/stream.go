package hca

import (
	"errors"
	"fmt"
	"io"
	"os"

	harukiLogger "haruki-hca/utils/logger"
)

// maxHeaderSize bounds the header read before the prolog is trusted.
const maxHeaderSize = 0x1000

// HCADecoder wraps the low-level decoder with frame reading from a file or stream.
// It implements the audpbx audio.Source interface.
type HCADecoder struct {
	file   *os.File
	reader io.ReadSeeker
	info   *HCAInfo
	handle *ClHCA
	logger *harukiLogger.Logger

	buf     []byte
	fbuf    []float32
	pending []float32

	currentDelay  int
	currentBlock  uint
	samplesLeft   uint
	skipCorrupt   bool
	skippedFrames int
}

// KeyTest holds parameters and results for testing HCA decryption keys.
type KeyTest struct {
	Key         uint64
	Subkey      uint64
	StartOffset uint
	BestScore   int
	BestKey     uint64
}

const (
	hcaKeyScoreScale    = 10
	hcaKeyMaxSkipBlanks = 1200
	hcaKeyMinTestFrames = 3
	hcaKeyMaxTestFrames = 7
	hcaKeyMaxFrameScore = 600
	hcaKeyMaxTotalScore = hcaKeyMaxTestFrames * 50 * hcaKeyScoreScale
)

// NewHCADecoder opens an HCA file.
func NewHCADecoder(filename string) (*HCADecoder, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	decoder, err := NewHCADecoderFromReader(file)
	if err != nil {
		_ = file.Close()
		return nil, err
	}

	decoder.file = file
	return decoder, nil
}

// NewHCADecoderFromReader reads the header from reader and prepares frame decoding.
func NewHCADecoderFromReader(reader io.ReadSeeker) (*HCADecoder, error) {
	prolog := make([]byte, 0x08)
	if _, err := io.ReadFull(reader, prolog); err != nil {
		return nil, fmt.Errorf("failed to read HCA prolog: %w", err)
	}

	headerSize, err := IsOurFile(prolog)
	if err != nil {
		return nil, err
	}
	if headerSize > maxHeaderSize {
		return nil, fmt.Errorf("%w: header size %d", ErrHeaderInvalid, headerSize)
	}

	fullHeader := make([]byte, headerSize)
	if _, err := reader.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, fullHeader); err != nil {
		return nil, fmt.Errorf("failed to read HCA header: %w", err)
	}

	decoder := &HCADecoder{
		reader: reader,
		handle: NewClHCA(),
	}

	if err := decoder.handle.DecodeHeader(fullHeader); err != nil {
		return nil, fmt.Errorf("failed to decode header: %w", err)
	}

	info, err := decoder.handle.GetInfo()
	if err != nil {
		return nil, err
	}
	decoder.info = info

	decoder.buf = make([]byte, info.BlockSize)
	decoder.fbuf = make([]float32, info.ChannelCount*info.SamplesPerBlock)

	decoder.Reset()

	return decoder, nil
}

// SetLogger attaches a logger for skipped-frame reports.
func (d *HCADecoder) SetLogger(l *harukiLogger.Logger) {
	d.logger = l
}

// SetSkipCorruptFrames makes frames failing sync or checksum decode as silence instead of an error.
func (d *HCADecoder) SetSkipCorruptFrames(skip bool) {
	d.skipCorrupt = skip
}

// SkippedFrames returns how many frames were replaced by silence since the last Reset.
func (d *HCADecoder) SkippedFrames() int {
	return d.skippedFrames
}

// Reset rewinds to the first playable sample.
func (d *HCADecoder) Reset() {
	d.handle.DecodeReset()
	d.currentBlock = 0
	d.currentDelay = int(d.info.EncoderDelay)
	d.samplesLeft = d.info.SampleCount()
	d.pending = nil
	d.skippedFrames = 0
}

// Close closes the file opened by NewHCADecoder.
func (d *HCADecoder) Close() error {
	if d.file != nil {
		return d.file.Close()
	}
	return nil
}

// Info returns the stream properties.
func (d *HCADecoder) Info() *HCAInfo {
	return d.info
}

// SampleRate implements audio.Source.
func (d *HCADecoder) SampleRate() int { return int(d.info.SamplingRate) }

// Channels implements audio.Source.
func (d *HCADecoder) Channels() int { return int(d.info.ChannelCount) }

// BufSize implements audio.Source; it is one frame of interleaved samples.
func (d *HCADecoder) BufSize() int { return len(d.fbuf) }

// MixKey combines a key with an AWB subkey the way CRI tools do.
func MixKey(keycode, subkey uint64) uint64 {
	if subkey != 0 {
		keycode *= (subkey << 16) | (uint64(^uint16(subkey)) + 2)
	}
	return keycode
}

// SetEncryptionKey sets the decryption key, mixed with subkey when it is non-zero.
func (d *HCADecoder) SetEncryptionKey(keycode, subkey uint64) {
	d.handle.SetKey(MixKey(keycode, subkey))
}

func (d *HCADecoder) readPacket() error {
	if d.currentBlock >= d.info.BlockCount {
		return io.EOF
	}

	offset := int64(d.info.HeaderSize + d.currentBlock*d.info.BlockSize)
	if _, err := d.reader.Seek(offset, io.SeekStart); err != nil {
		return err
	}

	if _, err := io.ReadFull(d.reader, d.buf); err != nil {
		return fmt.Errorf("failed to read frame %d: %w", d.currentBlock, err)
	}

	d.currentBlock++
	return nil
}

// DecodeFrame decodes the next frame and returns its interleaved samples and the
// number of samples per channel. Encoder delay and padding are trimmed, so a
// frame may return fewer than SamplesPerFrame samples. At the end it returns io.EOF.
func (d *HCADecoder) DecodeFrame() ([]float32, int, error) {
	channels := int(d.info.ChannelCount)

	for {
		if d.samplesLeft == 0 {
			return nil, 0, io.EOF
		}
		if err := d.readPacket(); err != nil {
			return nil, 0, err
		}

		if err := d.handle.DecodeBlock(d.buf); err != nil {
			if !d.skipCorrupt || !(errors.Is(err, ErrSync) || errors.Is(err, ErrChecksum)) {
				return nil, 0, fmt.Errorf("failed to decode frame %d: %w", d.currentBlock-1, err)
			}
			d.skippedFrames++
			if d.logger != nil {
				d.logger.Debugf("frame %d replaced by silence: %v", d.currentBlock-1, err)
			}
			clear(d.fbuf)
		} else if err := d.handle.ReadSamples(d.fbuf); err != nil {
			return nil, 0, err
		}

		discard := 0
		if d.currentDelay > 0 {
			discard = min(d.currentDelay, int(d.info.SamplesPerBlock))
			d.currentDelay -= discard
		}

		samples := int(d.info.SamplesPerBlock) - discard
		if samples == 0 {
			continue
		}
		samples = min(samples, int(d.samplesLeft))
		d.samplesLeft -= uint(samples)

		start := discard * channels
		return d.fbuf[start : start+samples*channels], samples, nil
	}
}

// DecodeAll decodes the stream from the start and returns every interleaved sample.
func (d *HCADecoder) DecodeAll() ([]float32, error) {
	d.Reset()

	allSamples := make([]float32, 0, int(d.info.SampleCount())*int(d.info.ChannelCount))

	for {
		samples, _, err := d.DecodeFrame()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		allSamples = append(allSamples, samples...)
	}

	return allSamples, nil
}

// DecodeToPCM16 decodes the stream from the start as interleaved 16-bit PCM.
func (d *HCADecoder) DecodeToPCM16() ([]int16, error) {
	samples, err := d.DecodeAll()
	if err != nil {
		return nil, err
	}

	pcm := make([]int16, len(samples))
	for i, f := range samples {
		pcm[i] = pcm16(f)
	}
	return pcm, nil
}

// ReadSamples implements audio.Source, filling dst with whole interleaved sample frames.
func (d *HCADecoder) ReadSamples(dst []float32) (int, error) {
	channels := int(d.info.ChannelCount)
	n := 0

	for n+channels <= len(dst) {
		if len(d.pending) == 0 {
			samples, _, err := d.DecodeFrame()
			if err == io.EOF {
				break
			}
			if err != nil {
				return n, err
			}
			d.pending = samples
		}

		count := min(len(d.pending), len(dst)-n)
		count -= count % channels
		copy(dst[n:], d.pending[:count])
		d.pending = d.pending[count:]
		n += count
	}

	if n == 0 && len(dst) >= channels {
		return 0, io.EOF
	}
	return n, nil
}

// Seek positions the decoder so the next sample returned is sample (counted from the
// first playable sample). Decoder state is reset, as when starting a loop.
func (d *HCADecoder) Seek(sample uint) error {
	if sample > d.info.SampleCount() {
		return fmt.Errorf("seek to sample %d past %d samples", sample, d.info.SampleCount())
	}

	target := sample + d.info.EncoderDelay

	d.handle.DecodeReset()
	d.currentBlock = target / d.info.SamplesPerBlock
	d.currentDelay = int(target % d.info.SamplesPerBlock)
	d.samplesLeft = d.info.SampleCount() - sample
	d.pending = nil
	return nil
}

// SeekLoopStart positions the decoder at the loop start of a looping stream.
func (d *HCADecoder) SeekLoopStart() error {
	if !d.info.LoopEnabled {
		return errors.New("stream has no loop")
	}
	return d.Seek(d.info.LoopStartSample())
}

// TestKey scores a candidate key and records it in kt when it beats kt.BestScore.
func (d *HCADecoder) TestKey(kt *KeyTest) {
	score := d.testHCAScore(kt)

	if score < 0 {
		return
	}

	if kt.BestScore <= 0 || (score < kt.BestScore && score > 0) {
		kt.BestScore = score
		kt.BestKey = kt.Key
	}
}

// testHCAScore decodes up to hcaKeyMaxTestFrames non-blank frames with kt's key.
// It returns <0 for a wrong key, 0 for silence only and >0 otherwise, 1 being the best.
func (d *HCADecoder) testHCAScore(kt *KeyTest) int {
	testFrames := 0
	currentFrame := uint(0)
	blankFrames := 0
	totalScore := 0

	offset := kt.StartOffset
	if offset == 0 {
		offset = d.info.HeaderSize
	}

	d.SetEncryptionKey(kt.Key, kt.Subkey)

	for testFrames < hcaKeyMaxTestFrames && currentFrame < d.info.BlockCount {
		if _, err := d.reader.Seek(int64(offset), io.SeekStart); err != nil {
			break
		}

		if _, err := io.ReadFull(d.reader, d.buf); err != nil {
			break
		}

		score := d.handle.TestBlock(d.buf)

		// remember the first non-blank frame for the next key
		if kt.StartOffset == 0 && score != 0 {
			kt.StartOffset = offset
		}

		offset += d.info.BlockSize

		if score < 0 || score > hcaKeyMaxFrameScore {
			totalScore = -1
			break
		}

		currentFrame++

		if score == 0 && blankFrames < hcaKeyMaxSkipBlanks {
			blankFrames++
			continue
		}

		testFrames++

		switch score {
		case 1:
		case 0:
			score = 3 * hcaKeyScoreScale
		default:
			score *= hcaKeyScoreScale
		}

		totalScore += score

		if totalScore > hcaKeyMaxTotalScore {
			break
		}
	}

	if testFrames > hcaKeyMinTestFrames && totalScore > 0 && totalScore <= testFrames {
		totalScore = 1
	}

	d.handle.DecodeReset()
	return totalScore
}

// FindKey tests every candidate with subkey and returns the best scoring key.
// ok is false when no candidate decodes the stream.
func (d *HCADecoder) FindKey(candidates []uint64, subkey uint64) (key uint64, score int, ok bool) {
	best := &KeyTest{Subkey: subkey, BestScore: -1}

	for _, candidate := range candidates {
		best.Key = candidate
		d.TestKey(best)
		if best.BestScore == 1 {
			break
		}
	}

	if best.BestScore <= 0 {
		return 0, best.BestScore, false
	}

	d.SetEncryptionKey(best.BestKey, subkey)
	d.Reset()
	return best.BestKey, best.BestScore, true
}
