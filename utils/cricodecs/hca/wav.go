package hca

import (
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/ik5/audpbx"
	pbxwav "github.com/ik5/audpbx/formats/wav"
)

// DecodeToWav decodes the entire stream to a 16-bit PCM WAV file.
func (d *HCADecoder) DecodeToWav(w io.WriteSeeker) error {
	d.Reset()

	channels := int(d.info.ChannelCount)
	encoder := wav.NewEncoder(w, int(d.info.SamplingRate), 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: channels,
			SampleRate:  int(d.info.SamplingRate),
		},
		Data:           make([]int, 0, len(d.fbuf)),
		SourceBitDepth: 16,
	}

	for {
		samples, _, err := d.DecodeFrame()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		buf.Data = buf.Data[:0]
		for _, f := range samples {
			buf.Data = append(buf.Data, int(pcm16(f)))
		}
		if err := encoder.Write(buf); err != nil {
			return fmt.Errorf("failed to write WAV samples: %w", err)
		}
	}

	if err := encoder.Close(); err != nil {
		return fmt.Errorf("failed to finish WAV file: %w", err)
	}
	return nil
}

// DecodeToMonoWav decodes the entire stream, resamples it to rate and mixes it down to
// a mono 16-bit PCM WAV file. A rate of 0 keeps the stream's sample rate.
func (d *HCADecoder) DecodeToMonoWav(w io.Writer, rate int) error {
	d.Reset()

	if rate <= 0 {
		rate = int(d.info.SamplingRate)
	}

	pcm, outRate, err := audpbx.ResampleToMono16(d, rate, d.BufSize())
	if err != nil {
		return fmt.Errorf("failed to resample: %w", err)
	}

	if err := pbxwav.WriteWAV16(w, outRate, pcm); err != nil {
		return fmt.Errorf("failed to write WAV file: %w", err)
	}
	return nil
}
