package exporter

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"haruki-hca/utils/cricodecs/hca"
	"haruki-hca/utils/cricodecs/usm"
)

// ExportUSM decodes the HCA audio of the movie usmFile into outputDir, named after the
// stream file name the movie records. Movies with several audio channels get a
// _<channel> suffix per stream. The video stream and non-HCA audio are skipped.
func ExportUSM(usmFile string, outputDir string, opts Options) ([]string, error) {
	data, err := os.ReadFile(usmFile)
	if err != nil {
		return nil, err
	}
	var movieKey uint64
	if opts.Keyring != nil {
		movieKey = opts.Keyring.USMKey()
	}
	movie, err := usm.Demux(data, movieKey)
	if err != nil {
		return nil, fmt.Errorf("failed to demux USM: %w", err)
	}

	baseName := unsafeNameChars.Replace(movie.Name())
	if baseName == "" {
		baseName = strings.TrimSuffix(filepath.Base(usmFile), filepath.Ext(usmFile))
	}

	key := opts.resolveKey(usmFile)
	var exported []string
	var firstErr error
	for _, s := range movie.Audio {
		if !s.IsHCA() {
			if opts.Logger != nil {
				opts.Logger.Debugf("%s: audio channel %d has codec %d, skipped", usmFile, s.Channel, s.Codec)
			}
			continue
		}
		name := baseName
		if len(movie.Audio) > 1 {
			name = fmt.Sprintf("%s_%d", baseName, s.Channel)
		}

		decoder, err := hca.NewHCADecoderFromReader(bytes.NewReader(s.Data))
		if err == nil {
			decoder.SetEncryptionKey(key.Code, key.Subkey)
			var output string
			output, err = exportStream(decoder, usmFile, outputDir, name, opts)
			if err == nil {
				exported = append(exported, output)
				continue
			}
		}
		if firstErr == nil {
			firstErr = fmt.Errorf("audio channel %d: %w", s.Channel, err)
		}
	}
	return exported, firstErr
}
