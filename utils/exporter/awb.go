package exporter

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"haruki-hca/utils/cricodecs/awb"
	"haruki-hca/utils/cricodecs/hca"
)

// ExportAWB decodes every HCA stream in awbFile into outputDir as <archive>_<cue id>.
// The keyring key for the archive name is mixed with the archive subkey. Entries that
// are not HCA streams are skipped. It returns the files written; err reports the
// first entry that failed, after all entries were tried.
func ExportAWB(awbFile string, outputDir string, opts Options) ([]string, error) {
	f, err := os.Open(awbFile)
	if err != nil {
		return nil, err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	archive, err := awb.Open(f, st.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open AWB archive: %w", err)
	}

	key := opts.resolveKey(awbFile)
	subkey := key.Subkey
	if archive.Subkey != 0 {
		subkey = uint64(archive.Subkey)
	}

	baseName := strings.TrimSuffix(filepath.Base(awbFile), filepath.Ext(awbFile))
	var exported []string
	var firstErr error
	for i, entry := range archive.Entries {
		r, err := archive.Entry(i)
		if err != nil {
			return exported, err
		}
		data, err := io.ReadAll(r)
		if err != nil {
			return exported, fmt.Errorf("failed to read AWB entry %d: %w", entry.ID, err)
		}
		if _, err := hca.IsOurFile(data); err != nil {
			if opts.Logger != nil {
				opts.Logger.Debugf("%s: entry %d is not an HCA stream, skipped", awbFile, entry.ID)
			}
			continue
		}

		decoder, err := hca.NewHCADecoderFromReader(bytes.NewReader(data))
		if err == nil {
			decoder.SetEncryptionKey(key.Code, subkey)
			var output string
			output, err = exportStream(decoder, awbFile, outputDir, fmt.Sprintf("%s_%d", baseName, entry.ID), opts)
			if err == nil {
				exported = append(exported, output)
				continue
			}
		}
		if firstErr == nil {
			firstErr = fmt.Errorf("AWB entry %d: %w", entry.ID, err)
		}
	}
	return exported, firstErr
}
