package exporter

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"haruki-hca/utils/cricodecs/acb"
	"haruki-hca/utils/cricodecs/awb"
	"haruki-hca/utils/cricodecs/hca"
)

var unsafeNameChars = strings.NewReplacer("/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_")

// ExportACB decodes every HCA track of the cue sheet acbFile into outputDir, named
// after its cue. Streamed tracks are read from the .awb banks next to acbFile.
func ExportACB(acbFile string, outputDir string, opts Options) ([]string, error) {
	data, err := os.ReadFile(acbFile)
	if err != nil {
		return nil, err
	}
	sheet, err := acb.Open(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ACB: %w", err)
	}

	streams := map[int]*awb.Archive{}
	var files []*os.File
	defer func() {
		for _, f := range files {
			_ = f.Close()
		}
	}()
	openStream := func(port int) (*awb.Archive, error) {
		if a, ok := streams[port]; ok {
			return a, nil
		}
		name := strings.TrimSuffix(filepath.Base(acbFile), filepath.Ext(acbFile))
		if port < len(sheet.Streams) && sheet.Streams[port] != "" {
			name = sheet.Streams[port]
		}
		f, err := os.Open(filepath.Join(filepath.Dir(acbFile), name+".awb"))
		if err != nil {
			return nil, err
		}
		files = append(files, f)
		st, err := f.Stat()
		if err != nil {
			return nil, err
		}
		a, err := awb.Open(f, st.Size())
		if err != nil {
			return nil, fmt.Errorf("%s.awb: %w", name, err)
		}
		streams[port] = a
		return a, nil
	}

	key := opts.resolveKey(acbFile)
	var exported []string
	var firstErr error
	for _, track := range sheet.Tracks {
		if !track.IsHCA() {
			if opts.Logger != nil {
				opts.Logger.Debugf("%s: cue %s has encode type %d, skipped", acbFile, track.Name, track.EncodeType)
			}
			continue
		}

		output, err := exportTrack(sheet, track, acbFile, outputDir, key.Code, key.Subkey, openStream, opts)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("cue %s: %w", track.Name, err)
			}
			continue
		}
		exported = append(exported, output)
	}
	return exported, firstErr
}

func exportTrack(sheet *acb.CueSheet, track acb.Track, acbFile, outputDir string, keyCode, subkey uint64,
	openStream func(int) (*awb.Archive, error), opts Options) (string, error) {
	bank := sheet.Memory
	if track.Streaming {
		var err error
		if bank, err = openStream(track.Port); err != nil {
			return "", err
		}
	}
	if bank == nil {
		return "", fmt.Errorf("no wave bank holds AWB id %d", track.AwbID)
	}

	r, err := bank.ByID(track.AwbID)
	if err != nil {
		return "", err
	}
	decoder, err := hca.NewHCADecoderFromReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to create HCA decoder: %w", err)
	}
	if bank.Subkey != 0 {
		subkey = uint64(bank.Subkey)
	}
	decoder.SetEncryptionKey(keyCode, subkey)
	return exportStream(decoder, acbFile, outputDir, unsafeNameChars.Replace(track.Name), opts)
}
