package exporter

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"haruki-hca/utils"
	"haruki-hca/utils/cricodecs/hca"
	"haruki-hca/utils/keyring"
	harukiLogger "haruki-hca/utils/logger"
)

type Format string

const (
	FormatWAV  Format = "wav"
	FormatMP3  Format = "mp3"
	FormatFLAC Format = "flac"
)

// ParseFormat accepts wav, mp3 or flac in any case; empty means wav.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatWAV, nil
	case FormatWAV, FormatMP3, FormatFLAC:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format %q", s)
	}
}

type Options struct {
	Format            Format
	FFMPEGPath        string
	SkipCorruptFrames bool
	DeleteOriginalHCA bool
	// Keyring picks the key per file; nil decodes without a key.
	Keyring *keyring.Keyring
	Logger  *harukiLogger.Logger
}

func (o Options) resolveKey(name string) keyring.Key {
	if o.Keyring == nil {
		return keyring.Key{}
	}
	key, _ := o.Keyring.Resolve(name)
	return key
}

// ExportHCA decodes hcaFile into outputDir and returns the path of the written file.
func ExportHCA(hcaFile string, outputDir string, opts Options) (string, error) {
	baseName := strings.TrimSuffix(filepath.Base(hcaFile), filepath.Ext(hcaFile))

	decoder, err := hca.NewHCADecoder(hcaFile)
	if err != nil {
		return "", fmt.Errorf("failed to create HCA decoder: %w", err)
	}
	defer func(decoder *hca.HCADecoder) {
		_ = decoder.Close()
	}(decoder)

	key := opts.resolveKey(hcaFile)
	decoder.SetEncryptionKey(key.Code, key.Subkey)

	output, err := exportStream(decoder, hcaFile, outputDir, baseName, opts)
	if err != nil {
		return "", err
	}

	if opts.DeleteOriginalHCA {
		if err := os.Remove(hcaFile); err != nil {
			return "", fmt.Errorf("failed to delete original HCA file: %w", err)
		}
	}
	return output, nil
}

// exportStream writes the decoder's stream to outputDir/baseName.wav and transcodes it
// when opts asks for another format.
func exportStream(decoder *hca.HCADecoder, source string, outputDir string, baseName string, opts Options) (string, error) {
	decoder.SetLogger(opts.Logger)
	decoder.SetSkipCorruptFrames(opts.SkipCorruptFrames)

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	wavFile := filepath.Join(outputDir, baseName+".wav")
	file, err := os.Create(wavFile)
	if err != nil {
		return "", fmt.Errorf("failed to create WAV file: %w", err)
	}
	defer func(file *os.File) {
		_ = file.Close()
	}(file)
	if err := decoder.DecodeToWav(file); err != nil {
		_ = file.Close()
		_ = os.Remove(wavFile)
		return "", fmt.Errorf("failed to decode HCA to WAV: %w", err)
	}
	_ = file.Close()

	if n := decoder.SkippedFrames(); n > 0 && opts.Logger != nil {
		opts.Logger.Warnf("%s: %d corrupt frames replaced by silence", source, n)
	}

	output := wavFile
	switch opts.Format {
	case FormatMP3:
		output = filepath.Join(outputDir, baseName+".mp3")
		if err := ConvertWavToMP3(wavFile, output, true, opts.FFMPEGPath); err != nil {
			return "", err
		}
	case FormatFLAC:
		output = filepath.Join(outputDir, baseName+".flac")
		if err := ConvertWavToFLAC(wavFile, output, true, opts.FFMPEGPath); err != nil {
			return "", err
		}
	}
	return output, nil
}

// ExportDir exports every .hca file, every HCA cue of .acb cue sheets, every HCA
// stream of other .awb archives and the HCA audio of .usm movies below inputDir,
// mirroring the directory layout under outputDir. A .awb next to a .acb of the same
// name is left to the cue sheet. Files that fail are logged and counted; err is only
// set when inputDir cannot be walked.
func ExportDir(inputDir string, outputDir string, opts Options) (exported []string, failed int, err error) {
	hcaFiles, err := utils.FindFilesByExtension(inputDir, ".hca")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list HCA files: %w", err)
	}
	acbFiles, err := utils.FindFilesByExtension(inputDir, ".acb")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list ACB files: %w", err)
	}
	awbFiles, err := utils.FindFilesByExtension(inputDir, ".awb")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list AWB files: %w", err)
	}
	usmFiles, err := utils.FindFilesByExtension(inputDir, ".usm")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list USM files: %w", err)
	}
	cueSheets := make(map[string]bool, len(acbFiles))
	for _, acbFile := range acbFiles {
		cueSheets[strings.ToLower(strings.TrimSuffix(acbFile, filepath.Ext(acbFile)))] = true
	}

	targetDir := func(file string) string {
		relativeDir, err := filepath.Rel(inputDir, filepath.Dir(file))
		if err != nil {
			relativeDir = ""
		}
		return filepath.Join(outputDir, relativeDir)
	}
	logFailure := func(file string, err error) {
		failed++
		if opts.Logger != nil {
			opts.Logger.Errorf("failed to export %s: %v", file, err)
		}
	}

	for _, hcaFile := range hcaFiles {
		output, err := ExportHCA(hcaFile, targetDir(hcaFile), opts)
		if err != nil {
			logFailure(hcaFile, err)
			continue
		}
		if opts.Logger != nil {
			opts.Logger.Debugf("exported %s to %s", hcaFile, output)
		}
		exported = append(exported, output)
	}

	for _, acbFile := range acbFiles {
		outputs, err := ExportACB(acbFile, targetDir(acbFile), opts)
		exported = append(exported, outputs...)
		if err != nil {
			logFailure(acbFile, err)
		}
	}

	for _, awbFile := range awbFiles {
		if cueSheets[strings.ToLower(strings.TrimSuffix(awbFile, filepath.Ext(awbFile)))] {
			continue
		}
		outputs, err := ExportAWB(awbFile, targetDir(awbFile), opts)
		exported = append(exported, outputs...)
		if err != nil {
			logFailure(awbFile, err)
		}
	}

	for _, usmFile := range usmFiles {
		outputs, err := ExportUSM(usmFile, targetDir(usmFile), opts)
		exported = append(exported, outputs...)
		if err != nil {
			logFailure(usmFile, err)
		}
	}
	return exported, failed, nil
}
