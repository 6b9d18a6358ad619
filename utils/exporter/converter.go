package exporter

import (
	"fmt"
	"os"
	"os/exec"
)

func ConvertWavToFLAC(wavFile string, flacFile string, deleteOriginal bool, ffmpegPath string) error {
	cmd := exec.Command(ffmpegPath, "-i", wavFile, "-compression_level", "12", "-y", flacFile)
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to convert WAV to FLAC: %w", err)
	}
	if deleteOriginal {
		return removeIfExists(wavFile)
	}
	return nil
}

func ConvertWavToMP3(wavFile string, mp3File string, deleteOriginal bool, ffmpegPath string) error {
	cmd := exec.Command(ffmpegPath, "-i", wavFile, "-b:a", "320k", "-y", mp3File)
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to convert WAV to MP3: %w", err)
	}
	if deleteOriginal {
		return removeIfExists(wavFile)
	}
	return nil
}

func removeIfExists(file string) error {
	if _, err := os.Stat(file); err == nil {
		if err := os.Remove(file); err != nil {
			return fmt.Errorf("failed to delete original WAV file: %w", err)
		}
	}
	return nil
}
