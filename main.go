package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"haruki-hca/api"
	"haruki-hca/config"
	"haruki-hca/utils/cloud"
	"haruki-hca/utils/exporter"
	"haruki-hca/utils/keyring"
	harukiLogger "haruki-hca/utils/logger"
	"haruki-hca/utils/remote"
)

func main() {
	configPath := flag.String("config", "haruki-hca-configs.yaml", "path to the YAML configuration")
	convertDir := flag.String("convert", "", "convert every .hca, .acb, .awb and .usm file below this directory and exit")
	outputDir := flag.String("out", "output", "output directory for -convert")
	format := flag.String("format", "wav", "output format for -convert: wav, mp3 or flac")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) || isFlagSet("config") {
			harukiLogger.NewLogger("ConfigLoader", "ERROR", nil).Errorf("%v", err)
			os.Exit(1)
		}
		cfg = config.Default()
	}

	var logFile *os.File
	var loggerWriter io.Writer = os.Stdout
	if cfg.Backend.MainLogFile != "" {
		logFile, err = os.OpenFile(cfg.Backend.MainLogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			mainLogger := harukiLogger.NewLogger("Main", cfg.Backend.LogLevel, os.Stdout)
			mainLogger.Errorf("failed to open main log file: %v", err)
			os.Exit(1)
		}
		loggerWriter = io.MultiWriter(os.Stdout, logFile)
		defer func(logFile *os.File) {
			_ = logFile.Close()
		}(logFile)
	}
	mainLogger := harukiLogger.NewLogger("Main", cfg.Backend.LogLevel, loggerWriter)

	keys, err := keyring.New(cfg.Decode)
	if err != nil {
		mainLogger.Errorf("invalid decode configuration: %v", err)
		os.Exit(1)
	}

	var uploader *cloud.S3Uploader
	if cfg.Storage.Enabled {
		uploader, err = cloud.NewS3Uploader(cfg.Storage, harukiLogger.NewLogger("HarukiCloudStorageUploader", cfg.Backend.LogLevel, loggerWriter))
		if err != nil {
			mainLogger.Errorf("invalid storage configuration: %v", err)
			os.Exit(1)
		}
	}

	if *convertDir != "" {
		os.Exit(runConvert(cfg, keys, uploader, *convertDir, *outputDir, *format, loggerWriter))
	}

	mainLogger.Infof("========================= Haruki HCA Decoder %s =========================", config.Version)
	mainLogger.Infof("Powered By Haruki Dev Team")

	// a nil *S3Uploader must not become a non-nil interface
	var storage api.Uploader
	if uploader != nil {
		storage = uploader
	}
	handler := api.NewHandler(cfg, keys, remote.NewFetcher(cfg.Remote), storage,
		harukiLogger.NewLogger("HarukiHCAAPI", cfg.Backend.LogLevel, loggerWriter))
	app := api.NewApp(cfg, handler)

	if cfg.Backend.AccessLog != "" {
		logCfg := logger.Config{Format: cfg.Backend.AccessLog}
		if cfg.Backend.AccessLogPath != "" {
			accessLogFile, err := os.OpenFile(cfg.Backend.AccessLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				mainLogger.Errorf("failed to open access log file: %v", err)
				os.Exit(1)
			}
			defer func(accessLogFile *os.File) {
				_ = accessLogFile.Close()
			}(accessLogFile)
			logCfg.Stream = accessLogFile
		}
		app.Use(logger.New(logCfg))
	}

	addr := fmt.Sprintf("%s:%d", cfg.Backend.Host, cfg.Backend.Port)
	listenCfg := fiber.ListenConfig{DisableStartupMessage: true}
	if cfg.Backend.SSL {
		listenCfg.CertFile = cfg.Backend.SSLCert
		listenCfg.CertKeyFile = cfg.Backend.SSLKey
	}
	mainLogger.Infof("listening on %s", addr)
	if err := app.Listen(addr, listenCfg); err != nil {
		mainLogger.Errorf("failed to start server: %v", err)
		os.Exit(1)
	}
}

func runConvert(cfg *config.Config, keys *keyring.Keyring, uploader *cloud.S3Uploader, inputDir, outputDir, format string, w io.Writer) int {
	exportLogger := harukiLogger.NewLogger("HarukiHCAExporter", cfg.Backend.LogLevel, w)

	f, err := exporter.ParseFormat(format)
	if err != nil {
		exportLogger.Errorf("%v", err)
		return 2
	}

	exported, failed, err := exporter.ExportDir(inputDir, outputDir, exporter.Options{
		Format:            f,
		FFMPEGPath:        cfg.Tools.FFMPEGPath,
		SkipCorruptFrames: cfg.Decode.SkipCorruptFrames,
		Keyring:           keys,
		Logger:            exportLogger,
	})
	if err != nil {
		exportLogger.Errorf("%v", err)
		return 1
	}
	exportLogger.Infof("exported %d files, %d failed", len(exported), failed)

	if uploader != nil && len(exported) > 0 {
		if err := uploader.UploadAll(context.Background(), exported, outputDir); err != nil {
			exportLogger.Errorf("upload failed: %v", err)
			return 1
		}
		exportLogger.Infof("Successfully uploaded %d files", len(exported))
	}

	if failed > 0 {
		return 1
	}
	return 0
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
