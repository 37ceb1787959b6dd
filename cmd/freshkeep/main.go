package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/freshkeep/freshkeep/internal/capture"
	"github.com/freshkeep/freshkeep/internal/inventory"
	"github.com/freshkeep/freshkeep/internal/vision"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("freshkeep")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		detectorType  = fs.StringLong("detector", "gemini", "Detector type: 'gemini' or 'infer'")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		inferURL      = fs.StringLong("infer-url", "http://localhost:9400", "Inference server base URL")
		inferModel    = fs.StringLong("infer-model", "yolos-tiny", "Inference server model name")
		precisionMode = fs.StringLong("precision", "fp32", "Model precision: fp32, fp16, int8 or q8")
		cameraType    = fs.StringLong("camera", "none", "Camera backend: 'gst' or 'none'")
		cameraDevice  = fs.StringLong("camera-device", "/dev/video0", "Rear camera V4L2 device node")
		cameraFront   = fs.StringLong("camera-front-device", "", "Front camera V4L2 device node (optional)")
		authUser      = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass      = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("FRESHKEEP"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	precision, err := vision.ParsePrecision(*precisionMode)
	if err != nil {
		slog.Error("Invalid precision mode", "error", err)
		os.Exit(1)
	}

	// Initialize detector based on type
	var backend vision.Detector
	switch *detectorType {
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini detector...", "model", *geminiModel)
		backend, err = vision.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "infer":
		slog.Info("Initializing inference server detector...", "url", *inferURL, "model", *inferModel)
		backend, err = vision.NewInfer(*inferURL, *inferModel)
		if err != nil {
			slog.Error("Failed to initialize inference detector", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid detector type", "type", *detectorType, "valid", "gemini or infer")
		os.Exit(1)
	}

	client := vision.NewClient(backend)
	defer client.Close()

	// Initialize camera, if configured
	var source *capture.Source
	switch *cameraType {
	case "gst":
		slog.Info("Initializing camera...", "device", *cameraDevice)
		device, err := capture.NewGstDevice(*cameraDevice, *cameraFront)
		if err != nil {
			slog.Error("Failed to initialize camera", "error", err)
			os.Exit(1)
		}
		source = capture.NewSource(device)
		defer source.Close()
	case "none":
		slog.Info("No camera configured; scans are upload-only")
	default:
		slog.Error("Invalid camera type", "type", *cameraType, "valid", "gst or none")
		os.Exit(1)
	}

	// Initialize service
	service := inventory.NewService(inventory.NewStore(), inventory.NewImageStore(), client)

	// Initialize server
	basicAuth := inventory.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := inventory.NewServer(service, source, precision, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
