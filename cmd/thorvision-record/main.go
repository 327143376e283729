// Command thorvision-record lists the server's cameras and records the
// selected ones until the duration elapses or the process is interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kontex-neuro/thorvision-go/internal/config"
	"github.com/kontex-neuro/thorvision-go/pkg/capability"
	"github.com/kontex-neuro/thorvision-go/pkg/recorder"
	"github.com/kontex-neuro/thorvision-go/pkg/session"
	"github.com/kontex-neuro/thorvision-go/pkg/thorvision"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "thorvision.yaml", "path to config file")
	cameras := flag.String("cameras", "all", "comma-separated camera IDs to record, or \"all\"")
	duration := flag.Duration("duration", 10*time.Second, "how long to record")
	listOnly := flag.Bool("list", false, "list cameras and capabilities, then exit")
	debug := flag.Bool("debug", false, "dump session state after each start")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := buildLogger(cfg.Logging)
	defer log.Sync()
	log = log.Named("main")

	logMode, err := recorder.ParseLogMode(cfg.Recording.LogMode)
	if err != nil {
		log.Fatal("invalid log_mode in config", zap.Error(err))
	}

	client, err := thorvision.New(cfg.Server.URL,
		thorvision.WithLogger(log),
		thorvision.WithSignalCleanup(),
	)
	if err != nil {
		log.Fatal("client creation failed", zap.Error(err))
	}
	defer client.Close()

	if cfg.Server.MetricsAddr != "" {
		go serveMetrics(log, cfg.Server.MetricsAddr)
	}

	ctx := context.Background()

	cams, err := client.ListCameras(ctx)
	if err != nil {
		log.Fatal("camera listing failed", zap.Error(err))
	}
	if len(cams) == 0 {
		log.Fatal("no cameras found")
	}

	for _, cam := range cams {
		fmt.Println(capability.Describe(cam))
	}
	if *listOnly {
		return
	}

	selected, err := selectCameras(cams, *cameras)
	if err != nil {
		log.Fatal("invalid camera selection", zap.Error(err))
	}

	caps, err := client.FormatCapabilities(ctx, cams)
	if err != nil {
		log.Fatal("capability listing failed", zap.Error(err))
	}

	opts := session.Options{
		OutputDir: cfg.Recording.OutputDir,
		Rotation:  cfg.Recording.Rotation(),
		LogMode:   logMode,
		LatencyMS: cfg.Recording.LatencyMS,
	}

	var started []int
	for _, cam := range selected {
		jpeg := caps[cam.ID]
		if len(jpeg) == 0 {
			log.Warn("camera has no recordable capability, skipping",
				zap.Int("cameraID", cam.ID), zap.String("name", cam.Name))
			continue
		}

		sess, err := client.StartStreamWithRecording(ctx, cam, jpeg[0], opts)
		if err != nil {
			log.Error("stream start failed", zap.Int("cameraID", cam.ID), zap.Error(err))
			continue
		}
		started = append(started, cam.ID)
		log.Info("recording",
			zap.Int("cameraID", cam.ID),
			zap.String("name", cam.Name),
			zap.String("output", sess.OutputPath),
		)

		if *debug {
			fmt.Fprint(os.Stderr, spew.Sdump(sess))
		}
	}
	if len(started) == 0 {
		log.Fatal("no streams were started")
	}

	log.Info("recording in progress", zap.Duration("duration", *duration))
	time.Sleep(*duration)

	for _, id := range started {
		if err := client.StopStream(ctx, id); err != nil {
			log.Error("stream stop failed", zap.Int("cameraID", id), zap.Error(err))
			continue
		}
		log.Info("stream stopped", zap.Int("cameraID", id))
	}
}

// loadConfig falls back to defaults when the default config file is absent;
// an explicitly given path must exist.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) && path == "thorvision.yaml" {
		return config.Default(), nil
	}
	return cfg, err
}

func selectCameras(cams []capability.Camera, sel string) ([]capability.Camera, error) {
	if sel == "all" {
		return cams, nil
	}

	byID := make(map[int]capability.Camera, len(cams))
	for _, cam := range cams {
		byID[cam.ID] = cam
	}

	var out []capability.Camera
	for _, part := range strings.Split(sel, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("bad camera ID %q", part)
		}
		cam, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("camera %d not found", id)
		}
		out = append(out, cam)
	}
	return out, nil
}

func serveMetrics(log *zap.Logger, addr string) {
	gin.SetMode(gin.ReleaseMode)
	gin.DefaultWriter = zap.NewStdLog(log.Named("gin")).Writer()

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	log.Info("serving metrics", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Error("metrics server failed", zap.Error(err))
	}
}

func buildLogger(cfg config.LoggingConfig) *zap.Logger {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.TimeKey = ""
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	logConfig.DisableCaller = true

	if cfg.Format == "json" {
		logConfig = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	logConfig.Level.SetLevel(level)

	return zap.Must(logConfig.Build())
}
