// Package app wires a voice node from configuration.
package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/yoockh/livevoice/config"
	"github.com/yoockh/livevoice/internal/api/handlers"
	"github.com/yoockh/livevoice/internal/api/middleware"
	"github.com/yoockh/livevoice/internal/api/routes"
	"github.com/yoockh/livevoice/internal/audio"
	"github.com/yoockh/livevoice/internal/capture"
	"github.com/yoockh/livevoice/internal/events"
	"github.com/yoockh/livevoice/internal/identity"
	"github.com/yoockh/livevoice/internal/metrics"
	"github.com/yoockh/livevoice/internal/playback"
	"github.com/yoockh/livevoice/internal/providers/stt"
	mongorepo "github.com/yoockh/livevoice/internal/repositories/mongo"
	"github.com/yoockh/livevoice/internal/services"
	"github.com/yoockh/livevoice/internal/storage"
	"github.com/yoockh/livevoice/internal/transport"
	"github.com/yoockh/livevoice/internal/utils"
	"github.com/yoockh/livevoice/internal/workers"
)

const shutdownTimeout = 10 * time.Second

// Overrides replaces node dependencies, mostly for tests. Zero fields are
// built from the configuration.
type Overrides struct {
	Identity   *identity.Context
	Store      transport.Store
	Uploader   storage.Uploader
	Microphone capture.Microphone
	Registry   *prometheus.Registry
	// PlayerOutput receives rendered playback PCM instead of a player process.
	PlayerOutput io.Writer
}

// Node is one participant: capture, transport, discovery, playback and the
// local control bridge.
type Node struct {
	cfg *config.Config
	log *logrus.Logger

	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Hub      *events.Hub
	Identity *identity.Context
	Adapter  *transport.Adapter
	Engine   *playback.Engine
	Sink     *playback.StreamSink
	Pipeline *capture.Pipeline

	Voice     services.VoiceService
	Chat      services.ChatService
	Settings  services.SettingsService
	Discovery *services.Discovery
	Archive   *workers.ArchiveWorkerPool

	router  *gin.Engine
	player  io.Writer
	closers []func() error
}

// New builds a node. Only configuration and identity errors are returned;
// an unreachable backend leaves the node running with an "error" status.
func New(ctx context.Context, cfg *config.Config, log *logrus.Logger, ov Overrides) (*Node, error) {
	n := &Node{cfg: cfg, log: log, Hub: events.NewHub(128)}

	n.Registry = ov.Registry
	if n.Registry == nil {
		n.Registry = prometheus.NewRegistry()
		n.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	n.Metrics = metrics.NewMetrics(n.Registry)

	n.Identity = ov.Identity
	if n.Identity == nil {
		ident, err := identity.LoadOrCreate(cfg.IdentityFile)
		if err != nil {
			return nil, err
		}
		n.Identity = ident
	}

	store := ov.Store
	if store == nil {
		store = n.openStore(ctx)
	} else {
		n.Hub.SetStatus("connected", "")
	}
	n.closers = append(n.closers, store.Close)

	blobs := ov.Uploader
	if blobs == nil {
		blobs = n.openUploader(ctx)
	}

	ff := audio.NewFFmpeg(cfg.FFmpegPath)

	// Playback
	n.Sink = playback.NewStreamSink(cfg.SampleRate, playback.DefaultFrame)
	n.Engine = playback.NewEngine(playback.NewSniffDecoder(ff, cfg.SampleRate), n.Sink, playback.NewGain(n.Identity.Volume()), log, n.Metrics)
	n.Identity.OnVolumeChange(n.Engine.SetVolume)
	n.player = ov.PlayerOutput

	// Capture
	mic := ov.Microphone
	if mic == nil {
		mic = &capture.FFmpegMicrophone{
			FFmpeg:      ff,
			InputFormat: cfg.MicFormat,
			Device:      cfg.MicDevice,
			SampleRate:  cfg.SampleRate,
			Logger:      log,
		}
	}
	n.Pipeline = capture.NewPipeline(
		capture.Config{SliceInterval: cfg.SliceInterval, SliceLength: cfg.SliceLength},
		mic, capture.NewCodecs(ff), n.Identity, log,
		capture.WithCues(n.Engine), capture.WithMetrics(n.Metrics),
	)

	// Transport and services
	n.Adapter = transport.NewAdapter(store, blobs, n.Identity, log, transport.WithMetrics(n.Metrics))

	var speech stt.Provider
	if cfg.Transcribe {
		g, err := stt.NewGoogleSpeech(ctx)
		if err != nil {
			log.WithError(err).Warn("speech client unavailable, transcription disabled")
		} else {
			speech = g
			n.closers = append(n.closers, g.Close)
		}
	}
	n.Voice = services.NewVoiceService(services.VoiceConfig{
		RetireDelay: cfg.RetireDelay,
		Transcribe:  speech != nil,
		Language:    cfg.Language,
	}, n.Pipeline, n.Adapter, speech, playback.NewSniffDecoder(ff, 16000), n.Hub, log, n.Metrics)

	messages := n.openArchive(ctx)
	var archiver services.Archiver
	if messages != nil {
		n.Archive = &workers.ArchiveWorkerPool{Repo: messages, Logger: log}
		archiver = n.Archive
	}
	n.Chat = services.NewChatService(n.Adapter, archiver, messages, n.Hub, log)
	n.Settings = services.NewSettingsService(n.Identity, n.Pipeline, n.Hub)

	speaking := services.NewSpeakingIndicator(services.DefaultQuietTimeout, func(name string, on bool) {
		n.Hub.Publish(events.TypeSpeaking, map[string]any{"name": name, "speaking": on})
	})
	n.Discovery = services.NewDiscovery(services.DiscoveryConfig{
		RecentWindow: cfg.RecentWindow,
		ChunkTail:    cfg.ChunkTail,
		MaxPending:   cfg.MaxPending,
		FlushAfter:   cfg.FlushAfter,
	}, n.Adapter, n.Engine, n.Identity, speaking, n.Hub, log, n.Metrics)

	// Bridge
	gin.SetMode(gin.ReleaseMode)
	n.router = gin.New()
	n.router.Use(gin.Recovery(), middleware.RequestLogger(log, n.Metrics))
	routes.RegisterRoutes(n.router, routes.Deps{
		Control:   handlers.NewControlHandler(n.Voice, n.Chat, n.Settings),
		Events:    handlers.NewEventsHandler(n.Hub, log),
		Gatherer:  n.Registry,
		JWTSecret: cfg.JWTSecret,
	})

	return n, nil
}

func (n *Node) openStore(ctx context.Context) transport.Store {
	const op = "Node.openStore"

	store, err := openStore(ctx, n.cfg, n.log)
	if err != nil {
		err = utils.E(utils.CodeConnection, op, "backend unavailable", err)
		n.log.WithError(err).Error("store init failed, node is offline")
		n.Hub.SetStatus("error", err.Error())
		return offlineStore{err: err}
	}
	n.Hub.SetStatus("connected", "")
	return store
}

func (n *Node) openUploader(ctx context.Context) storage.Uploader {
	switch {
	case n.cfg.GCSBucket != "":
		u, err := storage.NewGCSUploader(ctx, n.cfg.GCSBucket)
		if err == nil {
			n.closers = append(n.closers, u.Close)
			return u
		}
		n.log.WithError(err).Warn("gcs unavailable, falling back to local blobs")
	case n.cfg.BlobDir != "":
		return storage.DirUploader{Root: n.cfg.BlobDir}
	}
	n.log.Warn("no shared blob storage configured, recordings and images stay in memory")
	return storage.NewMemoryUploader()
}

func (n *Node) openArchive(ctx context.Context) mongorepo.MessageRepository {
	if n.cfg.MongoURI == "" {
		return nil
	}
	client, err := config.NewMongoClient(ctx, n.cfg.MongoURI)
	if err != nil {
		n.log.WithError(err).Warn("mongo unavailable, chat archive disabled")
		return nil
	}
	db := client.Database(n.cfg.MongoDB)
	if err := config.EnsureMongoIndexes(ctx, db); err != nil {
		n.log.WithError(err).Warn("failed to ensure archive indexes")
	}
	n.closers = append(n.closers, func() error { return client.Disconnect(context.Background()) })
	return mongorepo.NewMessageRepo(db, n.cfg.ArchiveTTL)
}

// Handler is the control bridge router.
func (n *Node) Handler() http.Handler { return n.router }

// Run serves the node until ctx ends. A capture in progress is stopped and
// its recording published before Run returns.
func (n *Node) Run(ctx context.Context) error {
	out := n.player
	if out == nil {
		p, err := playback.StartPlayer(n.cfg.PlayerCmd, n.cfg.SampleRate, n.log)
		if err != nil {
			n.log.WithError(err).Warn("audio player unavailable, remote audio is discarded")
			p, _ = playback.StartPlayer("none", n.cfg.SampleRate, n.log)
		}
		defer p.Close()
		out = p
	}

	srv := &http.Server{
		Addr:              ":" + n.cfg.Port,
		Handler:           n.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return n.Sink.Run(gctx, &playerWriter{w: out, log: n.log}) })
	g.Go(func() error {
		if err := n.Discovery.Run(gctx); err != nil {
			n.log.WithError(err).Error("session discovery stopped")
		}
		return nil
	})
	g.Go(func() error {
		if err := n.Chat.Run(gctx); err != nil {
			n.log.WithError(err).Error("chat relay stopped")
		}
		return nil
	})
	if n.Archive != nil {
		if err := n.Archive.Start(gctx); err != nil {
			return err
		}
	}
	g.Go(func() error {
		n.log.WithField("addr", srv.Addr).Info("control bridge listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		if err := n.Voice.StopCapture(context.Background()); err != nil {
			n.log.WithError(err).Warn("failed to stop capture on shutdown")
		}
		n.Voice.Wait()

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	err := g.Wait()
	if n.Archive != nil {
		n.Archive.Wait()
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (n *Node) Close() error {
	var errs []error
	for i := len(n.closers) - 1; i >= 0; i-- {
		if err := n.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
