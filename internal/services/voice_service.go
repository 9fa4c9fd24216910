package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/livevoice/internal/audio"
	"github.com/yoockh/livevoice/internal/capture"
	"github.com/yoockh/livevoice/internal/events"
	"github.com/yoockh/livevoice/internal/metrics"
	"github.com/yoockh/livevoice/internal/models"
	"github.com/yoockh/livevoice/internal/playback"
	"github.com/yoockh/livevoice/internal/providers/stt"
	"github.com/yoockh/livevoice/internal/utils"
)

const (
	DefaultPublishQueue = 32
	finalizeTimeout     = 2 * time.Minute
	transcribeRate      = 16000
)

type Capturer interface {
	Start(ctx context.Context, onFragment capture.FragmentFunc, onFinalize capture.FinalizeFunc) error
	Stop() error
	Capturing() bool
	SessionID() string
}

// FragmentPublisher is the send side of the transport adapter.
type FragmentPublisher interface {
	PublishFragment(ctx context.Context, sessionID string, frag models.AudioFragment) error
	RetireSession(sessionID string, delay time.Duration) func() bool
	PublishFinalRecording(ctx context.Context, rec models.Recording, transcript string) error
}

type VoiceService interface {
	StartCapture(ctx context.Context) error
	StopCapture(ctx context.Context) error
	Capturing() bool
	// Wait blocks until every stopped capture has been published or has failed.
	Wait()
}

type VoiceConfig struct {
	RetireDelay time.Duration
	QueueSize   int
	Transcribe  bool
	Language    string
}

type voiceService struct {
	cfg     VoiceConfig
	capture Capturer
	pub     FragmentPublisher
	stt     stt.Provider
	decoder playback.Decoder
	hub     *events.Hub
	log     *logrus.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex // serializes start and stop
	finals sync.WaitGroup
}

// NewVoiceService wires capture output to the transport. speech and decoder
// may be nil when transcription is off.
func NewVoiceService(cfg VoiceConfig, c Capturer, pub FragmentPublisher, speech stt.Provider, decoder playback.Decoder,
	hub *events.Hub, log *logrus.Logger, m *metrics.Metrics) VoiceService {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultPublishQueue
	}
	return &voiceService{cfg: cfg, capture: c, pub: pub, stt: speech, decoder: decoder, hub: hub, log: log, metrics: m}
}

type outgoing struct {
	sessionID string
	frag      models.AudioFragment
}

func (s *voiceService) StartCapture(ctx context.Context) error {
	const op = "VoiceService.StartCapture"

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capture.Capturing() {
		return nil
	}

	queue := make(chan outgoing, s.cfg.QueueSize)
	drained := make(chan struct{})
	go s.publishLoop(queue, drained)

	onFragment := func(sessionID string, frag models.AudioFragment) {
		select {
		case queue <- outgoing{sessionID: sessionID, frag: frag}:
		default:
			s.metrics.RecordFragmentPublished("dropped")
			s.log.WithFields(logrus.Fields{"session_id": sessionID, "seq": frag.Seq}).Warn("publish queue full, fragment dropped")
		}
	}
	onFinalize := func(rec models.Recording) {
		close(queue)
		s.finals.Add(1)
		go s.finalize(rec, drained)
	}

	if err := s.capture.Start(ctx, onFragment, onFinalize); err != nil {
		close(queue)
		s.hub.Publish(events.TypeCapture, map[string]any{"capturing": false, "error": err.Error()})
		if utils.IsCode(err, utils.CodePermissionDenied) {
			return err
		}
		return utils.E(utils.CodeInternal, op, "failed to start capture", err)
	}
	s.hub.Publish(events.TypeCapture, map[string]any{"capturing": true, "sessionId": s.capture.SessionID()})
	return nil
}

// publishLoop keeps transport order equal to encode order. Errors are
// dropped on purpose: a lost fragment is a short gap.
func (s *voiceService) publishLoop(queue <-chan outgoing, drained chan<- struct{}) {
	defer close(drained)
	for job := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = s.pub.PublishFragment(ctx, job.sessionID, job.frag)
		cancel()
	}
}

func (s *voiceService) StopCapture(ctx context.Context) error {
	const op = "VoiceService.StopCapture"

	s.mu.Lock()
	defer s.mu.Unlock()
	sessionID := s.capture.SessionID()
	if err := s.capture.Stop(); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to stop capture", err)
	}
	if sessionID != "" {
		s.hub.Publish(events.TypeCapture, map[string]any{"capturing": false, "sessionId": sessionID})
	}
	return nil
}

func (s *voiceService) Capturing() bool { return s.capture.Capturing() }

func (s *voiceService) Wait() { s.finals.Wait() }

func (s *voiceService) finalize(rec models.Recording, drained <-chan struct{}) {
	defer s.finals.Done()
	<-drained
	s.pub.RetireSession(rec.SessionID, s.cfg.RetireDelay)

	log := s.log.WithFields(logrus.Fields{"session_id": rec.SessionID, "pieces": len(rec.Pieces)})
	if rec.Empty() {
		log.Info("capture produced no audio, nothing to publish")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	transcript := s.transcribe(ctx, rec, log)
	if err := s.pub.PublishFinalRecording(ctx, rec, transcript); err != nil {
		log.WithError(err).Error("final recording not published")
		s.hub.Publish(events.TypeStatus, map[string]string{"state": "recording_failed", "message": err.Error()})
		return
	}
	log.Info("final recording published")
}

// transcribe is best effort: any failure yields an empty transcript.
func (s *voiceService) transcribe(ctx context.Context, rec models.Recording, log *logrus.Entry) string {
	if !s.cfg.Transcribe || s.stt == nil || s.decoder == nil {
		return ""
	}
	start := time.Now()

	var pcm []int16
	for i, piece := range rec.Pieces {
		buf, err := s.decoder.Decode(ctx, piece)
		if err != nil {
			log.WithError(err).WithField("piece", i).Debug("piece skipped for transcription")
			continue
		}
		pcm = append(pcm, audio.Resample(buf, transcribeRate).Samples...)
	}
	if len(pcm) == 0 {
		return ""
	}

	text, conf, err := s.stt.Transcribe(ctx, audio.SamplesToBytes(pcm), transcribeRate, s.cfg.Language)
	if err != nil {
		s.metrics.RecordTranscription("failed", time.Since(start).Seconds())
		log.WithError(err).Warn("transcription failed")
		return ""
	}
	s.metrics.RecordTranscription("ok", time.Since(start).Seconds())
	log.WithField("confidence", conf).Debug("recording transcribed")
	return text
}
