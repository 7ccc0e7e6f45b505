package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/neboloop/ytvoice/internal/ai"
	"github.com/neboloop/ytvoice/internal/analytics"
	"github.com/neboloop/ytvoice/internal/assistant"
	"github.com/neboloop/ytvoice/internal/config"
	"github.com/neboloop/ytvoice/internal/conversation"
	"github.com/neboloop/ytvoice/internal/crashlog"
	"github.com/neboloop/ytvoice/internal/db"
	"github.com/neboloop/ytvoice/internal/defaults"
	"github.com/neboloop/ytvoice/internal/events"
	"github.com/neboloop/ytvoice/internal/local"
	"github.com/neboloop/ytvoice/internal/logging"
	"github.com/neboloop/ytvoice/internal/subtitles"
	"github.com/neboloop/ytvoice/internal/voice"
)

// app is the process-wide service context shared by the commands: one
// database connection, one settings file, one event bus.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *db.Store
	settings *local.SettingsStore
	bus      *events.Bus
	tracker  *analytics.Tracker
	subs     *subtitles.CachedProvider
	forward  events.Subscription
}

// openApp initializes the data directory, database, settings and analytics.
func openApp(cfg *config.Config) (*app, error) {
	logger := logging.L()

	if err := defaults.EnsureDir(cfg.DataDir); err != nil {
		return nil, fmt.Errorf("initialize data directory: %w", err)
	}
	if err := os.MkdirAll(cfg.SubtitlesDir(), 0755); err != nil {
		return nil, err
	}

	store, err := db.NewSQLite(cfg.DBPath(), logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	settings, err := local.OpenSettings(cfg.SettingsPath(), logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open settings: %w", err)
	}

	crashlog.Init(store)

	a := &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		settings: settings,
		bus:      events.New(events.WithLogger(logger), events.WithSyncDelivery()),
	}
	// Analytics and status handlers run in emit order on the bus goroutine.
	a.forward = analytics.Forward(a.bus, analytics.Multi(
		analytics.LogSink{Logger: logging.Component(logger, "analytics")},
		analytics.StoreSink{Store: store},
	))
	a.tracker = analytics.NewTracker(analytics.BusSink{Bus: a.bus}, func() bool {
		return settings.Bool(local.KeyAnalyticsEnabled, true)
	}, logger)
	a.subs = subtitles.NewCachedProvider(store, subtitles.DirProvider{Dir: cfg.SubtitlesDir()}, a.tracker, logger)
	return a, nil
}

func (a *app) Close() {
	crashlog.Init(nil)
	a.forward.Unsubscribe()
	a.bus.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close database", "error", err)
	}
}

// newAssistant builds one pipeline around mic and player. Each assistant owns
// its conversation history and reply audio cache.
func (a *app) newAssistant(clients *ai.Clients, mic voice.Microphone, player voice.Player, logger *slog.Logger) (*assistant.Assistant, error) {
	cfg := a.cfg
	format := voice.Format{SampleRate: cfg.Voice.SampleRate, FrameSamples: cfg.Voice.FrameSamples}

	detector := voice.DefaultDetectorConfig()
	detector.PositiveThreshold = float32(cfg.Voice.PositiveThreshold)
	detector.NegativeThreshold = float32(cfg.Voice.NegativeThreshold)
	detector.MinSpeechFrames = cfg.Voice.MinSpeechFrames
	detector.PreSpeechPadFrames = cfg.Voice.PreSpeechPadFrames
	detector.RedemptionFrames = cfg.Voice.RedemptionFrames

	recorder := voice.NewRecorder(mic, voice.RecorderConfig{
		Format:   format,
		Detector: detector,
		NewScorer: func() (voice.Scorer, error) {
			return voice.NewScorer(voice.ScorerOptions{
				Engine:       cfg.Voice.Engine,
				SampleRate:   format.SampleRate,
				FrameSamples: format.FrameSamples,
				Logger:       logger,
			})
		},
		KeepAlive: func() bool {
			return a.settings.Bool(local.KeyEnhancedVoiceMode, true)
		},
		Logger: logger,
	})
	fallback := voice.NewFixedDurationRecorder(mic, format, cfg.Voice.FallbackDuration, logger)

	audio := conversation.NewAudioCache(cfg.Conversation.AudioTTL, logger)
	if err := audio.Start(); err != nil {
		return nil, fmt.Errorf("start audio cache: %w", err)
	}

	acfg := assistant.DefaultConfig()
	acfg.RecordingTimeout = cfg.Voice.RecordingTimeout
	acfg.KeepFailedQuestions = cfg.Conversation.KeepFailedQuestions
	acfg.ContextMaxWords = cfg.Prompt.ContextMaxWords
	acfg.Transcribe.Language = cfg.OpenAI.Language
	acfg.Audio = clients.Audio
	acfg.CustomPrompt = func() string {
		return a.settings.String(local.KeyCustomPrompt, "")
	}

	asst, err := assistant.New(acfg, assistant.Deps{
		Recorder:    recorder,
		Fallback:    fallback,
		Transcriber: clients.Transcriber,
		Completer:   clients.Completer,
		Player:      player,
		Store:       conversation.NewStore(cfg.Conversation.MaxTurns, cfg.Conversation.MaxVideos, logger),
		Audio:       audio,
		Subtitles:   a.subs,
		Tracker:     a.tracker,
		Logger:      logger,
	})
	if err != nil {
		audio.Close()
		return nil, err
	}
	return asst, nil
}

// statusEvent is published on events.TopicStatus for every pipeline update.
type statusEvent struct {
	Message string          `json:"message"`
	Phase   assistant.Phase `json:"phase"`
}

// publishStatus returns a StatusFunc that forwards updates to the bus.
func (a *app) publishStatus() assistant.StatusFunc {
	return func(message string, phase assistant.Phase) {
		if err := events.Emit(a.bus, events.TopicStatus, statusEvent{Message: message, Phase: phase}); err != nil {
			a.logger.Debug("status dropped", "error", err)
		}
	}
}

// watchSettings reloads the settings file until ctx ends.
func (a *app) watchSettings(ctx context.Context) {
	a.settings.OnChange(func(changed []string) {
		a.logger.Info("settings changed", "keys", changed)
	})
	go func() {
		if err := a.settings.Watch(ctx); err != nil {
			a.logger.Warn("settings watcher stopped", "error", err)
		}
	}()
}
