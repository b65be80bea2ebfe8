package bootstrap

import (
	"context"
	"io"
	"log/slog"

	"voicequery/internal/audio"
	"voicequery/internal/classifier"
	"voicequery/internal/config"
	"voicequery/internal/ports"
	"voicequery/internal/providers/deepgram"
	"voicequery/internal/rules"
	"voicequery/internal/speech"
	"voicequery/internal/telemetry"
	"voicequery/internal/usecase"
	"voicequery/internal/viewer"
)

// Shell is what a front end supplies to the runtime graph.
type Shell struct {
	Events      ports.EventSink
	Navigator   ports.Navigator
	Synthesizer ports.Synthesizer
	// LogOutput defaults to stderr.
	LogOutput io.Writer
}

// Services is the assembled runtime graph.
type Services struct {
	Pipeline *usecase.Pipeline
	Fetcher  *viewer.Fetcher
	Config   config.Config
	Logger   *slog.Logger
}

// Build wires all backend dependencies for the current runtime.
func Build(ctx context.Context, shell Shell) (Services, error) {
	cfg, src, err := config.LoadWithSource()
	if err != nil {
		return Services{}, err
	}

	logger := telemetry.NewLogger(telemetry.LogConfig{Level: cfg.Log.Level, Format: cfg.Log.Format}, shell.LogOutput)
	logger.Debug("config_loaded", "config_file", src.ConfigFile, "env_file", src.EnvFile)

	normalizer, err := rules.Load(cfg.Rules.Path, cfg.Rules.IterationLimit)
	if err != nil {
		return Services{}, err
	}
	logger.Debug("rules_loaded", "path", cfg.Rules.Path, "rules", normalizer.Len())

	recognizer := speech.NewStreamRecognizer(
		audio.NewRecorder(audio.RecorderConfig{Binary: cfg.Audio.RecorderCommand}, telemetry.Component(logger, "audio")),
		deepgram.NewProvider(deepgram.Config{
			APIKey:         cfg.Deepgram.APIKey,
			APIBaseURL:     cfg.Deepgram.APIBaseURL,
			Model:          cfg.Deepgram.Model,
			Language:       cfg.Deepgram.Language,
			SmartFormat:    cfg.Deepgram.SmartFormat,
			EndpointingMS:  cfg.Deepgram.EndpointingMS,
			UtteranceEndMS: cfg.Deepgram.UtteranceEndMS,
		}),
		speech.Config{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			Streaming: ports.StreamingConfig{
				SampleRate:     cfg.Audio.SampleRate,
				Channels:       cfg.Audio.Channels,
				Encoding:       "linear16",
				InterimResults: true,
			},
			ChunkSize:    cfg.Speech.ChunkSize,
			DrainTimeout: cfg.Speech.DrainTimeout,
		},
		telemetry.Component(logger, "speech"),
	)

	pipeline := usecase.NewPipeline(
		ctx,
		usecase.Dependencies{
			Recognizer: recognizer,
			Classifier: classifier.New(classifier.Config{
				BaseURL: cfg.Dispatch.ClassifierURL,
				Timeout: cfg.Dispatch.ClassifierTimeout,
			}, telemetry.Component(logger, "classifier")),
			Normalizer:  normalizer,
			Synthesizer: shell.Synthesizer,
			Navigator:   shell.Navigator,
			Events:      shell.Events,
		},
		usecase.Config{
			Capture: usecase.CaptureConfig{SilenceTimeout: cfg.Capture.SilenceTimeout},
			Confirmation: usecase.GateConfig{
				Window:   cfg.Confirmation.Window,
				TickRate: cfg.Confirmation.TickRate,
			},
			Dispatch: usecase.DispatchConfig{
				BackendOrigin: cfg.Dispatch.BackendOrigin,
				ViewerRoute:   cfg.Dispatch.ViewerRoute,
				AckPhrase:     cfg.Dispatch.AckPhrase,
				AckDelay:      cfg.Dispatch.AckDelay,
			},
		},
		usecase.Runtime{Logger: telemetry.Component(logger, "pipeline")},
	)

	return Services{
		Pipeline: pipeline,
		Fetcher:  viewer.NewFetcher(cfg.Viewer.Timeout, telemetry.Component(logger, "viewer")),
		Config:   cfg,
		Logger:   logger,
	}, nil
}
