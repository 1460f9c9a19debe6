package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"reaperd/internal/config"
	"reaperd/internal/confirm"
	"reaperd/internal/eventstore"
	"reaperd/internal/httpapi"
	"reaperd/internal/notifier"
	"reaperd/internal/proxmox"
	"reaperd/internal/scheduler"
	"reaperd/internal/transport"
	"reaperd/internal/transport/slack"
	"reaperd/internal/transport/telegram"
	logx "reaperd/pkg/logx"
)

// The converters below turn the string-typed file config into the runtime
// configs each service takes. All duration parsing happens here so a bad
// value is rejected at load/reload time instead of deep inside a service.

func buildLogging(cfg config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   cfg.Level,
		Console: cfg.Console,
		File: logx.FileConfig{
			Enabled: cfg.File.Enabled,
			Path:    cfg.File.Path,
		},
	}
}

func buildEngineConfig(cfg config.SchedulerConfig) (scheduler.Config, error) {
	deleteAfter, err := config.ParseDurationField("scheduler.delete_after", cfg.DeleteAfter)
	if err != nil {
		return scheduler.Config{}, err
	}
	reminderLead, err := config.ParseDurationField("scheduler.reminder_lead", cfg.ReminderLead)
	if err != nil {
		return scheduler.Config{}, err
	}
	adapterTimeout, err := config.ParseDurationField("scheduler.adapter_timeout", cfg.AdapterTimeout)
	if err != nil {
		return scheduler.Config{}, err
	}
	retryInterval, err := config.ParseDurationField("scheduler.retry_interval", cfg.RetryInterval)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		DeleteAfter:    deleteAfter,
		ReminderLead:   reminderLead,
		AdapterTimeout: adapterTimeout,
		Retry: scheduler.RetryConfig{
			Interval:    retryInterval,
			MaxAttempts: cfg.RetryMaxAttempts,
		},
	}, nil
}

func buildPollConfig(cfg config.SchedulerConfig) (scheduler.ServiceConfig, error) {
	spec, err := scheduler.ParsePollSpec(cfg.Poll)
	if err != nil {
		return scheduler.ServiceConfig{}, fmt.Errorf("scheduler.poll: %w", err)
	}
	return scheduler.ServiceConfig{Enabled: cfg.Enabled, Poll: spec}, nil
}

func buildGateConfig(cfg config.ConfirmationConfig) (confirm.Config, error) {
	grace, err := config.ParseDurationField("confirmation.grace_window", cfg.GraceWindow)
	if err != nil {
		return confirm.Config{}, err
	}
	return confirm.Config{GraceWindow: grace}, nil
}

func buildNotifierConfig(cfg *config.NotifierConfig) (notifier.Config, error) {
	if cfg == nil {
		// Omitted section means enabled with defaults.
		return notifier.Config{Enabled: true}, nil
	}
	retryBase, err := config.ParseDurationField("notifier.retry_base", cfg.RetryBase)
	if err != nil {
		return notifier.Config{}, err
	}
	retryMaxDelay, err := config.ParseDurationField("notifier.retry_max_delay", cfg.RetryMaxDelay)
	if err != nil {
		return notifier.Config{}, err
	}
	sendTimeout, err := config.ParseDurationField("notifier.send_timeout", cfg.SendTimeout)
	if err != nil {
		return notifier.Config{}, err
	}
	dedupWindow, err := config.ParseDurationField("notifier.dedup_window", cfg.DedupWindow)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Enabled:         cfg.Enabled,
		Workers:         cfg.Workers,
		QueueSize:       cfg.QueueSize,
		RatePerSec:      cfg.RatePerSec,
		RetryMax:        cfg.RetryMax,
		RetryBase:       retryBase,
		RetryMaxDelay:   retryMaxDelay,
		SendTimeout:     sendTimeout,
		DedupWindow:     dedupWindow,
		DedupMaxEntries: cfg.DedupMaxEntries,
	}, nil
}

func buildStoreConfig(cfg *config.StorageConfig) (eventstore.Config, error) {
	if cfg == nil {
		return eventstore.Config{Driver: "memory"}, nil
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.BusyTimeout)
	if err != nil {
		return eventstore.Config{}, err
	}
	return eventstore.Config{
		Driver:      cfg.Driver,
		Path:        cfg.Path,
		BusyTimeout: busy,
	}, nil
}

func buildProxmoxConfig(cfg config.ProxmoxConfig) (proxmox.Config, error) {
	timeout, err := config.ParseDurationOrDefault("proxmox.timeout", cfg.Timeout, 10*time.Second)
	if err != nil {
		return proxmox.Config{}, err
	}
	return proxmox.Config{
		BaseURL:            cfg.BaseURL,
		TokenID:            cfg.TokenID,
		TokenSecret:        cfg.TokenSecret,
		Node:               cfg.Node,
		Timeout:            timeout,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}, nil
}

func buildAPIConfig(cfg *config.APIConfig) (httpapi.Config, error) {
	if cfg == nil {
		return httpapi.Config{}, nil
	}
	readTimeout, err := config.ParseDurationField("api.read_timeout", cfg.ReadTimeout)
	if err != nil {
		return httpapi.Config{}, err
	}
	writeTimeout, err := config.ParseDurationField("api.write_timeout", cfg.WriteTimeout)
	if err != nil {
		return httpapi.Config{}, err
	}
	idleTimeout, err := config.ParseDurationField("api.idle_timeout", cfg.IdleTimeout)
	if err != nil {
		return httpapi.Config{}, err
	}
	return httpapi.Config{
		Enabled:      cfg.Enabled,
		Addr:         cfg.Addr,
		Token:        cfg.Token,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}, nil
}

// buildTransport selects and constructs the chat adapter. Driver changes
// require a restart; only the notifier settings on top of it hot-reload.
func buildTransport(cfg config.TransportConfig, log logx.Logger) (transport.Adapter, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "slack", "":
		if cfg.Slack == nil {
			return nil, errors.New("transport.slack section is required for the slack driver")
		}
		return slack.New(slack.Config{
			BotToken:       cfg.Slack.BotToken,
			DefaultChannel: cfg.Slack.DefaultChannel,
		}, log)
	case "telegram":
		if cfg.Telegram == nil {
			return nil, errors.New("transport.telegram section is required for the telegram driver")
		}
		pollTimeout, err := config.ParseDurationField("transport.telegram.poll_timeout", cfg.Telegram.PollTimeout)
		if err != nil {
			return nil, err
		}
		return telegram.New(telegram.Config{
			Token:         cfg.Telegram.Token,
			DefaultChatID: cfg.Telegram.DefaultChatID,
			Timeout:       pollTimeout,
		}, log)
	default:
		return nil, fmt.Errorf("unknown transport driver %q", cfg.Driver)
	}
}

// validate parses every section so Watch can reject a bad file before any
// service sees it.
func validate(cfg *config.Config) error {
	if _, err := buildEngineConfig(cfg.Scheduler); err != nil {
		return err
	}
	if _, err := buildPollConfig(cfg.Scheduler); err != nil {
		return err
	}
	if _, err := buildGateConfig(cfg.Confirmation); err != nil {
		return err
	}
	if _, err := buildNotifierConfig(cfg.Notifier); err != nil {
		return err
	}
	if _, err := buildStoreConfig(cfg.Storage); err != nil {
		return err
	}
	if _, err := buildProxmoxConfig(cfg.Proxmox); err != nil {
		return err
	}
	if _, err := buildAPIConfig(cfg.API); err != nil {
		return err
	}
	return nil
}
