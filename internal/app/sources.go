package app

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/frontdesk-notify/internal/credential"
	"github.com/nhle/frontdesk-notify/internal/model"
	"github.com/nhle/frontdesk-notify/internal/source"
	"github.com/nhle/frontdesk-notify/internal/source/email"
	appsync "github.com/nhle/frontdesk-notify/internal/sync"
)

// registerSources registers each enabled source with the poller and
// returns how many were registered. Sources whose credentials or settings
// are unusable are skipped with a warning.
func registerSources(
	p *appsync.Poller,
	sources []model.SourceConfig,
	secret func(string) (string, error),
	log *logrus.Entry,
) int {
	registered := 0
	for _, src := range sources {
		if !src.Enabled {
			continue
		}

		switch src.Type {
		case string(source.SourceTypeEmail):
			adapter := createEmailAdapter(src, secret, log)
			if adapter == nil {
				continue
			}
			p.RegisterSource(adapter, time.Duration(src.PollIntervalSec)*time.Second)
			registered++
		}
	}
	return registered
}

// createEmailAdapter builds a mailbox adapter from a source configuration,
// loading the password from the system keyring.
func createEmailAdapter(
	src model.SourceConfig,
	secret func(string) (string, error),
	log *logrus.Entry,
) *email.Adapter {
	fields := logrus.Fields{"source": src.ID, "name": src.Name}

	password, err := secret(credential.SourceKey(src.ID))
	if err != nil || password == "" {
		log.WithFields(fields).WithError(err).Warn("skipping mailbox source: password not found in keyring")
		return nil
	}

	cfg, err := email.ConfigFromSource(src, password)
	if err != nil {
		log.WithFields(fields).WithError(err).Warn("skipping mailbox source")
		return nil
	}

	return email.NewAdapter(src.ID, cfg)
}
