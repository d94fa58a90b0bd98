package email

import (
	"github.com/smallbiznis/recouply/internal/config"
	"github.com/smallbiznis/recouply/internal/outreach/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
)

// NewFromConfig returns no dispatcher when SMTP is not configured; drafts
// then wait for the dispatch-result callback.
func NewFromConfig(cfg config.Config, log *zap.Logger) domain.Dispatcher {
	if !cfg.Email.Enabled() {
		log.Info("smtp not configured, outreach dispatch disabled")
		return nil
	}
	return NewDispatcher(NewSMTP(Config{
		Host:     cfg.Email.SMTPHost,
		Port:     cfg.Email.SMTPPort,
		Username: cfg.Email.SMTPUsername,
		Password: cfg.Email.SMTPPassword,
		From:     cfg.Email.SMTPFrom,
	}))
}
