package engine

import (
	"context"
	"strings"

	"github.com/ferrychris/policyweb-sub000/internal/infra"
	"go.uber.org/zap"
)

// StartListener подписывается на Redis и обновляет состояние до отмены ctx.
func (m *KillSwitchManager) StartListener(ctx context.Context) {
	if m.rdb == nil {
		return
	}
	infra.ListenResilient(ctx, m.rdb, m.logger, infra.RedisChanKillSwitch,
		// За время разрыва сигналы потеряны, перечитываем SET целиком
		func() error { return m.reload(ctx) },
		m.apply,
	)
}

// apply разбирает "suspend:<type>" / "resume:<type>".
func (m *KillSwitchManager) apply(payload string) {
	action, typeID, ok := strings.Cut(payload, ":")
	if !ok || typeID == "" {
		m.logger.Warn("malformed kill-switch signal", zap.String("payload", payload))
		return
	}
	switch action {
	case signalSuspend:
		m.MarkAsBlocked(typeID)
	case signalResume:
		m.MarkAsUnblocked(typeID)
	default:
		m.logger.Warn("unknown kill-switch action", zap.String("payload", payload))
		return
	}
	m.logger.Info("kill-switch signal applied", zap.String("action", action), zap.String("type", typeID))
}
