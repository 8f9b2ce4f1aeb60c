package scheduler

import (
	"context"

	campaigndomain "github.com/smallbiznis/matchhub/internal/campaign/domain"
	chatdomain "github.com/smallbiznis/matchhub/internal/chat/domain"
	obslogger "github.com/smallbiznis/matchhub/internal/observability/logger"
	"go.uber.org/zap"
)

// Notifier receives what each sweep changed so the participants can be told.
type Notifier interface {
	CampaignsExpired(ctx context.Context, expired []campaigndomain.ExpiredCampaign)
	SelectionsLapsed(ctx context.Context, lapsed []chatdomain.LapsedSelection)
}

// LogNotifier writes one structured line per affected campaign.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log.Named("scheduler.notifier")}
}

func (n *LogNotifier) CampaignsExpired(ctx context.Context, expired []campaigndomain.ExpiredCampaign) {
	log := obslogger.WithContext(ctx, n.log)
	for _, e := range expired {
		log.Info("campaign.expired",
			zap.Int64("campaign_id", e.CampaignID),
			zap.Int64("requester_user_id", e.RequesterUserID),
			zap.Int64s("producer_user_ids", e.ProducerUserIDs),
		)
	}
}

func (n *LogNotifier) SelectionsLapsed(ctx context.Context, lapsed []chatdomain.LapsedSelection) {
	log := obslogger.WithContext(ctx, n.log)
	for _, l := range lapsed {
		log.Info("selection.lapsed",
			zap.Int64("campaign_id", l.CampaignID),
			zap.Int64("offer_id", l.OfferID),
			zap.Int64("requester_user_id", l.RequesterUserID),
			zap.Int64("producer_user_id", l.ProducerUserID),
		)
	}
}
