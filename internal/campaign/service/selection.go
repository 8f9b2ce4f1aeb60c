package service

import (
	"context"
	"errors"

	"github.com/smallbiznis/matchhub/internal/campaign/domain"
	ledgerdomain "github.com/smallbiznis/matchhub/internal/ledger/domain"
	obslogger "github.com/smallbiznis/matchhub/internal/observability/logger"
	"github.com/smallbiznis/matchhub/internal/observability/tracing"
	"github.com/smallbiznis/matchhub/pkg/db"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const (
	selectionWon   = "won"
	selectionLost  = "lost"
	selectionError = "error"
)

// SelectOffer picks the winning offer of a campaign in one unit of work:
//
//  1. read offer, campaign and campaign status together;
//  2. give up, writing nothing, unless the status is selectable;
//  3. compare-and-swap the campaign to producer_selected, guarded on the
//     selectable statuses in the same statement;
//  4. mark the offer selected (only from active);
//  5. reject every other active offer of the campaign.
//
// Any zero-row guard aborts the whole unit of work, so a losing caller
// leaves no writes. The campaign row is always locked before any offer row,
// the same order CreateOffer uses, so concurrent selections queue on the
// campaign instead of deadlocking on each other's offers. Siblings are
// rejected last so that offers committed while we waited are included.
func (s *Service) SelectOffer(ctx context.Context, req domain.SelectOfferRequest) (bool, error) {
	if req.OfferID <= 0 {
		return false, domain.ErrInvalidID
	}
	ctx, span := s.tracer.Start(ctx, "campaign.SelectOffer")
	defer span.End()
	span.SetAttributes(tracing.SafeAttributes(attribute.Int64("offer_id", req.OfferID))...)

	now := s.clock.Now()
	var target *domain.SelectionTarget
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		var err error
		target, err = s.repo.FindSelectionTarget(ctx, tx, req.OfferID)
		if err != nil {
			return err
		}
		if target == nil {
			return domain.ErrOfferNotFound
		}
		if req.RequesterUserID != 0 && target.RequesterUserID != req.RequesterUserID {
			return domain.ErrForbidden
		}
		if !target.CampaignStatus.In(domain.SelectableStatuses) {
			return errSelectionLost
		}

		n, err := s.repo.CompareAndSwapSelection(ctx, tx, target.CampaignID, target.ProducerID, now)
		if err != nil {
			return err
		}
		if n == 0 {
			return errSelectionLost
		}

		n, err = s.repo.MarkOfferSelected(ctx, tx, target.OfferID)
		if err != nil {
			return err
		}
		if n == 0 {
			return errSelectionLost
		}

		if _, err := s.repo.RejectSiblings(ctx, tx, target.CampaignID, target.OfferID); err != nil {
			return err
		}

		campaignID, offerID := target.CampaignID, target.OfferID
		return s.ledger.Insert(ctx, tx, &ledgerdomain.Transaction{
			UserID:     target.RequesterUserID,
			CampaignID: &campaignID,
			OfferID:    &offerID,
			Type:       ledgerdomain.TypeAccess,
			Status:     ledgerdomain.StatusRecorded,
			CreatedAt:  now,
		})
	})

	log := obslogger.WithContext(ctx, s.log).With(zap.Int64("offer_id", req.OfferID))
	switch {
	case errors.Is(err, errSelectionLost):
		s.metrics.RecordSelection(ctx, selectionLost)
		span.SetAttributes(tracing.SafeAttributes(attribute.String("outcome", selectionLost))...)
		log.Info("offer selection lost", zap.Int64("campaign_id", target.CampaignID))
		return false, nil
	case err != nil:
		s.metrics.RecordSelection(ctx, selectionError)
		span.SetStatus(codes.Error, "selection failed")
		span.RecordError(tracing.SafeError(err))
		return false, err
	}

	s.metrics.RecordSelection(ctx, selectionWon)
	span.SetAttributes(tracing.SafeAttributes(attribute.String("outcome", selectionWon))...)
	log.Info("offer selected",
		zap.Int64("campaign_id", target.CampaignID),
		zap.Int64("producer_id", target.ProducerID),
	)
	return true, nil
}
