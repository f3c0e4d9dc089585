package usecase

import (
	"context"
	"encoding/json"
	"errors"

	"AlphaNebula/internal/domain/models"
	domrepo "AlphaNebula/internal/domain/repository"
	applogger "AlphaNebula/pkg/logger"
	"AlphaNebula/pkg/queue"
)

// ReviewSweepType is the queue message type of ReviewSweepJob.
const ReviewSweepType = "review.sweep"

// ReviewSweep narrows a sweep to pending items with the given normalized name.
type ReviewSweep struct {
	RawName string `json:"raw_name,omitempty"`
}

// ReviewSweepJob re-resolves pending review items after the alias set changed and
// clears the ones that now link.
type ReviewSweepJob struct {
	resolver *EntityResolver
	review   domrepo.ReviewQueue
	curation *AliasCuration
	batch    int
	log      *applogger.Logger
}

func NewReviewSweepJob(resolver *EntityResolver, review domrepo.ReviewQueue, curation *AliasCuration, l *applogger.Logger) *ReviewSweepJob {
	if l == nil {
		l = applogger.Nop()
	}
	return &ReviewSweepJob{resolver: resolver, review: review, curation: curation, batch: 500, log: l.Component("review_sweep")}
}

var _ queue.Job = (*ReviewSweepJob)(nil)

func (j *ReviewSweepJob) Name() string { return "review-sweep" }
func (j *ReviewSweepJob) Type() string { return ReviewSweepType }

func (j *ReviewSweepJob) Handle(ctx context.Context, payload json.RawMessage) error {
	p, err := queue.Decode[ReviewSweep](payload)
	if err != nil {
		return err
	}
	_, err = j.Sweep(ctx, p)
	return err
}

// Sweep returns how many items were linked and removed from the queue.
func (j *ReviewSweepJob) Sweep(ctx context.Context, p ReviewSweep) (int, error) {
	items, err := j.review.Pending(ctx, j.batch, 0)
	if err != nil {
		return 0, err
	}
	want := models.NormalizeName(p.RawName)

	var (
		linked int
		errs   []error
	)
	for _, item := range items {
		if want != "" && models.NormalizeName(item.RawName) != want {
			continue
		}
		res, err := j.resolver.Resolve(ctx, models.RawMention{RawName: item.RawName, Source: item.Source, EntityType: item.EntityType})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !res.Linked() {
			continue
		}
		if _, err := j.curation.Discard(ctx, item.ID); err != nil && !errors.Is(err, models.ErrReviewItemNotFound) {
			errs = append(errs, err)
			continue
		}
		linked++
		j.log.Info("review item linked by sweep",
			applogger.String("review_id", item.ID),
			applogger.String("raw_name", item.RawName),
			applogger.String("ticker", *res.Ticker))
	}
	return linked, errors.Join(errs...)
}
