package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AlphaNebula/internal/domain/models"
	applogger "AlphaNebula/pkg/logger"
	"AlphaNebula/pkg/queue"
)

func TestReviewSweepLinksCuratedNames(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, name := range []string{"Acme Widgets", "Globex Trading"} {
		res, err := f.resolver.Resolve(ctx, models.RawMention{RawName: name, Source: "news"})
		require.NoError(t, err)
		require.Equal(t, models.StatusQueuedForReview, res.Status)
	}
	require.Len(t, pending(t, f), 2)

	_, _, err := f.store.Upsert(ctx, models.EntityAlias{RawName: "Acme Widgets", Ticker: "ACME", EntityType: models.EntityTypeAlias, Confidence: 1, Source: models.SourceManual})
	require.NoError(t, err)

	job := NewReviewSweepJob(f.resolver, f.store, f.curation, applogger.Nop())
	n, err := job.Sweep(ctx, ReviewSweep{RawName: "globex trading"})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = job.Sweep(ctx, ReviewSweep{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	left := pending(t, f)
	require.Len(t, left, 1)
	assert.Equal(t, "Globex Trading", left[0].RawName)
}

func TestCurationSchedulesSweep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	q := queue.NewLocalQueue(applogger.Nop(), queue.Config{Workers: 1})
	t.Cleanup(func() { _ = q.Stop(context.Background()) })
	q.RegisterJob(NewReviewSweepJob(f.resolver, f.store, f.curation, applogger.Nop()))
	f.curation.SetSweeper(q)

	_, err := f.resolver.Resolve(ctx, models.RawMention{RawName: "Initech Systems", Source: "news"})
	require.NoError(t, err)
	require.Len(t, pending(t, f), 1)

	_, _, err = f.curation.Curate(ctx, models.EntityAlias{RawName: "Initech Systems", Ticker: "INTC2", Confidence: 1})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		items, err := f.store.Pending(ctx, 10, 0)
		return err == nil && len(items) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
