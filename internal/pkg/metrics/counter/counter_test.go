package counter

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ReportFox/app/models"
	"github.com/ManuelReschke/ReportFox/internal/pkg/database/dbtest"
)

func TestFlushAppliesPendingViews(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	db := dbtest.Open(t)

	a := models.Report{Title: "Alpha", Active: true, SourceRef: "a.pdf", ViewCount: 5}
	b := models.Report{Title: "Beta", Active: true, SourceRef: "b.pdf"}
	require.NoError(t, db.Create(&a).Error)
	require.NoError(t, db.Create(&b).Error)

	c := NewViewCounter(rdb, db)
	ctx := context.Background()

	n, err := c.Flush(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing pending yet")

	for i := 0; i < 3; i++ {
		require.NoError(t, c.AddReportView(ctx, a.ID))
	}
	require.NoError(t, c.AddReportView(ctx, b.ID))

	n, err = c.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var got models.Report
	require.NoError(t, db.First(&got, a.ID).Error)
	assert.Equal(t, int64(8), got.ViewCount)
	require.NoError(t, db.First(&got, b.ID).Error)
	assert.Equal(t, int64(1), got.ViewCount)

	// drained: a second flush is a no-op
	n, err = c.Flush(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, mr.Exists(reportViewsKey))
}
