package counter

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const reportViewsKey = "report:counters:views"

// ViewCounter buffers report views in a Redis hash and periodically folds
// them into reports.view_count.
type ViewCounter struct {
	rdb *redis.Client
	db  *gorm.DB
}

func NewViewCounter(rdb *redis.Client, db *gorm.DB) *ViewCounter {
	return &ViewCounter{rdb: rdb, db: db}
}

// AddReportView increments the pending view counter for a report in Redis
func (c *ViewCounter) AddReportView(ctx context.Context, reportID uint) error {
	field := strconv.FormatUint(uint64(reportID), 10)
	return c.rdb.HIncrBy(ctx, reportViewsKey, field, 1).Err()
}

// Flush drains the pending counters and returns the number of reports updated.
func (c *ViewCounter) Flush(ctx context.Context) (int, error) {
	return c.flushHashToTable(ctx, reportViewsKey, "reports", "view_count")
}

func isNoSuchKey(err error) bool {
	if err == redis.Nil {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such key")
}

// flushHashToTable drains a Redis hash and applies batched increments.
// RENAME to a temporary key makes the drain atomic without losing
// increments that arrive meanwhile.
func (c *ViewCounter) flushHashToTable(ctx context.Context, redisKey, table, column string) (int, error) {
	tmpKey := fmt.Sprintf("%s:tmp:%d", redisKey, time.Now().UnixNano())
	if err := c.rdb.Rename(ctx, redisKey, tmpKey).Err(); err != nil {
		if isNoSuchKey(err) {
			return 0, nil
		}
		return 0, err
	}
	defer c.rdb.Del(context.WithoutCancel(ctx), tmpKey)

	data, err := c.rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return 0, err
	}

	type pair struct {
		id  uint64
		inc int64
	}
	pairs := make([]pair, 0, len(data))
	for k, v := range data {
		id, perr := strconv.ParseUint(k, 10, 64)
		if perr != nil {
			continue
		}
		inc, ierr := strconv.ParseInt(v, 10, 64)
		if ierr != nil || inc == 0 {
			continue
		}
		pairs = append(pairs, pair{id: id, inc: inc})
	}
	if len(pairs) == 0 {
		return 0, nil
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].id < pairs[j].id })

	// UPDATE reports SET view_count = view_count + CASE id WHEN ? THEN ? ... END WHERE id IN (...)
	var b strings.Builder
	args := make([]interface{}, 0, len(pairs)*3)
	fmt.Fprintf(&b, "UPDATE %s SET %s = %s + CASE id", table, column, column)
	for _, p := range pairs {
		b.WriteString(" WHEN ? THEN ?")
		args = append(args, p.id, p.inc)
	}
	b.WriteString(" END WHERE id IN (")
	for i, p := range pairs {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("?")
		args = append(args, p.id)
	}
	b.WriteString(")")

	if err := c.db.WithContext(ctx).Exec(b.String(), args...).Error; err != nil {
		return 0, err
	}
	return len(pairs), nil
}
