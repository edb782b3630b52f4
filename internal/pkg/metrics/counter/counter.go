package counter

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/DragosMatei/KeyGate/internal/pkg/cache"
	"github.com/DragosMatei/KeyGate/internal/pkg/database"
)

const (
	licenseChecksKey = "license:counters:checks"
)

// AddLicenseCheck increments the pending check counter for a license in
// Redis. The buffered counts are flushed to the licenses table in batches,
// so concurrent validations never fight over the same row.
func AddLicenseCheck(licenseID uint) error {
	ctx := context.Background()
	field := strconv.FormatUint(uint64(licenseID), 10)
	return cache.GetClient().HIncrBy(ctx, licenseChecksKey, field, 1).Err()
}

// FlushAll flushes the buffered check counters to the database
func FlushAll() error {
	return flushHashToTable(licenseChecksKey, "licenses", "check_count")
}

// flushHashToTable drains a Redis hash atomically and applies batched increments.
// Uses RENAME to a temporary key for atomic drain without losing in-flight increments.
func flushHashToTable(redisKey, table, column string) error {
	ctx := context.Background()
	rdb := cache.GetClient()

	// Atomically move the hash to a temp key for draining
	tmpKey := fmt.Sprintf("%s:tmp:%d", redisKey, time.Now().UnixNano())
	if err := rdb.Do(ctx, "RENAME", redisKey, tmpKey).Err(); err != nil {
		// If key does not exist, nothing to flush
		if strings.Contains(strings.ToLower(err.Error()), "no such key") {
			return nil
		}
		// Some Redis libs return redis.Nil; treat as empty
		if err.Error() == "redis: nil" {
			return nil
		}
		return err
	}

	// Ensure cleanup of tmpKey even if later steps fail
	defer rdb.Del(ctx, tmpKey)

	data, err := rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	pairs := parsePairs(data)
	if len(pairs) == 0 {
		return nil
	}

	sql, args := buildIncrementSQL(table, column, pairs)
	db := database.GetDB()
	if err := db.Exec(sql, args...).Error; err != nil {
		// Merge the drained counts back onto the live hash so a DB outage
		// only delays the flush. HIncrBy folds them in with whatever
		// accumulated there in the meantime.
		for _, p := range pairs {
			_ = rdb.HIncrBy(ctx, redisKey, strconv.FormatUint(p.id, 10), p.inc).Err()
		}
		return err
	}
	return nil
}

type pair struct {
	id  uint64
	inc int64
}

// parsePairs turns a drained hash into sorted (id, increment) pairs,
// dropping unparseable fields and zero increments.
func parsePairs(data map[string]string) []pair {
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
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].id < pairs[j].id })
	return pairs
}

// buildIncrementSQL renders one batched
// UPDATE <table> SET <col> = <col> + CASE id WHEN ? THEN ? ... END WHERE id IN (...)
func buildIncrementSQL(table, column string, pairs []pair) (string, []interface{}) {
	var builder strings.Builder
	args := make([]interface{}, 0, len(pairs)*3)
	builder.WriteString("UPDATE ")
	builder.WriteString(table)
	builder.WriteString(" SET ")
	builder.WriteString(column)
	builder.WriteString(" = ")
	builder.WriteString(column)
	builder.WriteString(" + CASE id ")
	for _, p := range pairs {
		builder.WriteString(" WHEN ? THEN ?")
		args = append(args, p.id, p.inc)
	}
	builder.WriteString(" END WHERE id IN (")
	for i, p := range pairs {
		if i > 0 {
			builder.WriteString(",")
		}
		builder.WriteString("?")
		args = append(args, p.id)
	}
	builder.WriteString(")")
	return builder.String(), args
}
