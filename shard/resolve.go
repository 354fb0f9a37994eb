package shard

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/ceyewan/dbroute/clog"
	"github.com/ceyewan/dbroute/xerrors"
)

// keyInt64 将分片键转换为整数，字符串按十进制解析
func keyInt64(key any) (int64, error) {
	switch v := key.(type) {
	case nil, bool:
		return 0, xerrors.Wrapf(ErrInvalidKey, "want integer key, got %T", key)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, xerrors.Wrapf(ErrInvalidKey, "key %q is not an integer", v)
		}
		return n, nil
	case []byte:
		return keyInt64(string(v))
	case float32:
		return keyInt64(float64(v))
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || math.IsNaN(v) {
			return 0, xerrors.Wrapf(ErrInvalidKey, "key %v is not an integer", v)
		}
		return int64(v), nil
	}
	n, err := cast.ToInt64E(key)
	if err != nil {
		return 0, xerrors.Wrapf(ErrInvalidKey, "key %v: %v", key, err)
	}
	return n, nil
}

// keyTime 将分片键转换为时间，支持 time.Time 与可解析的日期字符串
func keyTime(key any, loc *time.Location) (time.Time, error) {
	switch v := key.(type) {
	case time.Time:
		return v.In(loc), nil
	case *time.Time:
		if v != nil {
			return v.In(loc), nil
		}
	default:
		s, err := cast.ToStringE(key)
		if err == nil {
			t, perr := parseDate(s, loc)
			if perr == nil {
				return t, nil
			}
			err = perr
		}
		return time.Time{}, xerrors.Wrapf(ErrInvalidKey, "key %v is not a date: %v", key, err)
	}
	return time.Time{}, xerrors.Wrap(ErrInvalidKey, "key is nil")
}

func resolveMod(rule ModRule, key any) (string, string, error) {
	k, err := keyInt64(key)
	if err != nil {
		return "", "", err
	}
	r := k % rule.Modulus
	if r < 0 {
		r += rule.Modulus
	}
	return rule.Partitions[r], "_" + strconv.FormatInt(r, 10), nil
}

func resolveDate(rule DateRule, key any, o *options) (string, string, error) {
	t, err := keyTime(key, o.location)
	if err != nil {
		return "", "", err
	}
	now := o.now()
	for _, e := range rule.Entries {
		if e.contains(t, now) {
			return e.Node, dateSuffix(rule.Granularity, t), nil
		}
	}
	return "", "", xerrors.Wrapf(ErrKeyOutOfRange, "date %s", t.Format(time.DateOnly))
}

// dateSuffix 按粒度生成分表后缀：_2024、_2024A、_2024S3、_202403
func dateSuffix(g Granularity, t time.Time) string {
	year, month := t.Year(), int(t.Month())
	switch g {
	case GranularityYear:
		return fmt.Sprintf("_%d", year)
	case GranularityHalfYear:
		if month <= 6 {
			return fmt.Sprintf("_%dA", year)
		}
		return fmt.Sprintf("_%dB", year)
	case GranularitySeason:
		return fmt.Sprintf("_%dS%d", year, (month-1)/3+1)
	default:
		return fmt.Sprintf("_%d%02d", year, month)
	}
}

// resolveHistory 键形如 "date"、"@status" 或 "date@status"
func resolveHistory(rule HistoryRule, key any, o *options) (string, string, error) {
	var (
		date    time.Time
		hasDate bool
		status  string
	)

	switch v := key.(type) {
	case time.Time:
		date, hasDate = v.In(o.location), true
	default:
		s, err := cast.ToStringE(key)
		if err != nil {
			return "", "", xerrors.Wrapf(ErrInvalidKey, "history key %v: %v", key, err)
		}
		datePart, statusPart, _ := strings.Cut(s, "@")
		status = strings.TrimSpace(statusPart)
		if strings.TrimSpace(datePart) != "" && rule.Cutoff != nil {
			date, err = keyTime(datePart, o.location)
			if err != nil {
				return "", "", err
			}
			hasDate = true
		}
	}

	dateHit := hasDate && rule.Cutoff != nil && date.Before(rule.Cutoff.Before(o.now()))
	statusHit := rule.Status != "" && status != "" && status == rule.Status

	archived := dateHit || statusHit
	if rule.Conds == CondsBoth {
		archived = dateHit && statusHit
	}
	if archived {
		return rule.History, "_h", nil
	}
	return rule.Current, "", nil
}

func resolveRange(rule RangeRule, key any) (string, string, error) {
	k, err := keyInt64(key)
	if err != nil {
		return "", "", err
	}
	for _, r := range rule.Ranges {
		if r.contains(k) {
			return r.Node, "_" + r.Label, nil
		}
	}
	return "", "", xerrors.Wrapf(ErrKeyOutOfRange, "key %d", k)
}

// mapBucket 以键的末 3 位为 field、其余前缀为 bucket，长度不超过 3 的键都落在 table:0
func mapBucket(table, key string) (string, string) {
	if len(key) <= 3 {
		return table + ":0", key
	}
	cut := len(key) - 3
	return table + ":" + key[:cut], key[cut:]
}

func (r *Router) resolveMap(ctx context.Context, topo *Topology, desc *Descriptor, rule MapRule, key any) (string, string, error) {
	skey, err := cast.ToStringE(key)
	if err != nil || skey == "" {
		return "", "", xerrors.Wrapf(ErrInvalidKey, "map key %v", key)
	}

	store, err := r.opts.dialer.Dial(ctx, rule.Endpoint)
	if err != nil {
		return "", "", storeError(err, "dial %s", rule.Endpoint)
	}

	bucket, field := mapBucket(desc.Table, skey)
	value, ok, err := store.Get(ctx, bucket, field)
	if err != nil {
		return "", "", storeError(err, "get %s %s", bucket, field)
	}
	r.metrics.observeAssignment(ctx, ok)

	if !ok {
		fresh := pickWeighted(desc.Primaries, r.opts.rand)
		if desc.SplitTable {
			ids := rule.Partitions[fresh]
			fresh += ":" + strconv.Itoa(ids[r.opts.rand.IntN(len(ids))])
		}
		value, err = store.SetIfAbsent(ctx, bucket, field, fresh)
		if err != nil {
			return "", "", storeError(err, "set %s %s", bucket, field)
		}
		if value != fresh {
			r.logger.InfoContext(ctx, "map assignment written concurrently, using stored value",
				clog.String("bucket", bucket), clog.String("field", field), clog.String("value", value))
		}
	}
	return parseAssignment(topo, desc, value)
}

func storeError(err error, format string, args ...any) error {
	if xerrors.Is(err, ErrStoreUnavailable) {
		return xerrors.Wrapf(err, format, args...)
	}
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, fmt.Sprintf(format, args...), err)
}

// parseAssignment 解析 "node" 或 "node:partition"
func parseAssignment(topo *Topology, desc *Descriptor, value string) (string, string, error) {
	name, id, hasID := strings.Cut(value, ":")
	node := normalizeName(name)
	if _, ok := topo.Nodes[node]; !ok {
		return "", "", xerrors.Wrapf(ErrInvalidAssignment, "stored value %q names unknown node", value)
	}
	if !desc.SplitTable {
		return node, "", nil
	}
	if !hasID {
		return "", "", xerrors.Wrapf(ErrInvalidAssignment, "stored value %q has no partition id", value)
	}
	n, err := strconv.Atoi(strings.TrimSpace(id))
	if err != nil || n < 0 {
		return "", "", xerrors.Wrapf(ErrInvalidAssignment, "stored value %q has invalid partition id", value)
	}
	return node, "_" + strconv.Itoa(n), nil
}

func resolveUDF(ctx context.Context, desc *Descriptor, rule UDFRule, key any, class ReplicaClass) (*Target, error) {
	target, err := rule.Func(ctx, desc.Table, key, class, rule.Args)
	if err != nil {
		return nil, fmt.Errorf("%w: table %s udf %s: %w", ErrUDFFailure, desc.Table, rule.Name, err)
	}
	if target == nil {
		return nil, xerrors.Wrapf(ErrUDFFailure, "table %s udf %s returned no target", desc.Table, rule.Name)
	}
	return target, nil
}
