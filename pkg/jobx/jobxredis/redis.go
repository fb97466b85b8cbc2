package jobxredis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Abraxas-365/nexus-iam/pkg/errx"
	"github.com/Abraxas-365/nexus-iam/pkg/jobx"
)

const (
	// finished jobs stay readable for this long
	defaultRetention = 24 * time.Hour
	deadListCap      = 1000
)

// RedisQueue keeps each job as a JSON string, ready ids in a list per queue
// and delayed ids in a sorted set scored by unix run time.
type RedisQueue struct {
	rdb       *redis.Client
	retention time.Duration
}

var _ jobx.Queue = (*RedisQueue)(nil)

func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb, retention: defaultRetention}
}

func readyKey(queue string) string     { return "jobx:ready:" + queue }
func scheduledKey(queue string) string { return "jobx:scheduled:" + queue }
func deadKey(queue string) string      { return "jobx:dead:" + queue }
func jobKey(id string) string          { return "jobx:job:" + id }

func (q *RedisQueue) Push(ctx context.Context, job *jobx.JobInfo, now time.Time) error {
	data, err := json.Marshal(job)
	if err != nil {
		return ErrRegistry.NewWithCause(CodeCorrupt, err)
	}
	_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, jobKey(job.ID), data, 0)
		if job.RunAt.After(now) {
			pipe.ZAdd(ctx, scheduledKey(job.Queue), redis.Z{Score: float64(job.RunAt.Unix()), Member: job.ID})
		} else {
			pipe.LPush(ctx, readyKey(job.Queue), job.ID)
		}
		return nil
	})
	if err != nil {
		return storeErr(err, "push").WithDetail("queue", job.Queue)
	}
	return nil
}

func (q *RedisQueue) Pop(ctx context.Context, queues []string, wait time.Duration) (*jobx.JobInfo, error) {
	keys := make([]string, len(queues))
	for i, name := range queues {
		keys[i] = readyKey(name)
	}

	res, err := q.rdb.BRPop(ctx, wait, keys...).Result()
	if errors.Is(err, redis.Nil) || ctx.Err() != nil {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(err, "pop")
	}

	// res is [key, id]
	job, err := q.Get(ctx, res[1])
	if errx.IsCode(err, jobx.CodeJobNotFound) {
		// the job record expired while its id sat in the list
		return nil, nil
	}
	return job, err
}

func (q *RedisQueue) Ack(ctx context.Context, job *jobx.JobInfo) error {
	return q.store(ctx, job, q.retention, "ack")
}

func (q *RedisQueue) Reschedule(ctx context.Context, job *jobx.JobInfo) error {
	data, err := json.Marshal(job)
	if err != nil {
		return ErrRegistry.NewWithCause(CodeCorrupt, err)
	}
	_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, jobKey(job.ID), data, 0)
		pipe.ZAdd(ctx, scheduledKey(job.Queue), redis.Z{Score: float64(job.RunAt.Unix()), Member: job.ID})
		return nil
	})
	if err != nil {
		return storeErr(err, "reschedule").WithDetail("job_id", job.ID)
	}
	return nil
}

func (q *RedisQueue) Bury(ctx context.Context, job *jobx.JobInfo) error {
	data, err := json.Marshal(job)
	if err != nil {
		return ErrRegistry.NewWithCause(CodeCorrupt, err)
	}
	_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, jobKey(job.ID), data, q.retention)
		pipe.LPush(ctx, deadKey(job.Queue), job.ID)
		pipe.LTrim(ctx, deadKey(job.Queue), 0, deadListCap-1)
		return nil
	})
	if err != nil {
		return storeErr(err, "bury").WithDetail("job_id", job.ID)
	}
	return nil
}

var promoteScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for _, id in ipairs(ids) do
    redis.call('LPUSH', KEYS[2], id)
end
if #ids > 0 then
    redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
end
return #ids
`)

func (q *RedisQueue) PromoteDue(ctx context.Context, queues []string, now time.Time) error {
	ts := strconv.FormatInt(now.Unix(), 10)
	for _, name := range queues {
		err := promoteScript.Run(ctx, q.rdb, []string{scheduledKey(name), readyKey(name)}, ts).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			return storeErr(err, "promote").WithDetail("queue", name)
		}
	}
	return nil
}

func (q *RedisQueue) Get(ctx context.Context, id string) (*jobx.JobInfo, error) {
	data, err := q.rdb.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, jobx.ErrRegistry.New(jobx.CodeJobNotFound).WithDetail("job_id", id)
	}
	if err != nil {
		return nil, storeErr(err, "get").WithDetail("job_id", id)
	}
	var job jobx.JobInfo
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, ErrRegistry.NewWithCause(CodeCorrupt, err).WithDetail("job_id", id)
	}
	return &job, nil
}

func (q *RedisQueue) store(ctx context.Context, job *jobx.JobInfo, ttl time.Duration, op string) error {
	data, err := json.Marshal(job)
	if err != nil {
		return ErrRegistry.NewWithCause(CodeCorrupt, err)
	}
	if err := q.rdb.Set(ctx, jobKey(job.ID), data, ttl).Err(); err != nil {
		return storeErr(err, op).WithDetail("job_id", job.ID)
	}
	return nil
}

func storeErr(err error, op string) *errx.Error {
	return ErrRegistry.NewWithCause(CodeStore, err).WithDetail("op", op)
}
