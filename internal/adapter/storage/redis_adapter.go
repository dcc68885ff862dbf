package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/lesson-booking/internal/core/domain"
)

const (
	lessonKeyPrefix = "lesson:"
	lessonIndexKey  = "lessons"
	orderKeyPrefix  = "order:"
	orderIndexKey   = "orders"

	fieldSpaces = "spaces_available"
)

var decrementSpacesScript = redis.NewScript(`
local key = KEYS[1]
local quantity = tonumber(ARGV[1])

local current = redis.call('HGET', key, 'spaces_available')
if not current then
	return 0
end

current = tonumber(current)
if current >= quantity then
	redis.call('HINCRBY', key, 'spaces_available', -quantity)
	return 1
end

return 0
`)

var compensateSpacesScript = redis.NewScript(`
local key = KEYS[1]
if redis.call('EXISTS', key) == 0 then
	return -1
end
return redis.call('HINCRBY', key, 'spaces_available', tonumber(ARGV[1]))
`)

var updateLessonScript = redis.NewScript(`
local key = KEYS[1]
if redis.call('EXISTS', key) == 0 then
	return false
end
if #ARGV > 0 then
	redis.call('HSET', key, unpack(ARGV))
end
return redis.call('HGETALL', key)
`)

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func lessonKey(id string) string { return lessonKeyPrefix + id }
func orderKey(id string) string  { return orderKeyPrefix + id }

func (r *RedisAdapter) ListLessons(ctx context.Context) ([]domain.Lesson, error) {
	ids, err := r.client.SMembers(ctx, lessonIndexKey).Result()
	if err != nil {
		return nil, wrapErr("list lesson ids", err)
	}

	cmds, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.HGetAll(ctx, lessonKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, wrapErr("load lessons", err)
	}

	lessons := make([]domain.Lesson, 0, len(cmds))
	for _, cmd := range cmds {
		fields, err := cmd.(*redis.MapStringStringCmd).Result()
		if err != nil {
			return nil, wrapErr("load lesson", err)
		}
		if len(fields) == 0 {
			continue
		}
		lesson, err := lessonFromHash(fields)
		if err != nil {
			return nil, err
		}
		lessons = append(lessons, lesson)
	}
	sort.Slice(lessons, func(i, j int) bool { return lessons[i].ID < lessons[j].ID })
	return lessons, nil
}

func (r *RedisAdapter) GetLesson(ctx context.Context, id string) (*domain.Lesson, error) {
	fields, err := r.client.HGetAll(ctx, lessonKey(id)).Result()
	if err != nil {
		return nil, wrapErr("get lesson", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("lesson %s: %w", id, domain.ErrNotFound)
	}

	lesson, err := lessonFromHash(fields)
	if err != nil {
		return nil, err
	}
	return &lesson, nil
}

func (r *RedisAdapter) UpdateLesson(ctx context.Context, id string, update domain.LessonUpdate) (*domain.Lesson, error) {
	if update.SpacesAvailable != nil && *update.SpacesAvailable < 0 {
		return nil, domain.NewValidationError("spacesAvailable", "must be at least 0")
	}

	res, err := updateLessonScript.Run(ctx, r.client, []string{lessonKey(id)}, updateArgs(update)...).StringSlice()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("lesson %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, wrapErr("update lesson", err)
	}

	fields := make(map[string]string, len(res)/2)
	for i := 0; i+1 < len(res); i += 2 {
		fields[res[i]] = res[i+1]
	}
	lesson, err := lessonFromHash(fields)
	if err != nil {
		return nil, err
	}
	return &lesson, nil
}

func (r *RedisAdapter) SeedLessons(ctx context.Context, lessons []domain.Lesson) (int, error) {
	n, err := r.client.SCard(ctx, lessonIndexKey).Result()
	if err != nil {
		return 0, wrapErr("count lessons", err)
	}
	if n > 0 {
		return 0, nil
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, l := range lessons {
			pipe.HSet(ctx, lessonKey(l.ID), lessonToHash(l))
			pipe.SAdd(ctx, lessonIndexKey, l.ID)
		}
		return nil
	})
	if err != nil {
		return 0, wrapErr("seed lessons", err)
	}
	return len(lessons), nil
}

// TryDecrement runs the check and the decrement inside one Lua script, which
// Redis executes without interleaving other commands.
func (r *RedisAdapter) TryDecrement(ctx context.Context, lessonID string, quantity int) (bool, error) {
	if quantity <= 0 {
		return false, domain.NewValidationError("qty", "must be greater than 0")
	}

	result, err := decrementSpacesScript.Run(ctx, r.client, []string{lessonKey(lessonID)}, quantity).Int()
	if err != nil {
		return false, wrapErr("decrement spaces", err)
	}
	return result == 1, nil
}

func (r *RedisAdapter) Compensate(ctx context.Context, lessonID string, quantity int) error {
	if quantity <= 0 {
		return domain.NewValidationError("qty", "must be greater than 0")
	}

	result, err := compensateSpacesScript.Run(ctx, r.client, []string{lessonKey(lessonID)}, quantity).Int()
	if err != nil {
		return wrapErr("increment spaces", err)
	}
	if result < 0 {
		return fmt.Errorf("compensate lesson %s: %w", lessonID, domain.ErrNotFound)
	}
	return nil
}

func (r *RedisAdapter) AppendOrder(ctx context.Context, order domain.Order) (string, error) {
	data, err := json.Marshal(order)
	if err != nil {
		return "", fmt.Errorf("marshal order: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, orderKey(order.ID), data, 0)
		pipe.RPush(ctx, orderIndexKey, order.ID)
		return nil
	})
	if err != nil {
		return "", wrapErr("append order", err)
	}
	return order.ID, nil
}

func (r *RedisAdapter) ListOrders(ctx context.Context) ([]domain.Order, error) {
	ids, err := r.client.LRange(ctx, orderIndexKey, 0, -1).Result()
	if err != nil {
		return nil, wrapErr("list order ids", err)
	}
	if len(ids) == 0 {
		return []domain.Order{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = orderKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, wrapErr("load orders", err)
	}

	orders := make([]domain.Order, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("order %s missing from index", ids[i])
		}
		var order domain.Order
		if err := json.Unmarshal([]byte(raw), &order); err != nil {
			return nil, fmt.Errorf("unmarshal order %s: %w", ids[i], err)
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func (r *RedisAdapter) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *RedisAdapter) Close() error {
	return r.client.Close()
}

func lessonToHash(l domain.Lesson) map[string]interface{} {
	return map[string]interface{}{
		"id":          l.ID,
		"subject":     l.Subject,
		"location":    l.Location,
		"price":       strconv.FormatFloat(l.Price, 'f', -1, 64),
		fieldSpaces:   l.SpacesAvailable,
		"icon":        l.Icon,
		"description": l.Description,
	}
}

func updateArgs(u domain.LessonUpdate) []interface{} {
	var args []interface{}
	if u.Subject != nil {
		args = append(args, "subject", *u.Subject)
	}
	if u.Location != nil {
		args = append(args, "location", *u.Location)
	}
	if u.Price != nil {
		args = append(args, "price", strconv.FormatFloat(*u.Price, 'f', -1, 64))
	}
	if u.SpacesAvailable != nil {
		args = append(args, fieldSpaces, *u.SpacesAvailable)
	}
	if u.Icon != nil {
		args = append(args, "icon", *u.Icon)
	}
	if u.Description != nil {
		args = append(args, "description", *u.Description)
	}
	return args
}

func lessonFromHash(fields map[string]string) (domain.Lesson, error) {
	price, err := strconv.ParseFloat(fields["price"], 64)
	if err != nil {
		return domain.Lesson{}, fmt.Errorf("lesson %s: bad price %q: %w", fields["id"], fields["price"], err)
	}
	spaces, err := strconv.Atoi(fields[fieldSpaces])
	if err != nil {
		return domain.Lesson{}, fmt.Errorf("lesson %s: bad spaces %q: %w", fields["id"], fields[fieldSpaces], err)
	}
	return domain.Lesson{
		ID:              fields["id"],
		Subject:         fields["subject"],
		Location:        fields["location"],
		Price:           price,
		SpacesAvailable: spaces,
		Icon:            fields["icon"],
		Description:     fields["description"],
	}, nil
}
