// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package emit

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"hoststats/internal/engine"
)

// RedisSink ships events off-box onto a Redis stream via XAdd. It is
// non-blocking past its own deadline: a slow or unreachable Redis drops the
// event after logging, matching every other sink's saturation contract.
type RedisSink struct {
	client   *redis.Client
	stream   string
	deadline time.Duration
	log      zerolog.Logger
}

// NewRedisSink dials addr (lazily — go-redis connects on first command) and
// targets the given stream key.
func NewRedisSink(addr, stream string, log zerolog.Logger) *RedisSink {
	return &RedisSink{
		client:   redis.NewClient(&redis.Options{Addr: addr}),
		stream:   stream,
		deadline: 500 * time.Millisecond,
		log:      log.With().Str("component", "redis-sink").Str("stream", stream).Logger(),
	}
}

func (s *RedisSink) Send(ev engine.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), s.deadline)
	defer cancel()

	_, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		ID:     "*",
		Values: map[string]interface{}{
			"id":         ev.ID().String(),
			"type":       ev.Type.String(),
			"time_first": ev.TimeFirst,
			"time_last":  ev.TimeLast,
			"scale":      ev.Scale,
			"note":       ev.Note,
			"line":       FormatLine(ev),
		},
	}).Result()
	if err != nil {
		s.log.Warn().Err(err).Msg("dropping event: redis stream send failed")
	}
}

// Close releases the underlying client's connection pool.
func (s *RedisSink) Close() error { return s.client.Close() }
