// Copyright 2026 fanjia1024
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

package usage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const createUsageTable = `CREATE TABLE IF NOT EXISTS usage_events (
  id BIGSERIAL PRIMARY KEY,
  username TEXT NOT NULL,
  method TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresTracker 基于 usage_events 表
type PostgresTracker struct {
	pool *pgxpool.Pool
}

// NewPostgresTracker 连接并确保表存在
func NewPostgresTracker(ctx context.Context, dsn string) (*PostgresTracker, error) {
	if dsn == "" {
		return nil, fmt.Errorf("usage: postgres dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("usage: connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, createUsageTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("usage: create table: %w", err)
	}
	return &PostgresTracker{pool: pool}, nil
}

// Track 实现 Tracker；窗口内已有记录时不插入
func (p *PostgresTracker) Track(ctx context.Context, user, method string) (bool, error) {
	tag, err := p.pool.Exec(ctx,
		`INSERT INTO usage_events (username, method)
SELECT $1, $2
WHERE NOT EXISTS (
  SELECT 1 FROM usage_events
  WHERE username = $1 AND method = $2 AND created_at > now() - make_interval(secs => $3)
)`,
		user, method, Window.Seconds(),
	)
	if err != nil {
		return false, err
	}
	recorded := tag.RowsAffected() > 0
	observe(method, recorded)
	return recorded, nil
}

// Close 实现 Tracker
func (p *PostgresTracker) Close() error {
	p.pool.Close()
	return nil
}
