// Package cleanup は期限切れセッションの削除ジョブを提供する。
// セッションの有効性は参照時に判定されるため、このジョブは保存領域の整理のみを担う。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SweepRecorder は削除件数の記録先。metrics.Collectorが満たす。
type SweepRecorder interface {
	RecordSessionsSwept(count int64)
}

type nopSweepRecorder struct{}

func (nopSweepRecorder) RecordSessionsSwept(int64) {}

// SessionSweepJob は有効期限を過ぎたセッションを削除するジョブ。
// 冪等であり、何度実行しても結果は変わらない。
type SessionSweepJob struct {
	db       Executor
	logger   *slog.Logger
	recorder SweepRecorder
	now      func() time.Time
}

// NewSessionSweepJob は新しいSessionSweepJobを生成する。
// recorderがnilの場合は記録しない。
func NewSessionSweepJob(db Executor, logger *slog.Logger, recorder SweepRecorder) *SessionSweepJob {
	if recorder == nil {
		recorder = nopSweepRecorder{}
	}
	return &SessionSweepJob{
		db:       db,
		logger:   logger,
		recorder: recorder,
		now:      time.Now,
	}
}

// Run はexpires_atが現在時刻以前のセッションを削除し、削除件数を返す。
func (j *SessionSweepJob) Run(ctx context.Context) (int64, error) {
	start := time.Now()
	cutoff := j.now().UTC()

	query := `DELETE FROM sessions WHERE expires_at <= $1`
	result, err := j.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		j.logger.Error("session sweep failed",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("failed to sweep expired sessions: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("failed to read swept session count",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}

	j.recorder.RecordSessionsSwept(deletedCount)
	j.logger.Info("session sweep completed",
		slog.Int64("deleted_count", deletedCount),
		slog.Time("cutoff", cutoff),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return deletedCount, nil
}

// Start はintervalごとにRunを実行する。起動直後に1回実行し、ctxがキャンセルされるまでブロックする。
// 個々の実行エラーはログに記録して次回に持ち越す。
func (j *SessionSweepJob) Start(ctx context.Context, interval time.Duration) {
	if _, err := j.Run(ctx); err != nil && ctx.Err() == nil {
		j.logger.Warn("initial session sweep failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// エラーはRun内でログ済み
			_, _ = j.Run(ctx)
		}
	}
}
