package lifecycle

import (
	"testing"
	"time"

	"github.com/cnctrack/cnctrack/datalayer/model"
	"github.com/stretchr/testify/require"
)

func testPolicy() Policy {
	return Policy{
		HealthyInterval: 12 * time.Hour,
		BackoffBase:     time.Hour,
		BackoffCap:      24 * time.Hour,
		CrashRetry:      15 * time.Minute,
		MaxFailingSpree: 5,
	}
}

func TestPolicyNextWorking(t *testing.T) {
	policy := testPolicy()
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	tr := policy.Next(now, 3, KindWorking, "")
	require.Equal(t, model.SWorking, tr.Status)
	require.Equal(t, 0, tr.FailingSpree, "成功后连败计数清零")
	require.NotNil(t, tr.NextExecution)
	require.Equal(t, now.Add(12*time.Hour), *tr.NextExecution)
}

func TestPolicyNextFailing(t *testing.T) {
	policy := testPolicy()
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	tr := policy.Next(now, 0, KindFailing, "所有候选地址均无产出")
	require.Equal(t, model.SFailing, tr.Status)
	require.Equal(t, 1, tr.FailingSpree)
	require.NotNil(t, tr.NextExecution)
	require.Equal(t, now.Add(time.Hour), *tr.NextExecution)
	require.Equal(t, "所有候选地址均无产出", tr.LastError)

	tr = policy.Next(now, 2, KindFailing, "x")
	require.Equal(t, model.SFailing, tr.Status)
	require.Equal(t, 3, tr.FailingSpree)
	require.Equal(t, now.Add(4*time.Hour), *tr.NextExecution, "第三次失败退避 4 小时")
}

func TestPolicyNextFailingArchives(t *testing.T) {
	policy := testPolicy()
	now := time.Now()

	// 第 4 次连败之后再失败一次即触顶归档。
	tr := policy.Next(now, 4, KindFailing, "x")
	require.Equal(t, model.SArchived, tr.Status)
	require.Equal(t, 5, tr.FailingSpree)
	require.Nil(t, tr.NextExecution, "归档后永不执行")
}

func TestPolicyNextCrashed(t *testing.T) {
	policy := testPolicy()
	now := time.Now()

	tr := policy.Next(now, 2, KindCrashed, "模块 panic")
	require.Equal(t, model.SCrashed, tr.Status)
	require.Equal(t, 2, tr.FailingSpree, "崩溃不影响连败计数")
	require.NotNil(t, tr.NextExecution)
	require.Equal(t, now.Add(15*time.Minute), *tr.NextExecution)
}

func TestPolicyNextArchived(t *testing.T) {
	policy := testPolicy()

	tr := policy.Next(time.Now(), 1, KindArchived, "模块要求归档")
	require.Equal(t, model.SArchived, tr.Status)
	require.Nil(t, tr.NextExecution)
}

func TestPolicyBackoff(t *testing.T) {
	policy := testPolicy()

	require.Equal(t, time.Hour, policy.Backoff(0))
	require.Equal(t, time.Hour, policy.Backoff(1))
	require.Equal(t, 2*time.Hour, policy.Backoff(2))
	require.Equal(t, 8*time.Hour, policy.Backoff(4))
	require.Equal(t, 16*time.Hour, policy.Backoff(5))
	require.Equal(t, 24*time.Hour, policy.Backoff(6), "触顶封顶")
	require.Equal(t, 24*time.Hour, policy.Backoff(100), "大计数不溢出")
}
