package proxypool

import (
	"testing"

	"github.com/cnctrack/cnctrack/datalayer/model"
	"github.com/stretchr/testify/require"
)

func TestPoolAssign(t *testing.T) {
	pool := New()

	_, err := pool.Assign("us")
	require.ErrorIs(t, err, ErrNoProxy, "空池无代理可分")

	pool.Replace([]model.Proxy{
		{Host: "10.0.0.1", Port: 1080, Country: "us"},
		{Host: "10.0.0.2", Port: 1080, Country: "us"},
		{Host: "10.0.1.1", Port: 1080, Country: "de"},
	})

	got, err := pool.Assign("de")
	require.NoError(t, err)
	require.Equal(t, "de", got.Country)

	got, err = pool.Assign("us")
	require.NoError(t, err)
	require.Equal(t, "us", got.Country)

	_, err = pool.Assign("jp")
	require.ErrorIs(t, err, ErrNoProxy)

	// 不限国家时全池随机。
	_, err = pool.Assign("")
	require.NoError(t, err)
}

func TestPoolReplace(t *testing.T) {
	pool := New()
	pool.Replace([]model.Proxy{
		{Host: "10.0.0.1", Port: 1080, Country: "us"},
		{Host: "10.0.1.1", Port: 1080, Country: "de"},
	})
	require.Equal(t, []string{"de", "us"}, pool.Countries())
	require.Equal(t, 2, pool.Size())

	// 整体替换，旧节点全部淘汰。
	pool.Replace([]model.Proxy{
		{Host: "10.0.2.1", Port: 1080, Country: "jp"},
	})
	require.Equal(t, []string{"jp"}, pool.Countries())
	require.Equal(t, 1, pool.Size())

	_, err := pool.Assign("us")
	require.ErrorIs(t, err, ErrNoProxy)
}

func TestPoolSnapshot(t *testing.T) {
	pool := New()
	pool.Replace([]model.Proxy{{Host: "10.0.0.1", Port: 1080, Country: "us"}})

	snap := pool.Snapshot()
	require.Len(t, snap, 1)
	snap[0].Host = "tampered"

	got, err := pool.Assign("us")
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1", got.Host, "快照是副本，改动不影响池")
}
