package botmod

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type demoFactory struct {
	family string
}

func (df *demoFactory) Family() string           { return df.family }
func (df *demoFactory) CriticalParams() []string { return nil }
func (df *demoFactory) ProxyCountries() []string { return nil }

func (df *demoFactory) New(context.Context, Env) (Module, error) { return nil, nil }

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&demoFactory{family: "beta"}, &demoFactory{family: "alpha"}))

	_, ok := reg.Lookup("alpha")
	require.True(t, ok)
	_, ok = reg.Lookup("ghost")
	require.False(t, ok)

	require.Equal(t, []string{"alpha", "beta"}, reg.Families())

	require.Error(t, reg.Register(&demoFactory{family: "alpha"}), "家族名不允许重复")
	require.Error(t, reg.Register(&demoFactory{}), "家族名不能为空")
}

func TestOutcomeMerge(t *testing.T) {
	var merged Outcome
	merged = merged.Merge(Outcome{Continue: true})
	require.False(t, merged.Working)
	require.False(t, merged.Continue, "Continue 只控制迭代，不参与累计")

	merged = merged.Merge(Outcome{Working: true})
	require.True(t, merged.Working)

	merged = merged.Merge(Outcome{Archive: true})
	require.True(t, merged.Archive)
	require.True(t, merged.Working, "已有标志不会被后续结果清掉")
}
