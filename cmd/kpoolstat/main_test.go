package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/kpool"
	"github.com/hupe1980/kpool/blobstore"
	"github.com/hupe1980/kpool/statdump"
)

const testWorkload = `
pools:
  - name: mbuf
    size: 256
    cache: true
    hold: 16
  - name: vnode
    size: 100
    budget: 65536
    hardLimit: 200
    warning: vnode pool exhausted
  - name: small
    size: 24
    debug: true
    lowWater: 32
    highWater: 64
`

func TestParseWorkload(t *testing.T) {
	w, err := parseWorkload([]byte(testWorkload))
	require.NoError(t, err)
	require.Len(t, w.Pools, 3)
	assert.Equal(t, 16, w.Pools[0].Hold)
	assert.Equal(t, 64, w.Pools[1].Hold)
	assert.Equal(t, int64(65536), w.Pools[1].Budget)

	tests := []struct {
		name string
		yaml string
	}{
		{name: "no pools", yaml: "pools: []"},
		{name: "missing size", yaml: "pools: [{name: a}]"},
		{name: "duplicate", yaml: "pools: [{name: a, size: 8}, {name: a, size: 16}]"},
		{name: "not yaml", yaml: "pools: {"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseWorkload([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestBuildPools(t *testing.T) {
	w, err := parseWorkload([]byte(testWorkload))
	require.NoError(t, err)

	reg := kpool.NewRegistry()
	pools, err := buildPools(w, kpool.WithRegistry(reg))
	require.NoError(t, err)
	defer destroyPools(pools)

	snap := reg.Snapshot()
	require.Len(t, snap, 3)
	assert.NotNil(t, snap[0].Cache)
	assert.Equal(t, 200, snap[1].HardLimit)
	assert.Equal(t, 32, snap[2].MinItems)
	assert.GreaterOrEqual(t, snap[2].NItems, 32)

	_, err = buildPools(&Workload{Pools: []PoolSpec{{Name: "x", Size: 8, Source: "tape"}}}, kpool.WithRegistry(reg))
	assert.Error(t, err)
	assert.Equal(t, 3, reg.Len())
}

func TestWorker(t *testing.T) {
	w, err := parseWorkload([]byte(testWorkload))
	require.NoError(t, err)
	pools, err := buildPools(w, kpool.WithRegistry(kpool.NewRegistry()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan workerStats, 1)
	go func() {
		st, err := worker(ctx, 1, pools, w.Pools)
		assert.NoError(t, err)
		done <- st
	}()

	require.Eventually(t, func() bool { return pools[1].Stats().NGet > 100 }, 5*time.Second, time.Millisecond)
	cancel()
	st := <-done
	assert.Equal(t, st.gets, st.puts)

	for _, p := range pools {
		assert.Equal(t, 0, p.Stats().NOut, p.Name())
		require.NoError(t, p.Verify())
		require.NoError(t, p.Destroy())
	}
}

func TestRunAndDecode(t *testing.T) {
	dir := t.TempDir()
	workload := filepath.Join(dir, "workload.yaml")
	require.NoError(t, os.WriteFile(workload, []byte(testWorkload), 0o600))
	dumps := filepath.Join(dir, "dumps")

	root := newRootCmd()
	root.SetArgs([]string{
		"run",
		"--workload", workload,
		"--workers", "2",
		"--duration", "200ms",
		"--listen", "",
		"--log-level", "error",
		"--reclaim-interval", "10ms",
		"--dump-sink", "local",
		"--dump-path", dumps,
		"--dump-interval", "50ms",
		"--dump-keep", "2",
		"--dump-compression", "lz4",
	})
	require.NoError(t, root.Execute())

	names, err := statdump.List(context.Background(), blobstore.NewLocalStore(dumps), "dumps")
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.LessOrEqual(t, len(names), 2)

	var out bytes.Buffer
	root = newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"decode", filepath.Join(dumps, filepath.FromSlash(names[len(names)-1]))})
	require.NoError(t, root.Execute())

	var decoded struct {
		Pools []struct {
			Name string `yaml:"name"`
			NOut int    `yaml:"nout"`
		} `yaml:"pools"`
	}
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &decoded))
	require.Len(t, decoded.Pools, 3)
	assert.Equal(t, "mbuf", decoded.Pools[0].Name)
	assert.Equal(t, 0, decoded.Pools[0].NOut)
}

func TestRun_MissingWorkload(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"run", "--listen", ""})
	root.SetErr(&bytes.Buffer{})
	assert.Error(t, root.Execute())
}

func TestRun_BadCompressionStartsNothing(t *testing.T) {
	dir := t.TempDir()
	workload := filepath.Join(dir, "workload.yaml")
	require.NoError(t, os.WriteFile(workload, []byte(testWorkload), 0o600))

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	root := newRootCmd()
	root.SetArgs([]string{
		"run",
		"--workload", workload,
		"--duration", "10s",
		"--listen", addr,
		"--dump-sink", "local",
		"--dump-path", filepath.Join(dir, "dumps"),
		"--dump-compression", "gzip",
	})
	root.SetErr(&bytes.Buffer{})
	err = root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown compression")

	// No metrics server was left behind on the address.
	l, err = net.Listen("tcp", addr)
	require.NoError(t, err)
	require.NoError(t, l.Close())
}
