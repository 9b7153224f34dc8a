package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/plantopt/internal/config"
	"github.com/aretw0/plantopt/pkg/domain"
)

const resourcesYAML = `
inputs:
  - name: crude
    unit_cost: 10
products:
  - name: fuel
    price: 25
processes:
  - name: distill
    capacity: 150
yields:
  - input: crude
    process: distill
    product: fuel
    ratio: 1
`

const treeYAML = `
nodes:
  - name: root
    prob: 1
  - name: low
    parent: root
    prob: 0.5
    payload:
      demand.fuel: 80
  - name: high
    parent: root
    prob: 0.5
    payload:
      demand.fuel: 120
`

// project writes a config, resources and tree into a temp dir and returns the
// config path. extra is appended to the config.
func project(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	write("resources.yaml", resourcesYAML)
	write("tree.yaml", treeYAML)
	write("plantopt.yaml", "resources: resources.yaml\ntree: tree.yaml\nlog:\n  level: error\n"+extra)
	return filepath.Join(dir, "plantopt.yaml")
}

const fileStore = "store:\n  kind: file\n  path: runs\n"

func TestSolve_ArchivesRun(t *testing.T) {
	ctx := context.Background()
	cfgPath := project(t, fileStore)

	var out bytes.Buffer
	require.NoError(t, Solve(ctx, Options{ConfigPath: cfgPath, JSON: true, Out: &out}, SolveOptions{Label: "base", Baseline: true}))

	var rec domain.RunRecord
	require.NoError(t, json.Unmarshal(out.Bytes(), &rec))
	assert.Equal(t, "base", rec.Label)
	assert.InDelta(t, 1300, rec.Outcome.ExpectedObjective, 1e-6)
	require.NotNil(t, rec.Outcome.VSS)
	assert.InDelta(t, 50, *rec.Outcome.VSS, 1e-6)

	entries, err := os.ReadDir(filepath.Join(filepath.Dir(cfgPath), "runs"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "store path resolves against the config directory")

	out.Reset()
	require.NoError(t, ListResults(ctx, Options{ConfigPath: cfgPath, JSON: true, Out: &out}))
	var ids []string
	require.NoError(t, json.Unmarshal(out.Bytes(), &ids))
	assert.Equal(t, []string{rec.ID}, ids)

	out.Reset()
	require.NoError(t, ListResults(ctx, Options{ConfigPath: cfgPath, Out: &out}))
	assert.Contains(t, out.String(), "| "+rec.ID+" | base |")
	assert.Contains(t, out.String(), "1300.00")

	out.Reset()
	require.NoError(t, ShowResult(ctx, Options{ConfigPath: cfgPath, Out: &out}, rec.ID))
	assert.Contains(t, out.String(), "# base")
	assert.Contains(t, out.String(), "**expected objective**: 1300.00")

	out.Reset()
	require.NoError(t, DeleteResult(ctx, Options{ConfigPath: cfgPath, Out: &out}, rec.ID))
	assert.ErrorIs(t, ShowResult(ctx, Options{ConfigPath: cfgPath, Out: &out}, rec.ID), domain.ErrResultNotFound)
}

func TestSolve_Report(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Solve(context.Background(), Options{ConfigPath: project(t, ""), Out: &out}, SolveOptions{WaitAndSee: true}))

	assert.Contains(t, out.String(), "# Plan")
	assert.Contains(t, out.String(), "**expected value of perfect information**: 200.00")
	assert.NotContains(t, out.String(), "archived", "no store configured")
}

func TestSolve_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing inputs", func(t *testing.T) {
		dir := t.TempDir()
		cfgPath := filepath.Join(dir, "plantopt.yaml")
		require.NoError(t, os.WriteFile(cfgPath, []byte("log:\n  level: error\n"), 0o644))
		err := Solve(ctx, Options{ConfigPath: cfgPath, Out: &bytes.Buffer{}}, SolveOptions{})
		assert.ErrorIs(t, err, domain.ErrInvalidSpec)
	})

	t.Run("invalid truncation override", func(t *testing.T) {
		negative := -1
		err := Solve(ctx, Options{ConfigPath: project(t, ""), Truncate: &negative, Out: &bytes.Buffer{}}, SolveOptions{})
		assert.ErrorIs(t, err, domain.ErrInvalidSpec)
	})

	t.Run("unknown log level", func(t *testing.T) {
		cfgPath := project(t, "")
		require.NoError(t, os.WriteFile(cfgPath, []byte("resources: resources.yaml\ntree: tree.yaml\nlog:\n  level: loud\n"), 0o644))
		err := Solve(ctx, Options{ConfigPath: cfgPath, Out: &bytes.Buffer{}}, SolveOptions{})
		assert.ErrorContains(t, err, "unknown log level")
	})

	t.Run("canceled", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		var out bytes.Buffer
		assert.NoError(t, Solve(canceled, Options{ConfigPath: project(t, ""), Out: &out}, SolveOptions{}))
		assert.Empty(t, out.String())
	})
}

func TestCompare(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Compare(context.Background(), Options{ConfigPath: project(t, ""), Out: &out}, 0))

	assert.Contains(t, out.String(), "# Comparison")
	assert.Contains(t, out.String(), "| stochastic | optimal | 1300.00 | 0.00 |")
	assert.Contains(t, out.String(), "| expected value | optimal | 1500.00 |")
}

func TestTree(t *testing.T) {
	ctx := context.Background()
	cfgPath := project(t, "store:\n  kind: file\n  path: runs\n")

	var out bytes.Buffer
	require.NoError(t, Tree(ctx, Options{ConfigPath: cfgPath, Out: &out}, TreeOptions{}))
	assert.Contains(t, out.String(), "graph TD")
	assert.Contains(t, out.String(), `n0 -- "p=0.5" --> n1`)

	out.Reset()
	root := 0
	require.NoError(t, Tree(ctx, Options{ConfigPath: cfgPath, Truncate: &root, Out: &out}, TreeOptions{Format: FormatYAML}))
	assert.Contains(t, out.String(), "demand.fuel: 100")

	out.Reset()
	require.NoError(t, Solve(ctx, Options{ConfigPath: cfgPath, JSON: true, Out: &out}, SolveOptions{}))
	var rec domain.RunRecord
	require.NoError(t, json.Unmarshal(out.Bytes(), &rec))

	out.Reset()
	require.NoError(t, Tree(ctx, Options{ConfigPath: cfgPath, Out: &out}, TreeOptions{ResultID: rec.ID}))
	assert.Contains(t, out.String(), "class n0 path;")
	assert.Contains(t, out.String(), "class n1 path;", "the low-demand scenario is the worst")
	assert.NotContains(t, out.String(), "class n2 path;")
	assert.Contains(t, out.String(), "buy crude 120.0")

	err := Tree(ctx, Options{ConfigPath: cfgPath, Out: &out}, TreeOptions{Format: "dot"})
	assert.ErrorContains(t, err, "unknown tree format")
}

func TestValidate(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Validate(context.Background(), Options{ConfigPath: project(t, ""), Out: &out}))

	assert.Contains(t, out.String(), ">>> Tree: 3 nodes, 2 stages, 2 scenarios.")
	assert.Contains(t, out.String(), ">>> Configuration is valid.")

	cfgPath := project(t, "chance:\n  - family: capacity\n    alpha: 0.1\n    risk: var\n")
	err := Validate(context.Background(), Options{ConfigPath: cfgPath, Out: &out})
	assert.ErrorIs(t, err, domain.ErrNonConvexReformulation)
}

func TestNewStore(t *testing.T) {
	ctx := context.Background()

	st, err := NewStore(ctx, config.StoreConfig{Kind: config.StoreNone})
	require.NoError(t, err)
	assert.Nil(t, st.Store)
	assert.NoError(t, st.Close())

	st, err = NewStore(ctx, config.StoreConfig{Kind: config.StoreMemory})
	require.NoError(t, err)
	assert.NotNil(t, st.Store)
	assert.Nil(t, st.Locker, "only shared stores lock runs")

	st, err = NewStore(ctx, config.StoreConfig{Kind: config.StoreFile, Path: t.TempDir()})
	require.NoError(t, err)
	assert.NotNil(t, st.Store)

	mr := miniredis.RunT(t)
	st, err = NewStore(ctx, config.StoreConfig{Kind: config.StoreRedis, Addr: mr.Addr(), Prefix: "test:", TTL: time.Hour})
	require.NoError(t, err)
	require.NoError(t, st.Store.Save(ctx, &domain.RunRecord{ID: "r1", CreatedAt: time.Now()}))
	assert.True(t, mr.Exists("test:r1"))
	require.NotNil(t, st.Locker)
	unlock, err := st.Locker.Lock(ctx, "run:base", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:lock:run:base"))
	require.NoError(t, unlock(ctx))
	assert.NoError(t, st.Close())

	down := miniredis.RunT(t)
	addr := down.Addr()
	down.Close()
	_, err = NewStore(ctx, config.StoreConfig{Kind: config.StoreRedis, Addr: addr})
	assert.Error(t, err)

	_, err = NewStore(ctx, config.StoreConfig{Kind: "s3"})
	assert.ErrorIs(t, err, domain.ErrInvalidSpec)
}

func TestServe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, Options{ConfigPath: project(t, "store:\n  kind: memory\n")}, ServeOptions{
			Addr:  "127.0.0.1:0",
			Ready: func(addr string) { ready <- addr },
		})
	}()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(ShutdownTimeout + time.Second):
		t.Fatal("server did not stop")
	}
}

func TestMCP(t *testing.T) {
	cfg := project(t, "store:\n  kind: memory\n")

	t.Run("Unknown Transport", func(t *testing.T) {
		err := MCP(context.Background(), Options{ConfigPath: cfg}, MCPOptions{Transport: "grpc"})
		assert.ErrorContains(t, err, `unknown transport "grpc"`)
	})

	t.Run("SSE Stops On Cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- MCP(ctx, Options{ConfigPath: cfg}, MCPOptions{Transport: TransportSSE, Addr: "127.0.0.1:0"})
		}()

		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(ShutdownTimeout + time.Second):
			t.Fatal("MCP server did not stop")
		}
	})
}

func TestNewStore_Encrypted(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	key := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))

	st, err := NewStore(ctx, config.StoreConfig{Kind: config.StoreFile, Path: dir, EncryptionKey: key})
	require.NoError(t, err)
	store := st.Store
	rec := &domain.RunRecord{
		ID:        "sealed-run",
		CreatedAt: time.Now(),
		Result:    &domain.SolveResult{Status: domain.StatusOptimal, Bundles: map[domain.NodeID]*domain.DecisionBundle{0: {Purchase: map[string]float64{"crude": 120}}}},
	}
	require.NoError(t, store.Save(ctx, rec))

	raw, err := os.ReadFile(filepath.Join(dir, "sealed-run.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"sealed"`)
	assert.NotContains(t, string(raw), "crude")

	loaded, err := store.Load(ctx, "sealed-run")
	require.NoError(t, err)
	assert.InDelta(t, 120, loaded.Result.Bundles[0].Purchase["crude"], 1e-9)

	_, err = NewStore(ctx, config.StoreConfig{Kind: config.StoreMemory, EncryptionKey: "c2hvcnQ="})
	assert.ErrorIs(t, err, domain.ErrInvalidSpec)
}

func TestSignalContext(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	sc := NewSignalContext(parent)
	defer sc.Cancel()

	cancel()
	<-sc.Done()
	assert.Nil(t, sc.Signal(), "canceled by the parent, not by a signal")

	var out bytes.Buffer
	sc.Interrupted(&out)
	assert.Empty(t, out.String())
}
