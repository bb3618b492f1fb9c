package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/LilVoxy/wdi_pipeline/ETL/models"
	"github.com/LilVoxy/wdi_pipeline/ETL/shell"
	"github.com/LilVoxy/wdi_pipeline/ETL/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLocalStore_ReadWriteList(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Write(ctx, "sources/a.parquet", []byte("aaa")))
	require.NoError(t, store.Write(ctx, "sources/b.parquet", []byte("bb")))
	require.NoError(t, store.Write(ctx, "wdi.hash", []byte("hash")))

	objects, err := store.List(ctx, "sources/")
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "sources/a.parquet", objects[0].Key)
	assert.Equal(t, int64(2), objects[1].Size)

	data, err := store.Read(ctx, "wdi.hash")
	require.NoError(t, err)
	assert.Equal(t, "hash", string(data))

	_, err = store.Read(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotExist))
	_, err = store.Stat(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotExist))
	err = store.Download(ctx, "missing", filepath.Join(t.TempDir(), "x"))
	assert.True(t, errors.Is(err, ErrNotExist))
}

func TestLocalStore_ListMatchesWholeDirectory(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Write(ctx, "sources/a.parquet", []byte("a")))
	require.NoError(t, store.Write(ctx, "sources_old/b.parquet", []byte("b")))
	require.NoError(t, store.Write(ctx, "sources.parquet", []byte("c")))

	for _, prefix := range []string{"sources", "sources/"} {
		objects, err := store.List(ctx, prefix)
		require.NoError(t, err)
		require.Len(t, objects, 1, prefix)
		assert.Equal(t, "sources/a.parquet", objects[0].Key)
	}

	objects, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, objects, 3)
}

func TestDirPrefix(t *testing.T) {
	assert.Equal(t, "", dirPrefix(""))
	assert.Equal(t, "sources/", dirPrefix("sources"))
	assert.Equal(t, "sources/", dirPrefix("sources/"))
	assert.Equal(t, "wdi/sources/", dirPrefix("wdi/sources"))
}

func TestCheck_LocalStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	dir := t.TempDir()
	same := writeFile(t, dir, "fct_same.parquet", "same")
	changed := writeFile(t, dir, "fct_changed.parquet", "new")
	missing := writeFile(t, dir, "dim_missing.parquet", "x")

	require.NoError(t, store.Write(ctx, "marts/fct_same.parquet", []byte("same")))
	require.NoError(t, store.Write(ctx, "marts/fct_changed.parquet", []byte("old")))

	results, err := Check(ctx, store, []string{same, changed, missing}, "marts")
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, models.CheckSame, results[0].Status)
	assert.Equal(t, models.CheckDiffers, results[1].Status)
	assert.Equal(t, models.CheckMissing, results[2].Status)
	assert.Equal(t, "marts/dim_missing.parquet", results[2].Key)
}

func TestSyncFile(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	local := writeFile(t, t.TempDir(), "population_data.parquet", "v1")

	uploaded, err := SyncFile(ctx, store, local, "sources/population_data.parquet")
	require.NoError(t, err)
	assert.True(t, uploaded)

	uploaded, err = SyncFile(ctx, store, local, "sources/population_data.parquet")
	require.NoError(t, err)
	assert.False(t, uploaded)

	require.NoError(t, os.WriteFile(local, []byte("v2"), 0o644))
	uploaded, err = SyncFile(ctx, store, local, "sources/population_data.parquet")
	require.NoError(t, err)
	assert.True(t, uploaded)

	data, err := store.Read(ctx, "sources/population_data.parquet")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

// fakeRunner имитирует rclone
type fakeRunner struct {
	commands []shell.Command
	handle   func(cmd shell.Command) (*shell.Result, error)
}

func (f *fakeRunner) Run(ctx context.Context, cmd shell.Command) (*shell.Result, error) {
	f.commands = append(f.commands, cmd)
	return f.handle(cmd)
}

func argValue(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func exitErr(cmd shell.Command, code int) (*shell.Result, error) {
	result := &shell.Result{ExitCode: code, Stderr: "failed"}
	return result, &shell.ExitError{Command: cmd, Result: result}
}

func TestRcloneStore_CheckFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "fct_a.parquet", "a")
	b := writeFile(t, dir, "fct_b.parquet", "b")
	c := writeFile(t, dir, "dim_c.parquet", "c")

	runner := &fakeRunner{handle: func(cmd shell.Command) (*shell.Result, error) {
		require.Equal(t, "check", cmd.Args[0])
		filesFrom, err := os.ReadFile(argValue(cmd.Args, "--files-from"))
		require.NoError(t, err)
		assert.Equal(t, "fct_a.parquet\nfct_b.parquet\ndim_c.parquet\n", string(filesFrom))

		report := "= fct_a.parquet\n* fct_b.parquet\n+ dim_c.parquet\n"
		require.NoError(t, os.WriteFile(argValue(cmd.Args, "--combined"), []byte(report), 0o644))
		return exitErr(cmd, 1)
	}}

	store := NewRcloneStore("rclone", "r2:wdi", runner, utils.NewNopLogger())
	results, err := Check(context.Background(), store, []string{a, b, c}, "marts")
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, models.CheckSame, results[0].Status)
	assert.Equal(t, models.CheckDiffers, results[1].Status)
	assert.Equal(t, models.CheckMissing, results[2].Status)

	require.Len(t, runner.commands, 1)
	assert.Equal(t, []string{"check", dir, "r2:wdi/marts"}, runner.commands[0].Args[:3])
}

func TestRcloneStore_CheckFiles_Failure(t *testing.T) {
	a := writeFile(t, t.TempDir(), "fct_a.parquet", "a")
	runner := &fakeRunner{handle: func(cmd shell.Command) (*shell.Result, error) {
		return exitErr(cmd, 2)
	}}

	store := NewRcloneStore("rclone", "r2:wdi", runner, utils.NewNopLogger())
	_, err := store.CheckFiles(context.Background(), []string{a}, "marts")
	assert.Error(t, err)
}

func TestRcloneStore_ReadNotFound(t *testing.T) {
	runner := &fakeRunner{handle: func(cmd shell.Command) (*shell.Result, error) {
		return exitErr(cmd, 3)
	}}

	store := NewRcloneStore("", "r2:", runner, utils.NewNopLogger())
	_, err := store.Read(context.Background(), "wdi.hash")
	assert.True(t, errors.Is(err, ErrNotExist))
	assert.Equal(t, []string{"cat", "r2:wdi.hash"}, runner.commands[0].Args)
}

func TestRcloneStore_ListAndWrite(t *testing.T) {
	runner := &fakeRunner{handle: func(cmd shell.Command) (*shell.Result, error) {
		switch cmd.Args[0] {
		case "lsjson":
			return &shell.Result{Stdout: `[
				{"Path":"population_data.parquet","Name":"population_data.parquet","Size":10,"IsDir":false,"Hashes":{"md5":"abc"}},
				{"Path":"nested","Name":"nested","Size":0,"IsDir":true}
			]`}, nil
		case "rcat":
			data := new(bytes.Buffer)
			_, err := data.ReadFrom(cmd.Stdin)
			require.NoError(t, err)
			assert.Equal(t, "deadbeef", data.String())
			return &shell.Result{}, nil
		}
		t.Fatalf("неожиданная команда %v", cmd.Args)
		return nil, nil
	}}

	store := NewRcloneStore("rclone", "r2:wdi/", runner, utils.NewNopLogger())
	objects, err := store.List(context.Background(), "sources")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "sources/population_data.parquet", objects[0].Key)
	assert.Equal(t, "abc", objects[0].MD5)

	require.NoError(t, store.Write(context.Background(), "wdi.hash", []byte("deadbeef")))
	assert.Equal(t, []string{"rcat", "r2:wdi/wdi.hash"}, runner.commands[1].Args)
}

func TestParseCombinedReport(t *testing.T) {
	report := ParseCombinedReport([]byte("= a.parquet\r\n- only_remote.parquet\n! broken.parquet\n\n"))
	assert.Equal(t, models.CheckSame, report["a.parquet"])
	assert.Equal(t, models.CheckDiffers, report["broken.parquet"])
	_, ok := report["only_remote.parquet"]
	assert.False(t, ok)
}
