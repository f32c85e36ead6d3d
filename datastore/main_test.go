package datastore

import (
	"github.com/lmittmann/tint"
	"go.uber.org/goleak"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testLogger(t testing.TB) *slog.Logger {
	t.Helper()
	lvl := &slog.LevelVar{}
	lvl.Set(slog.LevelDebug)
	return slog.New(
		tint.NewHandler(
			os.Stdout, &tint.Options{
				Level:     lvl,
				AddSource: true,
			},
		),
	)
}

func readFile(t testing.TB, dir string, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("reading %s: %v", name, err)
	}
	return data
}
