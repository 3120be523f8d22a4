package sqlkit_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/sqlkit"
)

func TestWatcher(t *testing.T) {
	path := writeSample(t, sample)
	w, err := sqlkit.NewWatcher(path)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reloaded := make(chan *sqlkit.File, 8)
	go w.Run(ctx, func(f *sqlkit.File, err error) {
		if err != nil {
			return
		}
		select {
		case reloaded <- f:
		default:
		}
	})

	updated := "connections:\n  only:\n    dsn: \"sqlite::memory:\"\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	// A write may be observed while the file is still truncated.
	timeout := time.After(5 * time.Second)
	for {
		select {
		case f := <-reloaded:
			if len(f.Names()) == 0 {
				continue
			}
			assert.Equal(t, []string{"only"}, f.Names())
			return
		case <-timeout:
			t.Fatal("config change not observed")
		}
	}
}
