package wal

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type line struct {
	N int `json:"n"`
}

func TestWAL_WriteReadAll(t *testing.T) {
	w, err := NewWAL(filepath.Join(t.TempDir(), "wal.log"))
	require.NoError(t, err)
	defer w.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			assert.NoError(t, w.Write(line{N: n}))
		}(i)
	}
	wg.Wait()

	seen := map[int]bool{}
	err = w.ReadAll(func(raw []byte) error {
		var l line
		if err := json.Unmarshal(raw, &l); err != nil {
			return err
		}
		seen[l.N] = true
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, seen, 50)

	// 讀完之後仍可以繼續追加
	require.NoError(t, w.Write(line{N: 50}))
	count := 0
	require.NoError(t, w.ReadAll(func([]byte) error { count++; return nil }))
	assert.Equal(t, 51, count)
}

func TestWAL_CallbackError(t *testing.T) {
	w, err := NewWAL(filepath.Join(t.TempDir(), "wal.log"))
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Write(line{N: 1}))

	stop := errors.New("stop")
	assert.ErrorIs(t, w.ReadAll(func([]byte) error { return stop }), stop)
}

func TestNewWAL_BadPath(t *testing.T) {
	_, err := NewWAL(filepath.Join(t.TempDir(), "missing", "wal.log"))
	assert.Error(t, err)
}

func TestNewWAL_TruncatesTornTail(t *testing.T) {
	tests := []struct {
		name string
		seed string
		want string
	}{
		{"torn last line", "{\"n\":1}\n{\"n\":", "{\"n\":1}\n"},
		{"only a torn line", "{\"n\":", ""},
		{"clean file", "{\"n\":1}\n", "{\"n\":1}\n"},
		{"torn tail longer than one chunk", "{\"n\":1}\n" + string(make([]byte, 10000)), "{\"n\":1}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "wal.log")
			require.NoError(t, os.WriteFile(path, []byte(tt.seed), FileModePrivate))

			w, err := NewWAL(path)
			require.NoError(t, err)
			defer w.Close()

			raw, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(raw))

			// 截斷後追加的資料必須是獨立的一行
			require.NoError(t, w.Write(line{N: 2}))
			var got []int
			require.NoError(t, w.ReadAll(func(raw []byte) error {
				var l line
				if err := json.Unmarshal(raw, &l); err != nil {
					return err
				}
				got = append(got, l.N)
				return nil
			}))
			assert.Equal(t, 2, got[len(got)-1])
		})
	}
}
