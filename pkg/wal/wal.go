package wal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
)

// 自己定義常用的權限常量
const (
	// rw-r--r-- (擁有者讀寫，其他人唯讀) - 適用於大多數檔案
	FileModeReadOnly fs.FileMode = 0644

	// rw------- (只有擁有者可讀寫) - 出款紀錄含電話號碼，用這個
	FileModePrivate fs.FileMode = 0600
)

// WAL 以 JSON Lines 追加寫入的檔案
type WAL struct {
	file *os.File
	mu   sync.Mutex
}

// NewWAL 開啟或建立一個 WAL 檔案
// O_RDWR讀寫模式
// O_APPEND 每次寫入時自動跳到文件末尾
// O_CREATE 如果文件不存在則建立
// 上次寫到一半的尾巴會被截掉，之後的追加才不會接在殘缺的行後面
func NewWAL(path string) (*WAL, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, FileModePrivate)
	if err != nil {
		return nil, err
	}
	if err := truncateTornTail(file); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("repair wal tail: %w", err)
	}
	return &WAL{file: file}, nil
}

// truncateTornTail 把檔案截到最後一個換行 (沒有換行就截成空檔)
func truncateTornTail(file *os.File) error {
	info, err := file.Stat()
	if err != nil {
		return err
	}
	end := info.Size()
	if end == 0 {
		return nil
	}

	last := make([]byte, 1)
	if _, err := file.ReadAt(last, end-1); err != nil {
		return err
	}
	if last[0] == '\n' {
		return nil
	}

	// 由後往前一塊一塊找
	buf := make([]byte, 4096)
	keep := int64(0)
	for pos := end; pos > 0 && keep == 0; {
		n := int64(len(buf))
		if pos < n {
			n = pos
		}
		pos -= n
		if _, err := file.ReadAt(buf[:n], pos); err != nil {
			return err
		}
		if i := bytes.LastIndexByte(buf[:n], '\n'); i >= 0 {
			keep = pos + int64(i) + 1
		}
	}
	if err := file.Truncate(keep); err != nil {
		return err
	}
	return file.Sync()
}

// Write 寫入一筆資料並刷入硬碟
func (w *WAL) Write(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.file.Write(line); err != nil {
		return err
	}
	return w.file.Sync()
}

// Close 關閉檔案
func (w *WAL) Close() error {
	return w.file.Close()
}

// ReadAll 依寫入順序讀取所有資料
// callback 收到單行 JSON，避免一次將所有資料載入記憶體
// 最後一行若沒有換行 (開檔後才被外部寫壞) 會被略過
func (w *WAL) ReadAll(callback func(jsonRaw []byte) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// 確保從頭讀取，O_APPEND 下寫入不受 offset 影響
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	reader := bufio.NewReader(w.file)
	for {
		line, err := reader.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if err := callback(line); err != nil {
			return err
		}
	}
}
