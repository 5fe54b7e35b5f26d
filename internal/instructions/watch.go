// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package instructions

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 200 * time.Millisecond

// Watch 监听指令目录中 .md 的增删改，去抖后回调 onChange；ctx 结束时停止
func (s *Store) Watch(ctx context.Context, onChange func(name string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(s.dir); err != nil {
		w.Close()
		return err
	}

	go func() {
		defer w.Close()
		var (
			mu    sync.Mutex
			timer *time.Timer
			last  string
		)
		fire := func() {
			mu.Lock()
			name := last
			mu.Unlock()
			onChange(name)
		}
		for {
			select {
			case <-ctx.Done():
				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				mu.Unlock()
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !strings.HasSuffix(ev.Name, ext) {
					continue
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				mu.Lock()
				last = strings.TrimSuffix(filepath.Base(ev.Name), ext)
				if timer == nil {
					timer = time.AfterFunc(watchDebounce, fire)
				} else {
					timer.Reset(watchDebounce)
				}
				mu.Unlock()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.logger.Warn("instructions watcher error", "error", err)
			}
		}
	}()
	return nil
}
