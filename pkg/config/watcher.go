package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// StartWatch 监控配置文件变更，变更后重新读取并触发 onChange
// 监控所在目录而非文件本身，编辑器的原子替换（rename）也能被捕获
func (c *Config) StartWatch() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.watcher != nil {
		return nil
	}

	file := c.viper.ConfigFileUsed()
	if file == "" {
		return ErrWatchFailed.WithMessage("配置监控失败: 尚未加载配置文件")
	}
	file, err := filepath.Abs(file)
	if err != nil {
		return ErrWatchFailed.WithError(err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return ErrWatchFailed.WithError(err)
	}
	if err := w.Add(filepath.Dir(file)); err != nil {
		w.Close()
		return ErrWatchFailed.WithError(err)
	}

	c.watcher = w
	c.done = make(chan struct{})
	go c.watchLoop(w, file, c.done)
	return nil
}

// StopWatch 停止监控（可重复调用）
func (c *Config) StopWatch() error {
	c.mu.Lock()
	w, done := c.watcher, c.done
	c.watcher, c.done = nil, nil
	c.mu.Unlock()

	if w == nil {
		return nil
	}
	err := w.Close()
	<-done
	return err
}

// IsWatching 是否正在监控
func (c *Config) IsWatching() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.watcher != nil
}

func (c *Config) watchLoop(w *fsnotify.Watcher, file string, done chan struct{}) {
	defer close(done)

	for {
		select {
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != file {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			c.reload()

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			c.reportError(ErrWatchFailed.WithError(err))
		}
	}
}

// reload 重新读取配置文件，失败时保留旧值
func (c *Config) reload() {
	c.mu.Lock()
	err := c.viper.ReadInConfig()
	onChange := c.onChange
	c.mu.Unlock()

	if err != nil {
		c.reportError(ErrConfigReadFailed.WithError(err))
		return
	}
	// 锁外回调，回调中可以读取配置
	if onChange != nil {
		onChange(c)
	}
}

// reportError 报告错误，优先使用 onError 回调，否则输出到 stderr
func (c *Config) reportError(err error) {
	c.mu.RLock()
	onError := c.onError
	c.mu.RUnlock()

	if onError != nil {
		onError(err)
		return
	}
	fmt.Fprintf(os.Stderr, "[config] %v\n", err)
}
