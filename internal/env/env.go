// Package env подгружает переменные окружения из .env-файлов для локального запуска.
package env

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Load читает файлы по очереди и выставляет переменные, которых ещё нет в окружении.
// Уже заданные переменные не перезаписываются, отсутствующие файлы пропускаются.
func Load(paths ...string) error {
	preset := map[string]struct{}{}
	for _, e := range os.Environ() {
		if i := strings.IndexByte(e, '='); i > 0 {
			preset[e[:i]] = struct{}{}
		}
	}

	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := loadFile(p, preset); err != nil {
			return err
		}
	}
	return nil
}

func loadFile(path string, preset map[string]struct{}) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open env file %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, value, ok := parseLine(sc.Text())
		if !ok {
			continue
		}
		if _, exists := preset[key]; exists {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read env file %s: %w", path, err)
	}
	return nil
}

func parseLine(line string) (string, string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimSpace(strings.TrimPrefix(line, "export "))

	key, value, found := strings.Cut(line, "=")
	key = strings.TrimSpace(key)
	if !found || key == "" {
		return "", "", false
	}

	value = strings.TrimSpace(value)
	if quoted(value, '"') || quoted(value, '\'') {
		return key, value[1 : len(value)-1], true
	}
	if i := strings.Index(value, " #"); i >= 0 {
		value = strings.TrimSpace(value[:i])
	}
	return key, value, true
}

func quoted(v string, q byte) bool {
	return len(v) >= 2 && v[0] == q && v[len(v)-1] == q
}
