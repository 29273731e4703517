// Package suggest keeps the plain-text log of user-submitted list additions.
package suggest

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

var (
	ErrEmpty   = errors.New("suggestion is empty")
	ErrTooLong = errors.New("suggestion is too long")
)

// MaxLength bounds a single suggestion in characters, after trimming.
const MaxLength = 300

type Log struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

func NewLog(path string) *Log {
	return &Log{path: path, now: time.Now}
}

func (l *Log) Path() string {
	return l.path
}

// Add appends one line for user's suggestion.
func (l *Log) Add(user, text string) error {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return ErrEmpty
	}
	if utf8.RuneCountInString(text) > MaxLength {
		return fmt.Errorf("%w: over %d characters", ErrTooLong, MaxLength)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open suggestions: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("%s %s: %s\n", l.now().UTC().Format(time.RFC3339), user, text)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write suggestion: %w", err)
	}
	return nil
}

// Clear empties the log and returns how many suggestions it held.
func (l *Log) Clear() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, err := l.count()
	if err != nil {
		return 0, err
	}
	if err := os.Truncate(l.path, 0); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("clear suggestions: %w", err)
	}
	return n, nil
}

// Count returns how many suggestions are waiting.
func (l *Log) Count() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count()
}

func (l *Log) count() (int, error) {
	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("open suggestions: %w", err)
	}
	defer f.Close()

	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) != "" {
			n++
		}
	}
	return n, scanner.Err()
}
