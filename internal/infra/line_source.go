package infra

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

// LineEventSource reads "<kind> <package>" lines, one event per line.
// It bridges accessibility events forwarded from another process.
type LineEventSource struct {
	reader io.Reader
	logger *zap.Logger
	now    func() time.Time
}

// NewLineEventSource creates a source reading from r.
func NewLineEventSource(r io.Reader, logger *zap.Logger) *LineEventSource {
	return &LineEventSource{reader: r, logger: logger, now: time.Now}
}

// Events starts reading and returns the event channel. The channel is
// closed at end of input or when ctx is canceled.
func (s *LineEventSource) Events(ctx context.Context) (<-chan domain.ForegroundEvent, error) {
	out := make(chan domain.ForegroundEvent)

	go func() {
		defer close(out)

		scanner := bufio.NewScanner(s.reader)
		for scanner.Scan() {
			ev, ok := ParseEventLine(scanner.Text())
			if !ok {
				continue
			}
			ev.At = s.now()

			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			s.logger.Warn("event input failed", zap.Error(err))
		}
	}()

	return out, nil
}

// ParseEventLine parses "<kind> <package>". Blank lines and comments
// ("#") are skipped. Unknown kinds map to domain.EventOther.
func ParseEventLine(line string) (domain.ForegroundEvent, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return domain.ForegroundEvent{}, false
	}

	fields := strings.Fields(line)
	if len(fields) < 2 {
		return domain.ForegroundEvent{}, false
	}

	return domain.ForegroundEvent{
		Kind:        parseEventKind(fields[0]),
		PackageName: fields[1],
	}, true
}

func parseEventKind(s string) domain.EventKind {
	switch strings.ToLower(s) {
	case "primary", "window_state_changed", "type_window_state_changed":
		return domain.EventPrimary
	case "secondary", "window_content_changed", "type_window_content_changed":
		return domain.EventSecondary
	default:
		return domain.EventOther
	}
}

// Ensure LineEventSource implements domain.EventSource.
var _ domain.EventSource = (*LineEventSource)(nil)
