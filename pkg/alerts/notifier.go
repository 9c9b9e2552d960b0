package alerts

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/core-tools/macos-observer/pkg/errors"
	"github.com/core-tools/macos-observer/pkg/logging"
)

// Notifier delivers one formatted notification.
type Notifier interface {
	Notify(title, body string) error
}

// NewOsascriptNotifier returns a notifier that posts native macOS
// notifications through AppleScript. Going through the notification
// center keeps the user's do-not-disturb and per-app settings in effect.
func NewOsascriptNotifier(logger logging.Logger) Notifier {
	return &osascriptNotifier{logger: logger}
}

type osascriptNotifier struct {
	logger logging.Logger
}

func (n *osascriptNotifier) Notify(title, body string) error {
	script := notificationScript(title, body)

	output, err := exec.Command("osascript", "-e", script).CombinedOutput()
	if err != nil {
		return errors.NewIOError("failed to deliver notification via osascript", err).
			WithContext("output", strings.TrimSpace(string(output)))
	}
	return nil
}

// notificationScript renders the AppleScript for one notification.
// Double quotes are the only character that breaks the string literal.
func notificationScript(title, body string) string {
	escapedTitle := strings.ReplaceAll(title, `"`, `\"`)
	escapedBody := strings.ReplaceAll(body, `"`, `\"`)
	return fmt.Sprintf(`display notification "%s" with title "%s"`, escapedBody, escapedTitle)
}

// NewLogNotifier returns a notifier that only logs. It stands in for real
// delivery in development and on non-macOS hosts.
func NewLogNotifier(logger logging.Logger) Notifier {
	return &logNotifier{logger: logger}
}

type logNotifier struct {
	logger logging.Logger
}

func (n *logNotifier) Notify(title, body string) error {
	n.logger.Infof("MOCK NOTIFICATION - Title: %s, Body: %s", title, body)
	return nil
}
