package indicator

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const notificationsService = "org.freedesktop.Notifications"

// busctl runs one call against the user bus. Tests swap it.
var busctl = func(ctx context.Context, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, "busctl", args...).CombinedOutput()
}

// sendNotification shows n, replacing replaceID when non-zero, and returns the
// id the notification server assigned.
func sendNotification(ctx context.Context, appName string, replaceID uint32, n notification) (uint32, error) {
	out, err := busctl(ctx, notifyArgs(appName, replaceID, n)...)
	if err != nil {
		return 0, busctlError("notify", out, err)
	}
	return parseNotificationID(out)
}

// closeNotification dismisses id.
func closeNotification(ctx context.Context, id uint32) error {
	out, err := busctl(ctx, serviceCall("CloseNotification", "u", strconv.FormatUint(uint64(id), 10))...)
	if err != nil {
		return busctlError("dismiss", out, err)
	}
	return nil
}

// notifyArgs encodes the Notify(susssasa{sv}i) call.
func notifyArgs(appName string, replaceID uint32, n notification) []string {
	hints := []string{"urgency", "y", strconv.Itoa(int(n.Urgency))}
	if n.Transient {
		hints = append(hints, "transient", "b", "true")
	}

	args := serviceCall("Notify", "susssasa{sv}i",
		appName,
		strconv.FormatUint(uint64(replaceID), 10),
		n.Icon,
		n.Summary,
		n.Body,
		"0", // no actions
		strconv.Itoa(len(hints)/3),
	)
	args = append(args, hints...)
	return append(args, strconv.Itoa(n.TimeoutMS))
}

func serviceCall(method, signature string, values ...string) []string {
	args := []string{
		"--user", "call",
		notificationsService,
		"/org/freedesktop/Notifications",
		notificationsService,
		method,
		signature,
	}
	return append(args, values...)
}

// parseNotificationID reads a busctl reply of the form "u 42".
func parseNotificationID(out []byte) (uint32, error) {
	reply := strings.TrimSpace(string(out))
	fields := strings.Fields(reply)
	if len(fields) != 2 || fields[0] != "u" {
		return 0, fmt.Errorf("desktop notify invalid response: %q", reply)
	}
	id, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("desktop notify parse id %q: %w", fields[1], err)
	}
	return uint32(id), nil
}

func busctlError(op string, out []byte, err error) error {
	if detail := strings.TrimSpace(string(out)); detail != "" {
		return fmt.Errorf("desktop %s failed: %w (%s)", op, err, detail)
	}
	return fmt.Errorf("desktop %s failed: %w", op, err)
}
