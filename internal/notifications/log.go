package notifications

import (
	"context"

	"go.uber.org/zap"

	"github.com/urishop/api/internal/platform/requestctx"
)

// LogNotifier writes notifications to the structured log. Used in local environments and as an
// audit trail alongside the real drivers.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a LogNotifier. A nil logger discards output.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("notifications")}
}

// Notify logs the notification at info level.
func (n *LogNotifier) Notify(ctx context.Context, notification Notification) error {
	msg, err := NewMessage(notification)
	if err != nil {
		return err
	}
	fields := append(requestctx.Fields(ctx),
		zap.String("kind", string(msg.Kind)),
		zap.String("orderId", msg.OrderID),
		zap.String("orderNumber", msg.OrderNumber),
		zap.String("recipient", maskEmail(msg.Recipient.Email)),
		zap.String("subject", msg.Subject),
	)
	n.logger.Info("order notification", fields...)
	return nil
}

func maskEmail(email string) string {
	for i := 0; i < len(email); i++ {
		if email[i] == '@' {
			if i <= 1 {
				return "*" + email[i:]
			}
			return email[:1] + "***" + email[i:]
		}
	}
	return ""
}
