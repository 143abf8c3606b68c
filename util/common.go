package util

import (
	"context"
	"fmt"
	"go.uber.org/zap"
	"strings"
	"werewolf-bdd/applog"
)

func PtrValueOrDef[T any](value *T, def T) T {
	if value == nil {
		return def
	}
	return *value
}

func Ptr[T any](value T) *T {
	return &value
}

func WrapAppContextCancelExitMessage(ctx context.Context, appName string) {
	ctxErr := ctx.Err()
	if ctxErr != nil {
		applog.Info(fmt.Sprintf("%s exited; context cancelled", appName), zap.Error(ctxErr))
		return
	}

	applog.Info(fmt.Sprintf("%s exited", appName))
}

// DataToHex renders a binary payload as space separated upper-case hex octets.
func DataToHex(buffer []byte) string {
	var sb strings.Builder
	sb.Grow(len(buffer) * 3)
	for i, b := range buffer {
		if i > 0 {
			sb.WriteByte(' ')
		}
		_, _ = fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

// TruncateForLog cuts long text payloads so a chatty server doesn't flood debug logs.
func TruncateForLog(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return fmt.Sprintf("%s...(%d more bytes)", s[:max], len(s)-max)
}
