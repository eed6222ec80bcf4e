package adapter

import (
	"fmt"

	waLog "go.mau.fi/whatsmeow/util/log"

	. "github.com/sellerdesk/walink/internal/logging"
)

// walinkLogger bridges whatsmeow's waLog.Logger to our L_* functions
type walinkLogger struct {
	module string
}

func (l *walinkLogger) Debugf(msg string, args ...interface{}) {
	L_debug(fmt.Sprintf("whatsmeow/%s: %s", l.module, fmt.Sprintf(msg, args...)))
}

func (l *walinkLogger) Infof(msg string, args ...interface{}) {
	L_info(fmt.Sprintf("whatsmeow/%s: %s", l.module, fmt.Sprintf(msg, args...)))
}

func (l *walinkLogger) Warnf(msg string, args ...interface{}) {
	L_warn(fmt.Sprintf("whatsmeow/%s: %s", l.module, fmt.Sprintf(msg, args...)))
}

func (l *walinkLogger) Errorf(msg string, args ...interface{}) {
	L_error(fmt.Sprintf("whatsmeow/%s: %s", l.module, fmt.Sprintf(msg, args...)))
}

func (l *walinkLogger) Sub(module string) waLog.Logger {
	return &walinkLogger{module: l.module + "/" + module}
}
