package auditlog

import "go.uber.org/zap"

// NewLogger builds the zap.Logger every component in this package takes
// as a constructor argument. Production builds get JSON output at info
// level; set AUDITLOG_DEV=1 to switch to zap's human-readable development
// encoder.
func NewLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
