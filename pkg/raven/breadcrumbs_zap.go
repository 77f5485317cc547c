// breadcrumbs_zap.go records zap log entries as breadcrumbs.

package raven

import (
	"context"

	"go.uber.org/zap/zapcore"
)

// CategoryConsole is the breadcrumb category of log entries from unnamed
// loggers.
const CategoryConsole = "console"

type breadcrumbCore struct {
	zapcore.LevelEnabler
	client *client
	ctx    context.Context
	fields []zapcore.Field
}

func (c *client) BreadcrumbCore(ctx context.Context, enab zapcore.LevelEnabler) zapcore.Core {
	if ctx == nil {
		ctx = context.Background()
	}
	return &breadcrumbCore{LevelEnabler: enab, client: c, ctx: ctx}
}

func (bc *breadcrumbCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *bc
	clone.fields = append(bc.fields[:len(bc.fields):len(bc.fields)], fields...)
	return &clone
}

func (bc *breadcrumbCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if bc.Enabled(ent.Level) {
		return ce.AddCore(ent, bc)
	}
	return ce
}

func (bc *breadcrumbCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range bc.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	category := ent.LoggerName
	if category == "" {
		category = CategoryConsole
	}
	crumb := Breadcrumb{
		Timestamp: ent.Time,
		Category:  category,
		Message:   ent.Message,
		Level:     levelFromZap(ent.Level),
	}
	if len(enc.Fields) > 0 {
		crumb.Data = enc.Fields
	}
	bc.client.ActiveScope(bc.ctx).AddBreadcrumb(crumb)
	return nil
}

func (bc *breadcrumbCore) Sync() error {
	return nil
}

func levelFromZap(l zapcore.Level) Level {
	switch {
	case l <= zapcore.DebugLevel:
		return LevelDebug
	case l == zapcore.InfoLevel:
		return LevelInfo
	case l == zapcore.WarnLevel:
		return LevelWarning
	case l == zapcore.ErrorLevel:
		return LevelError
	default:
		return LevelFatal
	}
}
