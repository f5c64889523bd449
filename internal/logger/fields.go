package logger

import (
	"time"

	"go.uber.org/zap"
)

func MemberID(v string) zap.Field { return zap.String("member_id", v) }

func Region(v string) zap.Field { return zap.String("region", v) }

func OpID(v string) zap.Field { return zap.String("op_id", v) }

func Artifact(v string) zap.Field { return zap.String("artifact", v) }

func Version(v uint64) zap.Field { return zap.Uint64("artifact_version", v) }

func Status(v string) zap.Field { return zap.String("status", v) }

func Targets(n int) zap.Field { return zap.Int("targets", n) }

func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }
