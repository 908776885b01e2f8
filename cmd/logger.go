package cmd

import (
	"fmt"
	"strings"

	"github.com/golang/glog"
)

// glogLogger adapts glog to isp.Logger. Debug messages need -v=2, info
// messages -v=1 or --verbose.
type glogLogger struct {
	verbose bool
}

func (l glogLogger) Debug(msg string, keysAndValues ...interface{}) {
	if glog.V(2) {
		glog.InfoDepth(1, kvString(msg, keysAndValues))
	}
}

func (l glogLogger) Info(msg string, keysAndValues ...interface{}) {
	if l.verbose || bool(glog.V(1)) {
		glog.InfoDepth(1, kvString(msg, keysAndValues))
	}
}

func (l glogLogger) Error(msg string, keysAndValues ...interface{}) {
	glog.ErrorDepth(1, kvString(msg, keysAndValues))
}

// kvString renders msg followed by key=value pairs. A trailing key without
// a value is printed on its own.
func kvString(msg string, kv []interface{}) string {
	var sb strings.Builder
	sb.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		sb.WriteByte(' ')
		if i+1 == len(kv) {
			fmt.Fprint(&sb, kv[i])
			break
		}
		fmt.Fprintf(&sb, "%v=%v", kv[i], kv[i+1])
	}
	return sb.String()
}
