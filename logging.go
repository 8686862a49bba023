package coldcache

import (
	"io"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// log is the package-level logger every coldcache component writes
// through: the background workers, and foreground paths such as a failed
// disk read or a failed spool on eviction or dispose.
var log = logrus.New()

// SetLogOutput redirects every coldcache logger's output, letting a host
// process fold cache diagnostics into its own log stream.
func SetLogOutput(w io.Writer) {
	log.SetOutput(w)
}

// SetLogFile points the package logger at a rotating file sink, sized and
// aged the way irodsfs-pool and matrixone both configure lumberjack for
// their own background workers.
func SetLogFile(path string, maxSizeMB, maxBackups, maxAgeDays int) {
	log.SetOutput(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	})
}

func diskStoreLog(name string) *logrus.Entry {
	return log.WithFields(logrus.Fields{
		"component": "diskstore",
		"cache":     name,
	})
}

func cacheLog(name string) *logrus.Entry {
	return log.WithFields(logrus.Fields{
		"component": "cache",
		"cache":     name,
	})
}

func namedMapLog(name string) *logrus.Entry {
	return log.WithFields(logrus.Fields{
		"component": "namedmap",
		"map":       name,
	})
}
