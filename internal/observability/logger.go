package observability

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// NewLogger devuelve el logger JSON del servicio. Un nivel inválido cae a info.
func NewLogger(level string) *logrus.Logger {
	return newLogger(os.Stdout, level)
}

func newLogger(w io.Writer, level string) *logrus.Logger {
	lg := logrus.New()
	lg.SetOutput(w)
	lg.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	lg.SetLevel(lvl)
	return lg
}

// Component etiqueta las entradas de un subsistema.
func Component(lg *logrus.Logger, name string) *logrus.Entry {
	if lg == nil {
		lg = logrus.StandardLogger()
	}
	return lg.WithField("component", name)
}
