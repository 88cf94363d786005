package signal

import "github.com/sirupsen/logrus"

func quietTestLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}
