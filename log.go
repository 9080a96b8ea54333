package sntl

import "github.com/prometheus/common/log"

// logf centralizes the Debugf calls scattered through the translator,
// matching the teacher's direct use of github.com/prometheus/common/log
// (cmd_handler.go, poll.go) rather than a heavier structured logger —
// this package is a library, not a binary, so it never configures
// output; callers (e.g. cmd/sntlcheck) own that via logrus.
func logf(format string, args ...interface{}) {
	log.Debugf(format, args...)
}

func errorf(format string, args ...interface{}) {
	log.Errorf(format, args...)
}
