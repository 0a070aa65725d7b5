package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ Processor = (*processorFunc)(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
