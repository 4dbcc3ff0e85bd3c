package snd

import "log"

var doDebug bool

// SetDebug enables verbose engine logging.
func SetDebug(enabled bool) { doDebug = enabled }

func logError(format string, v ...interface{}) {
	log.Printf("snd: "+format, v...)
}

func logDebug(format string, v ...interface{}) {
	if doDebug {
		log.Printf("snd: "+format, v...)
	}
}
