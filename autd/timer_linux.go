//go:build linux

package autd

import "github.com/vetricore/autdhost/stm"

func defaultTimerFactory() stm.PeriodicTimer {
	return stm.NewLinuxTimer()
}
