// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build darwin || linux || freebsd || dragonfly || openbsd || netbsd
// +build darwin linux freebsd dragonfly openbsd netbsd

package main

import (
	"github.com/golang/glog"
	"golang.org/x/sys/unix"
)

func lowerPriority() {
	if err := unix.Setpriority(unix.PRIO_PROCESS, 0, 19); err != nil {
		glog.V(1).Infof("failed to lower priority: %v", err)
	}
}
