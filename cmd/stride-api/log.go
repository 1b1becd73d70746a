// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"io"
	"os"

	"github.com/decred/slog"

	"stride/internal/aggregator/api"
	"stride/internal/aggregator/core"
	"stride/internal/aggregator/persistence"
	"stride/internal/aggregator/telemetry"
)

// backendLog is the logging backend shared by every subsystem logger.
var backendLog = slog.NewBackend(os.Stdout)

var (
	log     = backendLog.Logger("MAIN")
	strdLog = backendLog.Logger("STRD")
	apisLog = backendLog.Logger("APIS")
	persLog = backendLog.Logger("PERS")
	teleLog = backendLog.Logger("TELE")
)

// subsystemLoggers maps each subsystem identifier to its logger.
var subsystemLoggers = map[string]slog.Logger{
	"MAIN": log,
	"STRD": strdLog,
	"APIS": apisLog,
	"PERS": persLog,
	"TELE": teleLog,
}

func init() {
	core.UseLogger(strdLog)
	api.UseLogger(apisLog)
	persistence.UseLogger(persLog)
	telemetry.UseLogger(teleLog)
}

// setLogLevels sets every subsystem logger to level. Unknown levels fall back
// to info.
func setLogLevels(level string) {
	lvl, ok := slog.LevelFromString(level)
	if !ok {
		lvl = slog.LevelInfo
	}
	for _, logger := range subsystemLoggers {
		logger.SetLevel(lvl)
	}
}

// redirectLogs points every subsystem at w. Used by tests to silence output.
func redirectLogs(w io.Writer) {
	backendLog = slog.NewBackend(w)
	for id := range subsystemLoggers {
		subsystemLoggers[id] = backendLog.Logger(id)
	}
	log = subsystemLoggers["MAIN"]
	core.UseLogger(subsystemLoggers["STRD"])
	api.UseLogger(subsystemLoggers["APIS"])
	persistence.UseLogger(subsystemLoggers["PERS"])
	telemetry.UseLogger(subsystemLoggers["TELE"])
}
