/*
Copyright 2022-2024 EscherCloud.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap/zapcore"

	"github.com/eschercloudai/kubernetes-deploy/pkg/cmd"
	"github.com/eschercloudai/kubernetes-deploy/pkg/constants"

	klog "k8s.io/klog/v2"

	"sigs.k8s.io/controller-runtime/pkg/log"
	crzap "sigs.k8s.io/controller-runtime/pkg/log/zap"
)

// logLevel resolves the LEVEL/DEBUG environment variables into a zapcore
// level. DEBUG is a boolean shorthand for LEVEL=debug; LEVEL takes an
// explicit zap level name and wins if both are set.
func logLevel() zapcore.Level {
	if raw := os.Getenv("LEVEL"); raw != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(strings.ToLower(raw))); err == nil {
			return level
		}
	}

	if debug, _ := strconv.ParseBool(os.Getenv("DEBUG")); debug {
		return zapcore.DebugLevel
	}

	return zapcore.InfoLevel
}

func main() {
	zapOptions := &crzap.Options{
		Level: logLevel(),
	}

	logger := crzap.New(crzap.UseFlagOptions(zapOptions))

	log.SetLogger(logger)
	klog.SetLogger(logger)

	root := cmd.Generate(logger.WithName(constants.Application))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
