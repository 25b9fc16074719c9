// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKV Contributors

//go:build integration

// Package integration runs the credential API end to end against real
// redis and postgres containers.
package integration

import (
	"testing"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

func TestIntegration(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Integration Suite")
}
