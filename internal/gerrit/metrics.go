// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gerrit

import (
	"log/slog"

	"go.opentelemetry.io/otel"
	ometric "go.opentelemetry.io/otel/metric"
)

// metrics holds the counters a Client reports to the global
// OpenTelemetry meter provider.
type metrics struct {
	requests   ometric.Int64Counter // HTTP requests issued
	fallbacks  ometric.Int64Counter // comment requests retried by change number
	skipped    ometric.Int64Counter // changes whose comments could not be collected
	mismatches ometric.Int64Counter // changes whose comment count disagrees with Gerrit
}

const meterName = "golang.org/x/reviewspy/internal/gerrit"

func newMetrics(lg *slog.Logger) *metrics {
	meter := otel.Meter(meterName)
	newCounter := func(name, description string) ometric.Int64Counter {
		c, err := meter.Int64Counter("reviewspy/gerrit/"+name, ometric.WithDescription(description))
		if err != nil {
			lg.Error("counter creation failed", "name", name)
			panic(err)
		}
		return c
	}
	return &metrics{
		requests:   newCounter("requests", "number of Gerrit HTTP requests"),
		fallbacks:  newCounter("fallbacks", "number of comment requests retried by change number"),
		skipped:    newCounter("skipped", "number of changes skipped during comment collection"),
		mismatches: newCounter("mismatches", "number of changes with an unexpected comment count"),
	}
}
